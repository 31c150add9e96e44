// Package types holds the wire envelopes shared by every HTTP handler.
package types

// SuccessEnvelope wraps every 2xx body under a "data" key so clients can
// decode responses uniformly.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error shape. Code is a stable machine
// string; Message is safe to surface to end users.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
