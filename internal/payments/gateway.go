package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Outcome is the gateway's verdict on a charge attempt.
type Outcome string

const (
	// OutcomeSucceeded means the charge was captured.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeAuthorized means the gateway acknowledged the charge but final
	// settlement arrives later via webhook.
	OutcomeAuthorized Outcome = "authorized"
	// OutcomeFailed means the gateway rejected the charge.
	OutcomeFailed Outcome = "failed"
)

// ChargeParams describes one create-and-capture attempt.
type ChargeParams struct {
	AmountCents int64
	Currency    string
	OrderRef    string
}

// ChargeResult is the gateway's answer. FailureCode and ErrorDetail are only
// set for failed outcomes.
type ChargeResult struct {
	ExternalPaymentRef string
	Outcome            Outcome
	FailureCode        string
	ErrorDetail        string
}

// Gateway is the capability the payment state machine consumes. Concrete
// bindings are supplied at wiring time; environments without a processor
// integration use the no-op gateway.
type Gateway interface {
	CreateAndCapture(ctx context.Context, params ChargeParams) (ChargeResult, error)
}

// NoopGateway approves every charge without talking to any processor.
type NoopGateway struct{}

// NewNoopGateway returns the stand-in gateway.
func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

func (g *NoopGateway) CreateAndCapture(_ context.Context, params ChargeParams) (ChargeResult, error) {
	return ChargeResult{
		ExternalPaymentRef: fmt.Sprintf("noop-%s", uuid.NewString()),
		Outcome:            OutcomeSucceeded,
	}, nil
}

var _ Gateway = (*NoopGateway)(nil)
