package square

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
)

func TestEnsureIdempotencyKey(t *testing.T) {
	c := &Client{}

	t.Run("provided key wins", func(t *testing.T) {
		if got := c.ensureIdempotencyKey("charge", "custom-key"); got != "custom-key" {
			t.Fatalf("expected provided key, got %q", got)
		}
	})

	t.Run("empty key is generated with prefix", func(t *testing.T) {
		got := c.ensureIdempotencyKey("charge", "")
		if !strings.HasPrefix(got, "charge-") {
			t.Fatalf("generated key %q missing prefix", got)
		}
		if got == c.ensureIdempotencyKey("charge", "") {
			t.Fatalf("generated keys must be unique")
		}
	})
}

func TestRedact(t *testing.T) {
	c := &Client{}
	if out := c.redact("payment_token", "abc123"); out != "[REDACTED]" {
		t.Fatalf("sensitive key leaked: %v", out)
	}
	if v := c.redact("status", "ok"); v != "ok" {
		t.Fatalf("safe key was redacted")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	cases := map[int]pkgerrors.Code{
		http.StatusUnauthorized:         pkgerrors.CodeUnauthorized,
		http.StatusNotFound:             pkgerrors.CodeNotFound,
		http.StatusConflict:             pkgerrors.CodeConflict,
		http.StatusTooManyRequests:      pkgerrors.CodeDependency,
		http.StatusBadRequest:           pkgerrors.CodeValidation,
		http.StatusUnprocessableEntity:  pkgerrors.CodeStateConflict,
		http.StatusInternalServerError:  pkgerrors.CodeDependency,
		http.StatusServiceUnavailable:   pkgerrors.CodeDependency,
	}
	for status, want := range cases {
		if got := domainCodeForStatus(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	c := &Client{}

	t.Run("authentication error", func(t *testing.T) {
		apiErr := sqcore.NewAPIError(http.StatusUnauthorized,
			errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`))
		typed := pkgerrors.As(c.mapSquareError(apiErr, "operation"))
		if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("expected %s, got %v", pkgerrors.CodeUnauthorized, typed)
		}
	})

	t.Run("idempotency key reused", func(t *testing.T) {
		apiErr := sqcore.NewAPIError(http.StatusConflict,
			errors.New(`{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`))
		typed := pkgerrors.As(c.mapSquareError(apiErr, "operation"))
		if typed == nil || typed.Code() != pkgerrors.CodeIdempotency {
			t.Fatalf("expected %s, got %v", pkgerrors.CodeIdempotency, typed)
		}
	})
}

func TestExtractSquareErrors(t *testing.T) {
	c := &Client{}
	apiErr := sqcore.NewAPIError(http.StatusBadRequest,
		errors.New(`{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`))
	got := c.extractSquareErrors(apiErr)
	if len(got) != 1 {
		t.Fatalf("expected 1 parsed error, got %d", len(got))
	}
	if got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected code %s", got[0].GetCode())
	}
}
