package payments

import (
	"context"

	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/square"
)

// Square payment statuses as reported by the Payments API.
const (
	squareStatusCompleted = "COMPLETED"
	squareStatusApproved  = "APPROVED"
	squareStatusPending   = "PENDING"
)

// SquareGateway binds the charge capability to the Square client. Charges use
// the configured location and the order reference doubles as the Square
// reference id, which is how webhook deliveries find their way back.
type SquareGateway struct {
	client     *square.Client
	locationID string
}

// NewSquareGateway wraps the Square client as a payment gateway.
func NewSquareGateway(client *square.Client) *SquareGateway {
	return &SquareGateway{client: client, locationID: client.LocationID()}
}

func (g *SquareGateway) CreateAndCapture(ctx context.Context, params ChargeParams) (ChargeResult, error) {
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    params.AmountCents,
		Currency:       params.Currency,
		LocationID:     g.locationID,
		SourceID:       "EXTERNAL",
		IdempotencyKey: g.client.NewIdempotencyKey("charge-" + params.OrderRef),
		ReferenceID:    params.OrderRef,
	})
	if err != nil {
		return ChargeResult{}, err
	}

	result := ChargeResult{}
	if id := payment.GetID(); id != nil {
		result.ExternalPaymentRef = *id
	}
	status := ""
	if s := payment.GetStatus(); s != nil {
		status = *s
	}
	switch status {
	case squareStatusCompleted:
		result.Outcome = OutcomeSucceeded
	case squareStatusApproved, squareStatusPending:
		result.Outcome = OutcomeAuthorized
	default:
		result.Outcome = OutcomeFailed
		result.FailureCode = models.PaymentFailureDeclined
		result.ErrorDetail = "square reported status " + status
	}
	return result, nil
}

var _ Gateway = (*SquareGateway)(nil)
