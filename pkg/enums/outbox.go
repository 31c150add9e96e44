package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEnrollment         OutboxAggregateType = "enrollment"
	AggregatePlan               OutboxAggregateType = "plan"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEnrollment,
	AggregatePlan,
	AggregatePaymentTransaction,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventEnrollmentCreated   OutboxEventType = "enrollment_created"
	EventEnrollmentConfirmed OutboxEventType = "enrollment_confirmed"
	EventEnrollmentCancelled OutboxEventType = "enrollment_cancelled"
	EventPaymentAuthorized   OutboxEventType = "payment_authorized"
	EventPaymentSucceeded    OutboxEventType = "payment_succeeded"
	EventPaymentFailed       OutboxEventType = "payment_failed"
)

var validEventTypes = []OutboxEventType{
	EventEnrollmentCreated,
	EventEnrollmentConfirmed,
	EventEnrollmentCancelled,
	EventPaymentAuthorized,
	EventPaymentSucceeded,
	EventPaymentFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
