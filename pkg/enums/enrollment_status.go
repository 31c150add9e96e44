package enums

import "fmt"

// EnrollmentStatus maps to the enrollment_status enum in Postgres.
type EnrollmentStatus string

const (
	EnrollmentStatusPendingPayment EnrollmentStatus = "pending_payment"
	EnrollmentStatusConfirmed      EnrollmentStatus = "confirmed"
	EnrollmentStatusCancelled      EnrollmentStatus = "cancelled"
)

var validEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPendingPayment,
	EnrollmentStatusConfirmed,
	EnrollmentStatusCancelled,
}

// IsValid reports whether the value matches the canonical enrollment_status enum.
func (s EnrollmentStatus) IsValid() bool {
	for _, candidate := range validEnrollmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEnrollmentStatus converts raw input into EnrollmentStatus.
func ParseEnrollmentStatus(value string) (EnrollmentStatus, error) {
	for _, candidate := range validEnrollmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrollment status %q", value)
}
