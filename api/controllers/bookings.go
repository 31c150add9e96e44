package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lucasvieira/planbook-backend/api/responses"
	"github.com/lucasvieira/planbook-backend/api/validators"
	bookingsvc "github.com/lucasvieira/planbook-backend/internal/booking"
	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
)

// CreateBooking runs the full booking flow: reserve seats, mint a reference,
// charge when the plan is paid, and settle the enrollment.
func CreateBooking(svc *bookingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		var payload bookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Book(r.Context(), bookingsvc.BookRequest{
			PlanSlug: payload.PlanSlug,
			Qty:      payload.Qty,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newBookingResponse(result))
	}
}

// GetBooking looks an enrollment up by its public reference.
func GetBooking(svc *bookingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		enrollment, err := svc.GetByReference(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newEnrollmentResponse(enrollment))
	}
}

// PlanAvailability reports the display-only slot estimate for a plan.
func PlanAvailability(svc *bookingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan slug is required"))
			return
		}

		plan, available, err := svc.Availability(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, availabilityResponse{
			PlanSlug:       plan.Slug,
			PlanName:       plan.Name,
			Category:       string(plan.Category),
			AvailableSlots: available,
		})
	}
}

type bookingRequest struct {
	PlanSlug string `json:"plan_slug" validate:"required,max=120"`
	Qty      int    `json:"qty" validate:"required,min=1,max=100"`
}

type bookingResponse struct {
	Enrollment enrollmentResponse `json:"enrollment"`
	Payment    *paymentResponse   `json:"payment,omitempty"`
}

type enrollmentResponse struct {
	ID        uuid.UUID `json:"id"`
	Reference string    `json:"reference"`
	PlanID    uuid.UUID `json:"plan_id"`
	Qty       int       `json:"qty"`
	Status    string    `json:"status"`
}

type paymentResponse struct {
	ID                 uuid.UUID `json:"id"`
	OrderRef           string    `json:"order_ref"`
	ExternalPaymentRef *string   `json:"external_payment_ref,omitempty"`
	AmountCents        int64     `json:"amount_cents"`
	Currency           string    `json:"currency"`
	Status             string    `json:"status"`
	FailureCode        *string   `json:"failure_code,omitempty"`
}

type availabilityResponse struct {
	PlanSlug       string `json:"plan_slug"`
	PlanName       string `json:"plan_name"`
	Category       string `json:"category"`
	AvailableSlots int    `json:"available_slots"`
}

func newBookingResponse(result *bookingsvc.BookResult) bookingResponse {
	if result == nil {
		return bookingResponse{}
	}
	resp := bookingResponse{Enrollment: newEnrollmentResponse(result.Enrollment)}
	if result.Payment != nil {
		resp.Payment = &paymentResponse{
			ID:                 result.Payment.ID,
			OrderRef:           result.Payment.OrderRef,
			ExternalPaymentRef: result.Payment.ExternalPaymentRef,
			AmountCents:        result.Payment.AmountCents,
			Currency:           result.Payment.Currency,
			Status:             string(result.Payment.Status),
			FailureCode:        result.Payment.FailureCode,
		}
	}
	return resp
}

func newEnrollmentResponse(enrollment *models.Enrollment) enrollmentResponse {
	if enrollment == nil {
		return enrollmentResponse{}
	}
	return enrollmentResponse{
		ID:        enrollment.ID,
		Reference: enrollment.Reference,
		PlanID:    enrollment.PlanID,
		Qty:       enrollment.Qty,
		Status:    string(enrollment.Status),
	}
}
