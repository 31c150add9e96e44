package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	paymentwebhook "github.com/lucasvieira/planbook-backend/internal/webhooks/payment"
)

func TestPaymentWebhook_Success(t *testing.T) {
	payload := buildPaymentEvent(t, "payment.updated", "COMPLETED")
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, "secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set("Planbook-Signature", buildSignature(payload, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
}

func TestPaymentWebhook_MissingSignature(t *testing.T) {
	payload := buildPaymentEvent(t, "payment.updated", "COMPLETED")
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, "secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked without a signature")
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "SIGNATURE_REQUIRED" {
		t.Fatalf("expected SIGNATURE_REQUIRED, got %s", envelope.Error.Code)
	}
}

func TestPaymentWebhook_InvalidSignature(t *testing.T) {
	payload := buildPaymentEvent(t, "payment.updated", "COMPLETED")
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, "secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set("Planbook-Signature", buildSignature(payload, "wrong-secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestPaymentWebhook_MalformedBody(t *testing.T) {
	payload := []byte("{not json")
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, "secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set("Planbook-Signature", buildSignature(payload, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on malformed body")
	}
}

func buildPaymentEvent(t *testing.T, eventType, status string) []byte {
	event := &paymentwebhook.Event{
		EventID: "evt_" + uuid.NewString(),
		Type:    eventType,
		Data: paymentwebhook.EventData{
			Type: "payment",
			ID:   "pay_" + uuid.NewString(),
			Object: paymentwebhook.EventObject{
				Payment: &paymentwebhook.PaymentPayload{
					ID:          "pay_" + uuid.NewString(),
					ReferenceID: "ENR-202508-INDIVIDUAL-yoga-basics-00001",
					Status:      status,
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func buildSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakePaymentWebhookService struct {
	calls int
}

func (f *fakePaymentWebhookService) HandleEvent(ctx context.Context, event *paymentwebhook.Event) error {
	f.calls++
	return nil
}
