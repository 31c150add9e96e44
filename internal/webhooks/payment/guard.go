package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucasvieira/planbook-backend/pkg/redis"
)

// Guard tracks applied webhook deliveries using Redis SETNX with a TTL. Keys
// follow the `pb:idempotency:webhook:payment:<delivery_key>` pattern. The
// delivery key is the sender's event id when present, otherwise the
// (external payment ref, reported status) pair, which makes a redelivered
// report collapse onto the first application.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a webhook idempotency guard with the given mark TTL.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true when the delivery was already seen, otherwise
// marks it with the configured TTL.
func (g *Guard) CheckAndMark(ctx context.Context, deliveryKey string) (bool, error) {
	key, err := g.processedKey(deliveryKey)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete removes the mark so a failed application can be retried by the
// sender's next delivery.
func (g *Guard) Delete(ctx context.Context, deliveryKey string) error {
	key, err := g.processedKey(deliveryKey)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) processedKey(deliveryKey string) (string, error) {
	if deliveryKey == "" {
		return "", errors.New("delivery key is required")
	}
	return g.store.IdempotencyKey("webhook:payment", deliveryKey), nil
}

// DeliveryKey derives the identity for one webhook delivery.
func DeliveryKey(eventID, externalPaymentRef, status string) string {
	if eventID != "" {
		return eventID
	}
	return fmt.Sprintf("%s:%s", externalPaymentRef, status)
}
