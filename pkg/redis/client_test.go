package redis

import (
	"testing"

	"github.com/lucasvieira/planbook-backend/pkg/config"
)

func TestKeyNamespacing(t *testing.T) {
	c := &Client{}
	if got := c.IdempotencyKey("payment_webhook", "evt-1"); got != "pb:idempotency:payment_webhook:evt-1" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := c.CounterKey("publisher"); got != "pb:counter:publisher" {
		t.Fatalf("unexpected counter key %q", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("empty config should be rejected")
	}

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 5})
	if err != nil {
		t.Fatalf("options error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 5 {
		t.Fatalf("options not applied: %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://:pw@redis.internal:6380/1"})
	if err != nil {
		t.Fatalf("url options error: %v", err)
	}
	if opts.Addr != "redis.internal:6380" || opts.DB != 1 {
		t.Fatalf("url options not parsed: %+v", opts)
	}
}
