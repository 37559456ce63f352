package rabbitmq

import (
	"context"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestConfig_URL(t *testing.T) {
	cfg := &Config{Host: "mq", Port: 5672, User: "guest", Password: "secret", VHost: "/"}
	assert.Equal(t, "amqp://guest:secret@mq:5672/", cfg.URL())
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		mult    float64
		attempt int
		want    time.Duration
	}{
		{name: "first retry uses base", base: 200 * time.Millisecond, mult: 3, attempt: 0, want: 200 * time.Millisecond},
		{name: "multiplier applied per attempt", base: 200 * time.Millisecond, mult: 3, attempt: 2, want: 1800 * time.Millisecond},
		{name: "defaults", attempt: 3, want: 800 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.base, tt.mult, tt.attempt))
		})
	}
}

func TestConfig_QueueArgs(t *testing.T) {
	cfg := &Config{}
	assert.Nil(t, cfg.queueArgs())

	cfg.DeadLetterExchange = "enrich_dlx"
	assert.Equal(t, amqp.Table{"x-dead-letter-exchange": "enrich_dlx"}, cfg.queueArgs())
}

func TestClient_RequiresConnection(t *testing.T) {
	client := &Client{config: &Config{}, logger: slog.Default()}
	ctx := context.Background()

	assert.ErrorIs(t, client.PublishWithRetry(ctx, []byte("{}"), "application/json"), ErrNotConnected)
	_, err := client.Consume("tag")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, client.Ack(1, false), ErrNotConnected)
	assert.ErrorIs(t, client.Nack(1, false, true), ErrNotConnected)
	assert.ErrorIs(t, client.HealthCheck(ctx), ErrNotConnected)
	assert.False(t, client.IsConnected())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, client.HealthCheck(canceled), context.Canceled)
}
