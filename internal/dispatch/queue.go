package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
)

// Publisher is satisfied by *rabbitmq.Client
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Queue announces runs on the message broker for the worker service
type Queue struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewQueue creates a dispatcher that publishes through publisher
func NewQueue(publisher Publisher, logger *slog.Logger) *Queue {
	return &Queue{publisher: publisher, logger: logger}
}

// Dispatch publishes a run message carrying only the run ID
func (q *Queue) Dispatch(ctx context.Context, run *domain.Run) error {
	body, err := json.Marshal(domain.RunMessage{RunID: run.RunID})
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}

	if err := q.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish run message: %w", err)
	}

	q.logger.Info("Run published to queue", slog.String("run_id", run.RunID))
	return nil
}
