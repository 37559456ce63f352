package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// Unique consumer tag per worker process
	consumerTag := w.workerID

	deliveries, err := w.broker.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to deliveries and dispatches runs to the pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := DecodeRunMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping invalid run message",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages never become valid; let them dead-letter
				w.nack(delivery.DeliveryTag, false)
				continue
			}
			msg.DeliveryTag = delivery.DeliveryTag

			select {
			case w.runsChan <- msg:
				w.logger.Debug("Run dispatched to worker pool",
					slog.String("run_id", msg.RunID),
					slog.Uint64("delivery_tag", msg.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching run")
				w.nack(delivery.DeliveryTag, true)
				return
			}
		}
	}
}

// DecodeRunMessage parses a queue body and validates its run_id
func DecodeRunMessage(body []byte) (*domain.RunMessage, error) {
	var msg domain.RunMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if _, err := uuid.Parse(msg.RunID); err != nil {
		return nil, fmt.Errorf("%w: run_id %q is not a UUID", domain.ErrInvalidMessage, msg.RunID)
	}
	return &msg, nil
}

func (w *Worker) nack(tag uint64, requeue bool) {
	if err := w.broker.Nack(tag, false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", tag),
			slog.Any("error", err),
		)
	}
}
