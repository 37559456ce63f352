package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RunProcessor executes one run announced on the queue
type RunProcessor interface {
	Process(ctx context.Context, runID string) error
}

// Broker is the queue side of the worker: deliveries in, acks out
type Broker interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Broker      Broker
	Processor   RunProcessor
	WorkerID    string
	Concurrency int
	QueueName   string
}

// Worker consumes run messages and executes them on a goroutine pool
type Worker struct {
	logger      *slog.Logger
	broker      Broker
	processor   RunProcessor
	workerID    string
	concurrency int
	queueName   string

	runsChan chan *domain.RunMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		logger:      cfg.Logger,
		broker:      cfg.Broker,
		processor:   cfg.Processor,
		workerID:    cfg.WorkerID,
		concurrency: concurrency,
		queueName:   cfg.QueueName,
		runsChan:    make(chan *domain.RunMessage),
		stopChan:    make(chan struct{}),
	}
}

// Start subscribes to the queue and blocks until ctx is canceled or the
// delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	if ctx.Err() == nil {
		return errors.New("delivery channel closed")
	}
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker, waiting for in-flight runs
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
