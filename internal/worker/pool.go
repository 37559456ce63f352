package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.runsChan:
			w.logger.Info("Worker received run",
				slog.String("worker_name", workerName),
				slog.String("run_id", msg.RunID),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
			)

			err := w.processor.Process(ctx, msg.RunID)
			if err == nil {
				if ackErr := w.broker.Ack(msg.DeliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("worker_name", workerName),
						slog.String("run_id", msg.RunID),
						slog.Any("error", ackErr),
					)
				}
				continue
			}

			requeue := ShouldRequeue(err)
			w.logger.Error("Run processing failed",
				slog.String("worker_name", workerName),
				slog.String("run_id", msg.RunID),
				slog.Bool("requeue", requeue),
				slog.Any("error", err),
			)
			w.nack(msg.DeliveryTag, requeue)
		}
	}
}
