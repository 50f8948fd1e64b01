package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/docfoundry/docfoundry/internal/broker"
	"github.com/docfoundry/docfoundry/internal/metrics"
)

// DefaultQueueTimeout bounds each blocking pop so cancellation is
// observed between iterations.
const DefaultQueueTimeout = 5 * time.Second

// popErrorBackoff is the pause after a broker failure before retrying
// the pop.
const popErrorBackoff = 5 * time.Second

// WorkerConfig configures one stage worker process.
type WorkerConfig struct {
	WorkerID     string
	Queues       Queues
	QueueTimeout time.Duration

	// ProcessedDir receives staging artifacts (chunk stage).
	ProcessedDir string

	// StorageType labels persisted vector records (embed stage).
	StorageType string
}

func (c *WorkerConfig) queueTimeout() time.Duration {
	if c.QueueTimeout > 0 {
		return c.QueueTimeout
	}
	return DefaultQueueTimeout
}

// runLoop is the shared single-threaded worker loop: one blocking pop,
// one job to completion, next pop. Job failures are contained by the
// handler; only context cancellation ends the loop.
func runLoop(ctx context.Context, deps Deps, logger *slog.Logger, queue string, timeout time.Duration, stage string, handle func(ctx context.Context, payload []byte) error) error {
	logger.Info("worker started", "trace_id", "-", "event", "worker_start", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping", "trace_id", "-", "event", "worker_stop")
			return nil
		default:
		}

		payload, err := deps.Broker.PopBlocking(ctx, queue, timeout)
		if err != nil {
			if errors.Is(err, broker.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				logger.Info("worker stopping", "trace_id", "-", "event", "worker_stop")
				return nil
			}
			logger.Error("queue pop failed",
				"trace_id", "-",
				"event", "pop_error",
				"queue", queue,
				"error", err)
			select {
			case <-ctx.Done():
			case <-time.After(popErrorBackoff):
			}
			continue
		}

		start := time.Now()
		err = handle(ctx, payload)
		metrics.RecordJob(stage, time.Since(start), err)
	}
}
