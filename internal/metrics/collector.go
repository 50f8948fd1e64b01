package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/docfoundry/docfoundry/internal/broker"
	"github.com/docfoundry/docfoundry/internal/version"
)

// DepthCollector periodically gauges the depth of each pipeline queue.
type DepthCollector struct {
	mu       sync.Mutex
	broker   broker.Broker
	queues   []string
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	running  bool
}

// NewDepthCollector creates a collector over the given queues.
func NewDepthCollector(b broker.Broker, queues []string, interval time.Duration, logger *slog.Logger) *DepthCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepthCollector{
		broker:   b,
		queues:   queues,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic collection.
func (c *DepthCollector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	ProcessStartTime.Set(float64(time.Now().Unix()))

	c.collect(ctx)
	go c.run(ctx, stopCh)
}

// Stop halts periodic collection.
func (c *DepthCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	close(c.stopCh)
	c.running = false
}

func (c *DepthCollector) run(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *DepthCollector) collect(ctx context.Context) {
	for _, queue := range c.queues {
		depth, err := c.broker.Depth(ctx, queue)
		if err != nil {
			c.logger.Debug("queue depth collection failed", "queue", queue, "error", err)
			continue
		}
		QueueDepth.WithLabelValues(queue).Set(float64(depth))
	}
}

// SetProcessInfo stamps version and build labels for this process.
func SetProcessInfo(stage string) {
	ProcessInfo.WithLabelValues(version.Get().Version, runtime.Version(), stage).Set(1)
}

// Serve exposes the default registry on addr until ctx is cancelled.
// Errors other than graceful shutdown are logged, not returned; metrics
// are best effort.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", "addr", addr, "error", err)
	}
}
