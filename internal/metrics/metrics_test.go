package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/docfoundry/docfoundry/internal/broker"
)

func TestMetricsHandler(t *testing.T) {
	// Touch a metric so the namespace appears in the scrape.
	RecordJob("extraction", time.Second, nil)

	handler := Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "docfoundry_") {
		t.Error("response should contain docfoundry_ metrics")
	}
}

func TestRecordJob(t *testing.T) {
	// Record a success and a failure for each stage.
	for _, stage := range []string{"extraction", "chunking", "embedding"} {
		RecordJob(stage, 100*time.Millisecond, nil)
		RecordJob(stage, 50*time.Millisecond, errors.New("boom"))
	}

	// Verify metrics are recorded (no panic)
}

func TestRecordEmbedderRequest(t *testing.T) {
	RecordEmbedderRequest("openai", nil)
	RecordEmbedderRequest("gemini", errors.New("rate limited"))

	// Verify metrics are recorded (no panic)
}

func TestDepthCollector(t *testing.T) {
	mr := miniredis.RunT(t)

	b := broker.NewRedisBroker(broker.WithConfig(broker.Config{
		Addr:       mr.Addr(),
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}))
	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("broker Start() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })

	for i := 0; i < 4; i++ {
		if err := b.Push(ctx, "extraction_jobs", []byte("x")); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	c := NewDepthCollector(b, []string{"extraction_jobs"}, time.Minute, nil)
	c.Start(ctx)
	defer c.Stop()

	// Start performs an immediate collection.
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, req)

	if !strings.Contains(rr.Body.String(), `docfoundry_queue_depth{queue="extraction_jobs"} 4`) {
		t.Error("queue depth gauge not reported")
	}
}

func TestDepthCollector_StartStopIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	b := broker.NewRedisBroker(broker.WithConfig(broker.Config{Addr: mr.Addr(), MaxRetries: 1}))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("broker Start() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })

	c := NewDepthCollector(b, nil, time.Minute, nil)
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}
