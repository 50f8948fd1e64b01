package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// relay is a slog.Handler that forwards every call to a target handler
// which can be replaced while loggers built on it keep working. The
// Manager uses it to move from the stderr bootstrap handler to the
// full fanout without invalidating logger references already handed to
// running components.
type relay struct {
	target atomic.Pointer[slog.Handler]
}

func newRelay(target slog.Handler) *relay {
	r := &relay{}
	r.target.Store(&target)
	return r
}

// retarget replaces the destination handler. Safe to call while other
// goroutines are logging.
func (r *relay) retarget(target slog.Handler) {
	r.target.Store(&target)
}

func (r *relay) dest() slog.Handler {
	return *r.target.Load()
}

func (r *relay) Enabled(ctx context.Context, level slog.Level) bool {
	return r.dest().Enabled(ctx, level)
}

func (r *relay) Handle(ctx context.Context, rec slog.Record) error {
	return r.dest().Handle(ctx, rec)
}

// WithAttrs derives a relay whose destination carries the attrs. The
// derived relay is pinned to the destination as it is now; only the
// root relay held by the Manager is ever retargeted.
func (r *relay) WithAttrs(attrs []slog.Attr) slog.Handler {
	return newRelay(r.dest().WithAttrs(attrs))
}

func (r *relay) WithGroup(name string) slog.Handler {
	return newRelay(r.dest().WithGroup(name))
}
