package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler fans records out to a primary handler and its copies. Each
// destination applies its own level check.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(primary slog.Handler, copies ...slog.Handler) slog.Handler {
	if len(copies) == 0 {
		return primary
	}
	return &teeHandler{handlers: append([]slog.Handler{primary}, copies...)}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes r to every enabled destination. A failing destination does
// not keep the record from the others; all failures are returned joined.
func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *teeHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = fn(h)
	}
	return &teeHandler{handlers: handlers}
}
