package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns attributes stamped on every record, such as the
// storage backend in use.
type ContextProvider func() []slog.Attr

// fanout sends each record to every enabled handler, after adding the
// manager's context attributes.
type fanout struct {
	handlers []slog.Handler
	context  func() ContextProvider
}

func newFanout(context func() ContextProvider, handlers ...slog.Handler) *fanout {
	f := &fanout{context: context}
	for _, h := range handlers {
		if h != nil {
			f.handlers = append(f.handlers, h)
		}
	}
	return f
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle keeps going when a handler fails and reports every failure.
func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	if f.context != nil {
		if p := f.context(); p != nil {
			r = r.Clone()
			r.AddAttrs(p()...)
		}
	}

	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *fanout) derive(fn func(slog.Handler) slog.Handler) *fanout {
	out := &fanout{context: f.context, handlers: make([]slog.Handler, len(f.handlers))}
	for i, h := range f.handlers {
		out.handlers[i] = fn(h)
	}
	return out
}
