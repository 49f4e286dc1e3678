package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans a log record out to several btclog handlers, typically
// the console and the rotating log file.
type HandlerSet struct {
	level btclog.Level
	set   []btclogv2.Handler
}

// NewHandlerSet returns a HandlerSet over handlers, all set to Info.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{set: handlers}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// Enabled is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	return fanout(h.set).Enabled(ctx, level)
}

// Handle is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, r slog.Record) error {
	return fanout(h.set).Handle(ctx, r)
}

// WithAttrs is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanout(h.set).WithAttrs(attrs)
}

// WithGroup is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return fanout(h.set).WithGroup(name)
}

// SubSystem is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.derive(func(in btclogv2.Handler) btclogv2.Handler {
		return in.SubSystem(tag)
	})
}

// WithPrefix is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.derive(func(in btclogv2.Handler) btclogv2.Handler {
		return in.WithPrefix(prefix)
	})
}

// SetLevel is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

func (h *HandlerSet) derive(
	f func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	out := &HandlerSet{
		level: h.level,
		set:   make([]btclogv2.Handler, len(h.set)),
	}
	for i, handler := range h.set {
		out.set[i] = f(handler)
	}

	return out
}

var _ btclogv2.Handler = (*HandlerSet)(nil)

// multiHandler is the plain slog side of a HandlerSet. WithAttrs and
// WithGroup only promise an slog.Handler, so the btclog extras are dropped
// once a logger picks up attributes.
type multiHandler []slog.Handler

func fanout(set []btclogv2.Handler) multiHandler {
	out := make(multiHandler, len(set))
	for i, h := range set {
		out[i] = h
	}

	return out
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if !h.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}

	return nil
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}

	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}

	return out
}

var _ slog.Handler = multiHandler(nil)
