package logger

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"sync"
)

// AsyncHandler buffers records on a channel and writes them from a single
// background goroutine, decoupling callers from slow sinks.
type AsyncHandler struct {
	next     slog.Handler
	records  chan slog.Record
	dropping bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncHandler wraps next so that Handle enqueues records instead of
// writing synchronously. If dropOnFull is true, a full buffer drops the
// newest record rather than blocking the caller.
func NewAsyncHandler(next slog.Handler, bufferSize int, dropOnFull bool) *AsyncHandler {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	h := &AsyncHandler{
		next:     next,
		records:  make(chan slog.Record, bufferSize),
		dropping: dropOnFull,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *AsyncHandler) loop() {
	defer close(h.done)
	for r := range h.records {
		_ = h.next.Handle(context.Background(), r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	clone := r.Clone()
	if h.dropping {
		select {
		case h.records <- clone:
		default:
			// buffer full, drop rather than block the caller
		}
		return nil
	}
	h.records <- clone
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), records: h.records, dropping: h.dropping, done: h.done}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), records: h.records, dropping: h.dropping, done: h.done}
}

// redactedKeys names attribute keys whose values are always masked.
var redactedKeys = map[string]struct{}{
	"email":       {},
	"cc":          {},
	"credit_card": {},
	"password":    {},
	"token":       {},
	"ssn":         {},
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
)

const redactedPlaceholder = "[REDACTED]"

// RedactHandler masks values of known-sensitive attribute keys and scrubs
// email/card-number-shaped substrings out of free-text values.
type RedactHandler struct {
	next slog.Handler
}

// NewRedactHandler wraps next, redacting sensitive attributes before they
// reach it.
func NewRedactHandler(next slog.Handler) *RedactHandler {
	return &RedactHandler{next: next}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	clone := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clone.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, clone)
}

func redactAttr(a slog.Attr) slog.Attr {
	if _, sensitive := redactedKeys[a.Key]; sensitive {
		return slog.String(a.Key, redactedPlaceholder)
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if emailPattern.MatchString(s) || cardPattern.MatchString(s) {
			s = emailPattern.ReplaceAllString(s, redactedPlaceholder)
			s = cardPattern.ReplaceAllString(s, redactedPlaceholder)
			return slog.String(a.Key, s)
		}
	}
	return a
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactHandler{next: h.next.WithAttrs(redacted)}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{next: h.next.WithGroup(name)}
}

// SamplingHandler passes through a random fraction of records, always
// letting warnings and errors through regardless of rate.
type SamplingHandler struct {
	next slog.Handler
	rate float64
}

// NewSamplingHandler wraps next, randomly dropping records below
// slog.LevelWarn at (1-rate) frequency.
func NewSamplingHandler(next slog.Handler, rate float64) *SamplingHandler {
	if rate <= 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &SamplingHandler{next: next, rate: rate}
}

func (h *SamplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SamplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn || rand.Float64() < h.rate {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *SamplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SamplingHandler{next: h.next.WithAttrs(attrs), rate: h.rate}
}

func (h *SamplingHandler) WithGroup(name string) slog.Handler {
	return &SamplingHandler{next: h.next.WithGroup(name), rate: h.rate}
}
