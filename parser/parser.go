// Package parser reads Epic waveform traces.
//
// A trace is a line oriented text stream. Directives starting with '.' declare
// signals and scale factors, and the bulk of the file is made of data lines:
//
//	.index v(top.xinv.out) 7 v   declare signal with raw index 7
//	1200                         advance the time cursor to 1200
//	7 -350                       record value -350 for raw index 7
//
// Parse makes a single forward pass, appending every sample to the compact
// per signal buffers of the encoding package. The two dominant line shapes are
// matched directly on the read buffer. Everything else, and anything the fast
// recognizer declines, goes through a line tokenizer which is authoritative.
package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/imr/go-epic/encoding"
	"github.com/imr/go-epic/event"
	"github.com/imr/go-epic/internal/diag"
)

const (
	// DefaultBufferSize is the size of the refillable read buffer.
	DefaultBufferSize = 64 << 10

	// MinBufferSize is the smallest buffer accepted by WithBufferSize.
	MinBufferSize = 256

	// DefaultMaxDigits is the longest integer the fast path accepts. Nine
	// decimal digits always fit an int32.
	DefaultMaxDigits = 9

	// Lines longer than this are reported and skipped.
	maxLineLength = 1 << 20

	// DefaultSeparator separates hierarchy segments of signal names.
	DefaultSeparator = `.`
)

var tracer = otel.Tracer(`github.com/imr/go-epic/parser`)

type options struct {
	bufferSize int
	fastPath   bool
	maxDigits  int
	size       int64
	listener   event.Listener
	logger     *slog.Logger
}

// Option configures Parse.
type Option func(*options)

// WithBufferSize sets the read buffer size, clamped to MinBufferSize.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n < MinBufferSize {
			n = MinBufferSize
		}
		o.bufferSize = n
	}
}

// WithFastPath enables or disables the byte level recognizer. Output is the
// same either way.
func WithFastPath(enabled bool) Option {
	return func(o *options) { o.fastPath = enabled }
}

// WithMaxDigits bounds the integers matched by the fast path to n digits,
// clamped to [1, 9]. Longer integers are still parsed by the tokenizer.
func WithMaxDigits(n int) Option {
	return func(o *options) {
		switch {
		case n < 1:
			n = 1
		case n > DefaultMaxDigits:
			n = DefaultMaxDigits
		}
		o.maxDigits = n
	}
}

// WithSize gives the total input size in bytes, enabling progress reports.
func WithSize(n int64) Option {
	return func(o *options) { o.size = n }
}

// WithListener receives new strings, progress and diagnostics.
func WithListener(l event.Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Signal is a declared signal together with its encoded events.
type Signal struct {
	event.Signal

	// Raw is the index used by the trace's data lines.
	Raw int32

	Events encoding.Buffer
}

// Trace is the result of a parse. It is immutable once Parse returns.
type Trace struct {
	Pool        *event.StringPool
	Signals     []*Signal
	Resolutions event.Resolutions
	MaxTime     int32
	Banner      event.Banner
	Separator   string

	// Line counts: total, matched by the fast path, and tokenized.
	Lines, FastLines, SlowLines int

	// Diagnostics is the number of diagnostics reported.
	Diagnostics int
}

// Summary returns the frozen metadata view of the trace.
func (t *Trace) Summary() *event.Summary {
	s := &event.Summary{
		Resolutions: t.Resolutions,
		MaxTime:     t.MaxTime,
		Signals:     make([]event.Signal, len(t.Signals)),
	}
	for i, sig := range t.Signals {
		s.Signals[i] = sig.Signal
	}
	return s
}

// Events decodes the interleaved [t0, v0, t1, v1, ...] events of signal i. It
// returns false if i is out of range.
func (t *Trace) Events(i int) ([]int32, bool, error) {
	if i < 0 || i >= len(t.Signals) {
		return nil, false, nil
	}
	sig := t.Signals[i]
	evts, err := encoding.Decode(sig.Events.Bytes(), sig.Events.Count())
	if err != nil {
		return nil, true, fmt.Errorf(`signal %d: %w`, i, err)
	}
	return evts, true, nil
}

// Bytes returns the total size of all encoded buffers.
func (t *Trace) Bytes() int {
	var n int
	for _, sig := range t.Signals {
		n += sig.Events.Len()
	}
	return n
}

// Release drops every signal buffer. The trace must not be used afterwards.
func (t *Trace) Release() {
	for _, sig := range t.Signals {
		sig.Events.Reset()
	}
	t.Signals = nil
}

// Parse reads a whole trace from r.
//
// Malformed lines are reported to the listener as diagnostics and skipped. An
// error is returned only when reading fails, the context is done, or the
// listener returns an error.
func Parse(ctx context.Context, r io.Reader, opts ...Option) (*Trace, error) {
	o := options{
		bufferSize: DefaultBufferSize,
		fastPath:   true,
		maxDigits:  DefaultMaxDigits,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.listener == nil {
		o.listener = event.NopListener{}
	}
	o.logger = diag.OrDefault(o.logger)

	ctx, span := tracer.Start(ctx, `parser.Parse`)
	defer span.End()
	span.SetAttributes(
		attribute.Int(`buffer_size`, o.bufferSize),
		attribute.Bool(`fast_path`, o.fastPath),
		attribute.Int64(`input_size`, o.size),
	)

	start := time.Now()
	s := newState(ctx, r, &o)
	tr, err := s.run()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, `parse failed`)
		o.logger.Error(`parse failed`,
			slog.Int(`line`, s.line),
			slog.String(`error`, err.Error()))
		return nil, err
	}

	elapsed := time.Since(start)
	diag.ParseDuration.Observe(elapsed.Seconds())
	diag.LinesParsed.WithLabelValues(diag.PathFast).Add(float64(tr.FastLines))
	diag.LinesParsed.WithLabelValues(diag.PathSlow).Add(float64(tr.SlowLines))
	diag.SignalsDeclared.Add(float64(len(tr.Signals)))

	var events int
	for _, sig := range tr.Signals {
		events += sig.Count
	}
	diag.EventsEncoded.Add(float64(events))

	span.SetAttributes(
		attribute.Int(`signals`, len(tr.Signals)),
		attribute.Int(`lines`, tr.Lines),
		attribute.Int(`events`, events),
	)
	o.logger.Info(`trace parsed`,
		slog.String(`banner`, tr.Banner.String()),
		slog.Int(`signals`, len(tr.Signals)),
		slog.Int(`strings`, tr.Pool.Len()),
		slog.Int(`lines`, tr.Lines),
		slog.Int(`fast_lines`, tr.FastLines),
		slog.Int(`slow_lines`, tr.SlowLines),
		slog.Int(`diagnostics`, tr.Diagnostics),
		slog.Int(`events`, events),
		slog.Int(`encoded_bytes`, tr.Bytes()),
		slog.Int64(`max_time`, int64(tr.MaxTime)),
		slog.Duration(`elapsed`, elapsed))
	return tr, nil
}
