// Package consumer is the client side of a trace session. It reads the header
// a producer sends while parsing, then hands out one Signal per declared
// signal whose events are fetched on first use.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imr/go-epic/event"
	"github.com/imr/go-epic/internal/diag"
	"github.com/imr/go-epic/wire"
)

var (
	// ErrBroken is returned once the channel has failed. The session can not
	// be used afterwards.
	ErrBroken = errors.New(`consumer: session broken`)

	// ErrNotFound is returned when the producer has no such signal.
	ErrNotFound = errors.New(`consumer: signal not found`)

	// ErrClosed is returned after Close.
	ErrClosed = errors.New(`consumer: session closed`)
)

type options struct {
	logger    *slog.Logger
	progress  func(int)
	message   func(string)
	timeout   time.Duration
	separator string
	sepFunc   func() string
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProgress is called with each progress percentage the producer sends
// while parsing.
func WithProgress(fn func(percent int)) Option {
	return func(o *options) { o.progress = fn }
}

// WithMessages is called with each diagnostic message the producer sends.
func WithMessages(fn func(msg string)) Option {
	return func(o *options) { o.message = fn }
}

// WithRequestTimeout bounds every signal round trip. Expiry breaks the
// session.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithSeparator sets the hierarchy separator used by FullName and Lookup. The
// separator is not sent over the channel, so it must match the trace's
// .hier_separator directive when it declares one. It defaults to ".".
func WithSeparator(sep string) Option {
	return func(o *options) { o.separator, o.sepFunc = sep, nil }
}

// WithSeparatorFunc is like WithSeparator with the separator taken from fn
// once the summary has been read. An empty result keeps the default.
func WithSeparatorFunc(fn func() string) Option {
	return func(o *options) { o.sepFunc = fn }
}

// Session is an open connection to a producer. Requests are strictly one at a
// time: concurrent callers are serialized.
type Session struct {
	id     string
	ch     io.ReadWriteCloser
	r      *wire.Reader
	w      *wire.Writer
	opts   options
	logger *slog.Logger

	pool    *event.StringPool
	summary *event.Summary
	signals []*Signal
	byName  map[string]*Signal

	mu     sync.Mutex
	err    error
	closed bool
	trips  int
}

// Open reads the producer's header from ch up to and including the summary.
// The producer parses the whole trace before the summary is sent, so Open
// blocks for as long as that takes. ch is closed if Open fails.
func Open(ctx context.Context, ch io.ReadWriteCloser, opts ...Option) (*Session, error) {
	s := &Session{
		id:   uuid.NewString(),
		ch:   ch,
		r:    wire.NewReader(ch),
		w:    wire.NewWriter(ch),
		pool: event.NewStringPool(nil),
		opts: options{separator: `.`},
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.logger = diag.OrDefault(s.opts.logger).With(slog.String(`session`, s.id))

	stop := context.AfterFunc(ctx, func() { ch.Close() })
	err := s.readHeader()
	if !stop() && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf(`consumer: open: %w`, err)
	}
	if s.opts.sepFunc != nil {
		if sep := s.opts.sepFunc(); sep != `` {
			s.opts.separator = sep
		}
	}

	s.signals = make([]*Signal, len(s.summary.Signals))
	s.byName = make(map[string]*Signal, len(s.signals))
	for i, meta := range s.summary.Signals {
		sig := &Signal{s: s, meta: meta}
		s.signals[i] = sig
		if _, dup := s.byName[sig.FullName()]; !dup {
			s.byName[sig.FullName()] = sig
		}
	}
	s.logger.Info(`session opened`,
		slog.Int(`signals`, len(s.signals)),
		slog.Int(`strings`, s.pool.Len()),
		slog.Int64(`max_time`, int64(s.summary.MaxTime)))
	return s, nil
}

func (s *Session) readHeader() error {
	for {
		tag, err := s.r.ReadTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		switch tag {
		case wire.TagMessage:
			msg, err := s.r.ReadUTF()
			if err != nil {
				return err
			}
			s.logger.Debug(`producer message`, slog.String(`msg`, msg))
			if s.opts.message != nil {
				s.opts.message(msg)
			}
		case wire.TagProgress:
			pct, err := s.r.ReadProgress()
			if err != nil {
				return err
			}
			if s.opts.progress != nil {
				s.opts.progress(pct)
			}
		case wire.TagString:
			str, err := s.r.ReadUTF()
			if err != nil {
				return err
			}
			s.pool.Append(str)
		case wire.TagSummary:
			sum, err := s.r.ReadSummary()
			if err != nil {
				return err
			}
			if err := sum.Validate(s.pool.Len()); err != nil {
				return fmt.Errorf(`%w: %v`, wire.ErrMalformed, err)
			}
			s.summary = sum
			return nil
		}
	}
}

// ID returns the session id used in log records.
func (s *Session) ID() string {
	return s.id
}

// Summary returns the trace summary. It must not be modified.
func (s *Session) Summary() *event.Summary {
	return s.summary
}

// Resolutions returns the scale factors of the trace.
func (s *Session) Resolutions() event.Resolutions {
	return s.summary.Resolutions
}

// MaxTime returns the largest raw time in the trace.
func (s *Session) MaxTime() int32 {
	return s.summary.MaxTime
}

// Signals returns every signal in index order.
func (s *Session) Signals() []*Signal {
	return s.signals
}

// Signal returns signal i, or nil if i is out of range.
func (s *Session) Signal(i int) *Signal {
	if i < 0 || i >= len(s.signals) {
		return nil
	}
	return s.signals[i]
}

// Lookup returns the signal with the given full hierarchical name, or nil.
func (s *Session) Lookup(name string) *Signal {
	return s.byName[name]
}

// Strings returns the mirrored string pool indexed by id.
func (s *Session) Strings() []string {
	return s.pool.Strings()
}

// Err returns the error that broke the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RoundTrips returns the number of requests sent so far.
func (s *Session) RoundTrips() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips
}

// Events fetches the interleaved [t0, v0, t1, v1, ...] events of signal i
// without caching them. ErrNotFound leaves the session usable, any other error
// means the session is broken.
func (s *Session) Events(ctx context.Context, i int) ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(ctx, i)
}

// fetch performs one round trip. s.mu must be held.
func (s *Session) fetch(ctx context.Context, i int) ([]int32, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	if i < 0 || i > int(^uint32(0)>>1) {
		return nil, fmt.Errorf(`%w: index %d`, ErrNotFound, i)
	}
	if s.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	s.trips++
	stop := context.AfterFunc(ctx, func() { s.ch.Close() })
	evts, found, err := s.roundTrip(int32(i))
	if !stop() {
		// the channel is being closed under the request, a subprocess may
		// take a while to exit
		diag.RoundTrips.WithLabelValues(diag.OutcomeError).Inc()
		return nil, s.broken(ctx.Err())
	}
	if err != nil {
		diag.RoundTrips.WithLabelValues(diag.OutcomeError).Inc()
		return nil, s.fail(err)
	}
	if !found {
		diag.RoundTrips.WithLabelValues(diag.OutcomeNotFound).Inc()
		s.logger.Warn(`signal not found`, slog.Int(`signal`, i))
		return nil, fmt.Errorf(`%w: index %d`, ErrNotFound, i)
	}
	diag.RoundTrips.WithLabelValues(diag.OutcomeOK).Inc()
	s.logger.Debug(`signal fetched`,
		slog.Int(`signal`, i),
		slog.Int(`events`, len(evts)/2),
		slog.Duration(`elapsed`, time.Since(start)))
	return evts, nil
}

func (s *Session) roundTrip(i int32) ([]int32, bool, error) {
	if err := s.w.Request(i); err != nil {
		return nil, false, err
	}
	if err := s.w.Flush(); err != nil {
		return nil, false, err
	}
	return s.r.ReadEvents()
}

// fail marks the session broken by cause and closes the channel.
func (s *Session) fail(cause error) error {
	err := s.broken(cause)
	s.ch.Close()
	return err
}

// broken marks the session broken by cause.
func (s *Session) broken(cause error) error {
	if errors.Is(cause, io.EOF) {
		cause = io.ErrUnexpectedEOF
	}
	s.err = fmt.Errorf(`%w: %w`, ErrBroken, cause)
	s.logger.Error(`session broken`, slog.String(`error`, cause.Error()))
	return s.err
}

// Close ends the session, asking the producer to release the trace if the
// channel is still healthy. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	// a broken session has already closed the channel
	var err error
	if s.err == nil {
		if err = s.w.Request(wire.Stop); err == nil {
			err = s.w.Flush()
		}
		if cerr := s.ch.Close(); err == nil {
			err = cerr
		}
	}
	s.logger.Info(`session closed`, slog.Int(`round_trips`, s.trips))
	if err != nil {
		return fmt.Errorf(`consumer: close: %w`, err)
	}
	return nil
}
