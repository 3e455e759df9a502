// Package producer serves a parsed trace over a duplex byte channel.
//
// A Server reads the whole trace first, forwarding progress, new strings and
// diagnostics to the consumer as they happen. It then sends the summary and
// answers signal requests one at a time until the consumer sends a negative
// index or the channel fails.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/imr/go-epic/event"
	"github.com/imr/go-epic/internal/diag"
	"github.com/imr/go-epic/parser"
	"github.com/imr/go-epic/wire"
)

var tracer = otel.Tracer(`github.com/imr/go-epic/producer`)

// Default diagnostic throttling: the first DefaultDiagnosticBurst diagnostics
// are forwarded, then at most one per DefaultDiagnosticInterval.
const (
	DefaultDiagnosticBurst    = 100
	DefaultDiagnosticInterval = time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithParserOptions passes options through to parser.Parse.
func WithParserOptions(opts ...parser.Option) Option {
	return func(s *Server) { s.parseOpts = append(s.parseOpts, opts...) }
}

// WithParsed is called with the parsed trace before its summary is sent.
func WithParsed(fn func(tr *parser.Trace)) Option {
	return func(s *Server) { s.parsed = fn }
}

// WithDiagnosticLimit forwards the first burst diagnostics and then at most
// one per interval. Every diagnostic is still logged and counted.
func WithDiagnosticLimit(burst int, interval time.Duration) Option {
	return func(s *Server) {
		s.limit = rate.Sometimes{First: burst, Interval: interval}
	}
}

// Server is the producer side of one session. It is not safe for concurrent
// use and serves a single trace.
type Server struct {
	ch        io.ReadWriter
	w         *wire.Writer
	r         *wire.Reader
	logger    *slog.Logger
	parseOpts []parser.Option
	parsed    func(*parser.Trace)

	limit      rate.Sometimes
	diags      int
	suppressed int

	tr      *parser.Trace
	held    int
	served  int
	missing int
}

// New returns a Server speaking on ch.
func New(ch io.ReadWriter, opts ...Option) *Server {
	s := &Server{
		ch:    ch,
		w:     wire.NewWriter(ch),
		r:     wire.NewReader(ch),
		limit: rate.Sometimes{First: DefaultDiagnosticBurst, Interval: DefaultDiagnosticInterval},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = diag.OrDefault(s.logger)
	return s
}

// Run parses the trace in r, whose total size is size bytes or zero when
// unknown, then serves it. It returns nil once the consumer ends the session.
func (s *Server) Run(ctx context.Context, r io.Reader, size int64) error {
	defer s.watch(ctx)()

	opts := append([]parser.Option{
		parser.WithLogger(s.logger),
	}, s.parseOpts...)
	opts = append(opts, parser.WithListener(s), parser.WithSize(size))

	tr, err := parser.Parse(ctx, r, opts...)
	if err != nil {
		// best effort, the channel may be the reason parsing failed
		if s.w.Err() == nil {
			_ = s.w.Message(`parse failed: ` + err.Error())
			_ = s.w.Flush()
		}
		return fmt.Errorf(`producer: %w`, err)
	}
	if s.suppressed > 0 {
		msg := fmt.Sprintf(`%d of %d diagnostics were not forwarded`, s.suppressed, s.diags)
		if err := s.w.Message(msg); err != nil {
			return fmt.Errorf(`producer: %w`, err)
		}
	}
	if s.parsed != nil {
		s.parsed(tr)
	}
	return s.serve(ctx, tr)
}

// watch closes the channel when ctx is done, if it is an io.Closer, so that
// blocked reads and writes return.
func (s *Server) watch(ctx context.Context) (stop func() bool) {
	c, ok := s.ch.(io.Closer)
	if !ok {
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, func() { c.Close() })
}

// NewString implements event.Listener by forwarding a new pool entry.
func (s *Server) NewString(id int32, str string) error {
	return s.w.NewString(str)
}

// Progress implements event.Listener by forwarding the percentage.
func (s *Server) Progress(pct int) error {
	if err := s.w.Progress(pct); err != nil {
		return err
	}
	return s.w.Flush()
}

// Diagnostic implements event.Listener. Diagnostics beyond the configured
// limit are logged but not forwarded.
func (s *Server) Diagnostic(d event.Diagnostic) error {
	s.diags++
	var err error
	sent := false
	s.limit.Do(func() {
		sent = true
		err = s.w.Message(d.String())
	})
	if !sent {
		s.suppressed++
	}
	return err
}

// Serve sends the summary of tr and answers requests until the consumer sends
// a negative index, in which case it releases tr and returns nil. Any channel
// error is returned. If ch is an io.Closer it is closed when ctx is done, to
// unblock a pending read.
func (s *Server) Serve(ctx context.Context, tr *parser.Trace) error {
	defer s.watch(ctx)()
	return s.serve(ctx, tr)
}

func (s *Server) serve(ctx context.Context, tr *parser.Trace) error {
	s.tr = tr
	s.held = tr.Bytes()
	diag.EncodedBytes.Add(float64(s.held))
	defer s.release()

	if err := s.w.Summary(tr.Summary()); err != nil {
		return s.fail(ctx, `write summary`, err)
	}
	if err := s.w.Flush(); err != nil {
		return s.fail(ctx, `write summary`, err)
	}
	s.logger.Debug(`summary sent`,
		slog.Int(`signals`, len(tr.Signals)),
		slog.Int(`strings`, tr.Pool.Len()))

	for {
		idx, err := s.r.ReadRequest()
		if err != nil {
			return s.fail(ctx, `read request`, err)
		}
		if idx < 0 {
			s.logger.Info(`session ended by consumer`,
				slog.Int(`served`, s.served),
				slog.Int(`not_found`, s.missing))
			return nil
		}
		if err := s.reply(ctx, idx); err != nil {
			return s.fail(ctx, `write reply`, err)
		}
	}
}

func (s *Server) fail(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf(`producer: %v: %w`, what, err)
}

func (s *Server) reply(ctx context.Context, idx int32) error {
	start := time.Now()
	_, span := tracer.Start(ctx, `producer.Request`,
		trace.WithAttributes(attribute.Int(`signal`, int(idx))))
	defer span.End()
	defer func() {
		diag.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	evts, ok, err := s.tr.Events(int(idx))
	switch {
	case err != nil:
		// a buffer that fails to decode is never sent
		span.RecordError(err)
		span.SetStatus(codes.Error, `decode failed`)
		diag.RequestsServed.WithLabelValues(diag.OutcomeError).Inc()
		s.logger.Error(`signal buffer is corrupt`,
			slog.Int(`signal`, int(idx)),
			slog.String(`error`, err.Error()))
		s.missing++
		if err := s.w.NotFound(); err != nil {
			return err
		}
	case !ok:
		diag.RequestsServed.WithLabelValues(diag.OutcomeNotFound).Inc()
		s.logger.Warn(`request for unknown signal`,
			slog.Int(`signal`, int(idx)),
			slog.Int(`signals`, len(s.tr.Signals)))
		s.missing++
		if err := s.w.NotFound(); err != nil {
			return err
		}
	default:
		diag.RequestsServed.WithLabelValues(diag.OutcomeOK).Inc()
		span.SetAttributes(attribute.Int(`values`, len(evts)))
		s.served++
		if err := s.w.Events(evts); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *Server) release() {
	if s.tr == nil {
		return
	}
	diag.EncodedBytes.Sub(float64(s.held))
	s.tr.Release()
	s.tr, s.held = nil, 0
}
