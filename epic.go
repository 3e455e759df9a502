// Package epic opens Epic waveform traces. Open runs the parser and producer
// in-process and returns a session to fetch signal events from.
//
// The packages below it can be used on their own:
//
//	parser    reads trace text into compact per-signal buffers
//	producer  serves a parsed trace over a channel
//	consumer  reads the header from a channel and fetches signals on demand
//	transport connects the two over pipes, subprocesses, TCP or WebSockets
package epic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/imr/go-epic/consumer"
	"github.com/imr/go-epic/internal/diag"
	"github.com/imr/go-epic/parser"
	"github.com/imr/go-epic/producer"
	"github.com/imr/go-epic/transport"
)

type options struct {
	logger   *slog.Logger
	parser   []parser.Option
	producer []producer.Option
	consumer []consumer.Option
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger of both sides, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithParserOptions are passed to the parser.
func WithParserOptions(opts ...parser.Option) Option {
	return func(o *options) { o.parser = append(o.parser, opts...) }
}

// WithProducerOptions are passed to the producer.
func WithProducerOptions(opts ...producer.Option) Option {
	return func(o *options) { o.producer = append(o.producer, opts...) }
}

// WithConsumerOptions are passed to the consumer session.
func WithConsumerOptions(opts ...consumer.Option) Option {
	return func(o *options) { o.consumer = append(o.consumer, opts...) }
}

// Session is a consumer session whose producer runs in this process.
type Session struct {
	*consumer.Session
	g    *errgroup.Group
	once sync.Once
	err  error
}

// Open parses the trace at path and returns a session serving it. Open returns
// once the whole file has been parsed.
func Open(ctx context.Context, path string, opts ...Option) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf(`epic: %w`, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf(`epic: %w`, err)
	}
	return open(ctx, f, fi.Size(), opts...)
}

// OpenReader is like Open for a trace read from r. The size, when positive,
// is used for progress reporting. If r is an io.Closer it is closed once
// parsing ends.
func OpenReader(ctx context.Context, r io.Reader, size int64, opts ...Option) (*Session, error) {
	return open(ctx, r, size, opts...)
}

func open(ctx context.Context, r io.Reader, size int64, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := diag.OrDefault(o.logger)

	// the separator is not on the wire, hand it over in-process
	var sep atomic.Pointer[string]
	pa, ca := transport.Pipe()
	popts := append([]producer.Option{
		producer.WithLogger(logger.With(slog.String(`side`, `producer`))),
		producer.WithParserOptions(o.parser...),
		producer.WithParsed(func(tr *parser.Trace) { sep.Store(&tr.Separator) }),
	}, o.producer...)
	srv := producer.New(pa, popts...)

	// the producer outlives the context of the call that opened it
	var g errgroup.Group
	g.Go(func() error {
		defer pa.Close()
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		return srv.Run(context.WithoutCancel(ctx), r, size)
	})

	copts := append([]consumer.Option{
		consumer.WithLogger(logger.With(slog.String(`side`, `consumer`))),
		consumer.WithSeparatorFunc(func() string {
			if p := sep.Load(); p != nil {
				return *p
			}
			return ``
		}),
	}, o.consumer...)
	sess, err := consumer.Open(ctx, ca, copts...)
	if err != nil {
		// a failed parse says more than the truncated header
		pa.Close()
		if werr := g.Wait(); werr != nil && ctx.Err() == nil {
			return nil, fmt.Errorf(`epic: %w`, werr)
		}
		return nil, fmt.Errorf(`epic: %w`, err)
	}
	return &Session{Session: sess, g: &g}, nil
}

// Close ends the session and waits for the producer to release the trace.
func (s *Session) Close() error {
	err := s.Session.Close()
	werr := s.wait()
	if err != nil {
		return err
	}
	// a broken session took the channel down under the producer
	if s.Err() != nil {
		return nil
	}
	return werr
}

func (s *Session) wait() error {
	s.once.Do(func() {
		if err := s.g.Wait(); err != nil {
			s.err = fmt.Errorf(`epic: %w`, err)
		}
	})
	return s.err
}
