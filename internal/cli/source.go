package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	epic "github.com/imr/go-epic"
	"github.com/imr/go-epic/consumer"
	"github.com/imr/go-epic/internal/config"
	"github.com/imr/go-epic/transport"
)

// Source selects where a consumer tool gets its trace from: parsed in this
// process, served by a spawned producer, or served by a remote producer.
type Source struct {
	Producer  string
	Connect   string
	Separator string

	// Stdin is read when the trace path is "-", os.Stdin when nil.
	Stdin io.Reader
}

// Bind registers the source flags on cmd.
func (s *Source) Bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&s.Producer, `producer`, ``, `run this producer executable with the trace path instead of parsing in-process`)
	fs.StringVar(&s.Connect, `connect`, ``, `connect to a producer at tcp://host:port or ws://host:port/path`)
	fs.StringVar(&s.Separator, `separator`, ``, `hierarchy separator used to join signal names (default: the trace's .hier_separator in-process, "." otherwise)`)
}

// NeedsPath reports whether a trace path argument is required.
func (s *Source) NeedsPath() bool {
	return s.Connect == ``
}

// Open returns a session for the trace at path. The returned session must be
// closed with the returned function, which also stops an in-process or spawned
// producer.
func (s *Source) Open(
	ctx context.Context,
	path string,
	cfg config.Config,
	logger *slog.Logger,
	opts ...consumer.Option,
) (*consumer.Session, func() error, error) {
	if s.Producer != `` && s.Connect != `` {
		return nil, nil, errors.New(`--producer and --connect are exclusive`)
	}
	copts := ConsumerOptions(cfg, logger)
	if s.Separator != `` {
		copts = append(copts, consumer.WithSeparator(s.Separator))
	}
	copts = append(copts, opts...)

	switch {
	case s.Connect != ``:
		ch, err := transport.Dial(ctx, s.Connect)
		if err != nil {
			return nil, nil, err
		}
		sess, err := consumer.Open(ctx, ch, copts...)
		if err != nil {
			return nil, nil, err
		}
		return sess, sess.Close, nil
	case s.Producer != ``:
		p, err := transport.Spawn(ctx, s.Producer, path)
		if err != nil {
			return nil, nil, err
		}
		sess, err := consumer.Open(ctx, p, copts...)
		if err != nil {
			// the exit status of the producer says why the header broke off
			if perr := p.Close(); perr != nil {
				return nil, nil, errors.Join(err, perr)
			}
			return nil, nil, err
		}
		return sess, sess.Close, nil
	}

	eopts := []epic.Option{
		epic.WithLogger(logger),
		epic.WithProducerOptions(ProducerOptions(cfg, logger)...),
		epic.WithConsumerOptions(copts...),
	}
	var (
		sess *epic.Session
		err  error
	)
	if path == `-` {
		stdin := s.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		sess, err = epic.OpenReader(ctx, stdin, 0, eopts...)
	} else {
		sess, err = epic.Open(ctx, path, eopts...)
	}
	if err != nil {
		return nil, nil, err
	}
	return sess.Session, sess.Close, nil
}
