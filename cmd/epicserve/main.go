package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/imr/go-epic/internal/cli"
	"github.com/imr/go-epic/internal/config"
	"github.com/imr/go-epic/producer"
	"github.com/imr/go-epic/transport"
)

type server struct {
	flags       cli.Flags
	listen      string
	metricsAddr string

	// stdio is the channel used when no listen address is given
	stdio transport.Channel

	// ready, when set, receives the address being listened on
	ready func(addr net.Addr)

	path   string
	cfg    config.Config
	logger *slog.Logger
}

func newCommand(s *server) *cobra.Command {
	cmd := &cobra.Command{
		Use:          `epicserve [flags] TRACE`,
		Short:        `Serve the signals of an Epic trace to a consumer`,
		Long:         help,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, args[0])
		},
	}
	s.flags.Bind(cmd)
	fs := cmd.Flags()
	fs.StringVar(&s.listen, `listen`, ``, `serve clients at tcp://host:port or ws://host:port/path instead of stdio`)
	fs.StringVar(&s.metricsAddr, `metrics-addr`, ``, `expose Prometheus metrics at host:port/metrics`)
	return cmd
}

func (s *server) run(cmd *cobra.Command, path string) error {
	cfg, err := s.flags.Load(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed(`metrics-addr`) {
		cfg.Metrics.Addr = s.metricsAddr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := s.flags.Logger(cfg, `epicserve`)
	if err != nil {
		return err
	}
	flush, err := s.flags.StartTracing(`epicserve`)
	if err != nil {
		return err
	}
	defer flush()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s.path, s.cfg, s.logger = path, cfg, logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if addr := cfg.Metrics.Addr; addr != `` {
		g.Go(func() error { return cli.ServeMetrics(ctx, addr, logger) })
	}
	g.Go(func() error {
		// the metrics endpoint goes away with the last session
		defer cancel()
		if s.listen == `` {
			defer s.stdio.Close()
			return s.session(ctx, s.stdio)
		}
		return s.serve(ctx)
	})
	return g.Wait()
}

// session parses the trace afresh and serves it on ch until the consumer
// stops it.
func (s *server) session(ctx context.Context, ch transport.Channel) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	srv := producer.New(ch, cli.ProducerOptions(s.cfg, s.logger)...)
	return srv.Run(ctx, f, fi.Size())
}

func (s *server) serve(ctx context.Context) error {
	u, err := url.Parse(s.listen)
	if err != nil {
		return fmt.Errorf(`listen: %w`, err)
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, `tcp`, u.Host)
	if err != nil {
		return fmt.Errorf(`listen: %w`, err)
	}
	s.logger.Info(`listening`, slog.String(`url`, s.listen), slog.String(`addr`, l.Addr().String()))
	if s.ready != nil {
		s.ready(l.Addr())
	}

	switch u.Scheme {
	case `tcp`:
		return s.serveTCP(ctx, l)
	case `ws`:
		return s.serveWebSocket(ctx, l, u.Path)
	}
	l.Close()
	return fmt.Errorf(`listen: unsupported scheme %q`, u.Scheme)
}

func (s *server) serveTCP(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var sessions errgroup.Group
	defer sessions.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf(`accept: %w`, err)
		}
		sessions.Go(func() error {
			defer conn.Close()
			remote := conn.RemoteAddr().String()
			s.logger.Info(`client connected`, slog.String(`remote`, remote))
			if err := s.session(ctx, conn); err != nil {
				s.logger.Warn(`session failed`,
					slog.String(`remote`, remote),
					slog.String(`error`, err.Error()))
			}
			return nil
		})
	}
}

func (s *server) serveWebSocket(ctx context.Context, l net.Listener, path string) error {
	if path == `` {
		path = `/`
	}
	mux := http.NewServeMux()
	mux.Handle(path, transport.WebSocketHandler(s.logger, s.session))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	})
	defer stop()

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf(`serve: %w`, err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newCommand(&server{stdio: transport.Stdio()}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var help = `Parses an Epic trace and serves its signals to one consumer at a time.

Without --listen the consumer is the parent process, speaking on stdin and
stdout. Logs always go to stderr.

Example:

  # serve a trace to epiccat through a subprocess
  epiccat --producer epicserve sim.epic

  # serve every TCP client with its own session, with metrics
  epicserve --listen tcp://:7070 --metrics-addr :9090 sim.epic

  # serve WebSocket clients at /trace
  epicserve --listen ws://:7070/trace sim.epic
`
