// Package cli binds the flags shared by the command line tools and turns the
// resulting configuration into options for the parser, producer and consumer.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/imr/go-epic/consumer"
	"github.com/imr/go-epic/internal/config"
	"github.com/imr/go-epic/internal/diag"
	"github.com/imr/go-epic/parser"
	"github.com/imr/go-epic/producer"
)

// Flags holds the values of the shared flags. Flags the user set override the
// config file, the rest keep the file or default value.
type Flags struct {
	Config         string
	LogLevel       string
	LogFormat      string
	BufferSize     int
	MaxDigits      int
	FastPath       bool
	RequestTimeout time.Duration
	Spans          bool

	// Stderr receives log output, os.Stderr when nil.
	Stderr io.Writer
}

// Bind registers the shared flags on cmd.
func (f *Flags) Bind(cmd *cobra.Command) {
	def := config.Default()
	fs := cmd.Flags()
	fs.StringVar(&f.Config, `config`, ``, `YAML config file`)
	fs.StringVar(&f.LogLevel, `log-level`, def.Log.Level, `log level: debug, info, warn or error`)
	fs.StringVar(&f.LogFormat, `log-format`, def.Log.Format, `log format: text or json`)
	fs.IntVar(&f.BufferSize, `buffer-size`, def.Parser.BufferSize, `parser read buffer size in bytes`)
	fs.IntVar(&f.MaxDigits, `max-digits`, def.Parser.MaxDigits, `longest integer taken by the fast path`)
	fs.BoolVar(&f.FastPath, `fast-path`, def.Parser.FastPath, `recognize plain data lines without tokenizing`)
	fs.DurationVar(&f.RequestTimeout, `request-timeout`, def.Consumer.RequestTimeout, `bound on one signal request, 0 for none`)
	fs.BoolVar(&f.Spans, `spans`, false, `write OpenTelemetry spans to stderr as JSON`)
}

// Load reads the config file and applies the flags set on cmd over it.
func (f *Flags) Load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return config.Config{}, err
	}

	fs := cmd.Flags()
	if fs.Changed(`log-level`) {
		cfg.Log.Level = f.LogLevel
	}
	if fs.Changed(`log-format`) {
		cfg.Log.Format = f.LogFormat
	}
	if fs.Changed(`buffer-size`) {
		cfg.Parser.BufferSize = f.BufferSize
	}
	if fs.Changed(`max-digits`) {
		cfg.Parser.MaxDigits = f.MaxDigits
	}
	if fs.Changed(`fast-path`) {
		cfg.Parser.FastPath = f.FastPath
	}
	if fs.Changed(`request-timeout`) {
		cfg.Consumer.RequestTimeout = f.RequestTimeout
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Logger builds the logger for service from cfg.
func (f *Flags) Logger(cfg config.Config, service string) (*slog.Logger, error) {
	lc := cfg.LogConfig(service)
	lc.Output = f.Stderr
	return diag.NewLogger(lc)
}

// StartTracing exports spans to stderr when --spans is given. The returned
// function flushes them.
func (f *Flags) StartTracing(service string) (func() error, error) {
	if !f.Spans {
		return func() error { return nil }, nil
	}
	w := f.Stderr
	if w == nil {
		w = os.Stderr
	}
	shutdown, err := diag.StartTracing(w, service)
	if err != nil {
		return nil, err
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	}, nil
}

// ParserOptions converts the parser section.
func ParserOptions(cfg config.Config) []parser.Option {
	return []parser.Option{
		parser.WithBufferSize(cfg.Parser.BufferSize),
		parser.WithFastPath(cfg.Parser.FastPath),
		parser.WithMaxDigits(cfg.Parser.MaxDigits),
	}
}

// ProducerOptions converts the parser and producer sections.
func ProducerOptions(cfg config.Config, logger *slog.Logger) []producer.Option {
	return []producer.Option{
		producer.WithLogger(logger),
		producer.WithParserOptions(ParserOptions(cfg)...),
		producer.WithDiagnosticLimit(cfg.Producer.DiagnosticBurst, cfg.Producer.DiagnosticInterval),
	}
}

// ConsumerOptions converts the consumer section.
func ConsumerOptions(cfg config.Config, logger *slog.Logger) []consumer.Option {
	return []consumer.Option{
		consumer.WithLogger(logger),
		consumer.WithRequestTimeout(cfg.Consumer.RequestTimeout),
	}
}

// ServeMetrics exposes the Prometheus registry on addr under /metrics until
// ctx is done.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(`/metrics`, promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	})
	defer stop()

	logger.Info(`metrics listening`, slog.String(`addr`, addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf(`metrics: %w`, err)
	}
	return nil
}
