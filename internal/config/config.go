// Package config loads the settings shared by the epic commands from an
// optional YAML file layered over defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/imr/go-epic/internal/diag"
)

// Config is the top level configuration.
type Config struct {
	Parser   ParserConfig   `yaml:"parser"`
	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ParserConfig tunes the trace parser.
type ParserConfig struct {
	// BufferSize is the size of the refillable read buffer in bytes.
	BufferSize int `yaml:"buffer_size" validate:"gte=256,lte=67108864"`

	// FastPath enables the byte level recognizer for plain data lines.
	FastPath bool `yaml:"fast_path"`

	// MaxDigits bounds each integer accepted by the fast path. Longer numbers
	// are handled by the tokenizer.
	MaxDigits int `yaml:"max_digits" validate:"gte=1,lte=9"`
}

// ProducerConfig tunes the channel server.
type ProducerConfig struct {
	// DiagnosticBurst diagnostics are forwarded to the consumer before
	// throttling starts.
	DiagnosticBurst int `yaml:"diagnostic_burst" validate:"gte=0"`

	// DiagnosticInterval is the minimum spacing of forwarded diagnostics once
	// the burst is spent.
	DiagnosticInterval time.Duration `yaml:"diagnostic_interval" validate:"gte=0"`
}

// ConsumerConfig tunes consumer sessions.
type ConsumerConfig struct {
	// RequestTimeout bounds one signal round trip. Zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, empty to disable.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Parser: ParserConfig{
			BufferSize: 64 << 10,
			FastPath:   true,
			MaxDigits:  9,
		},
		Producer: ProducerConfig{
			DiagnosticBurst:    100,
			DiagnosticInterval: time.Second,
		},
		Log: LogConfig{
			Level:  `info`,
			Format: `text`,
		},
	}
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf(`config: %v fails %q (value %v)`,
				fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf(`config: %w`, err)
	}
	return nil
}

// LogConfig converts the log section for diag.NewLogger.
func (c *Config) LogConfig(service string) diag.LogConfig {
	return diag.LogConfig{Level: c.Log.Level, Format: c.Log.Format, Service: service}
}

// Parse decodes YAML data over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf(`config: %w`, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == `` {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf(`config: %w`, err)
	}
	return Parse(data)
}
