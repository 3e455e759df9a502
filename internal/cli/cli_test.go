package cli

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imr/go-epic/consumer"
	"github.com/imr/go-epic/internal/diag"
)

func command(t *testing.T, args ...string) (*cobra.Command, *Flags) {
	t.Helper()
	f := &Flags{Stderr: io.Discard}
	cmd := &cobra.Command{Use: `test`, RunE: func(*cobra.Command, []string) error { return nil }}
	f.Bind(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd, f
}

func TestLoadDefaults(t *testing.T) {
	cmd, f := command(t)
	cfg, err := f.Load(cmd)
	require.NoError(t, err)
	assert.Equal(t, 64<<10, cfg.Parser.BufferSize)
	assert.True(t, cfg.Parser.FastPath)
	assert.Equal(t, `info`, cfg.Log.Level)
	assert.Len(t, ParserOptions(cfg), 3)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), `epic.yaml`)
	yml := "parser:\n  buffer_size: 4096\n  max_digits: 4\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cmd, f := command(t, `--config`, path, `--max-digits`, `6`, `--fast-path=false`,
		`--request-timeout`, `3s`)
	cfg, err := f.Load(cmd)
	require.NoError(t, err)

	// file values survive unless the flag was given
	assert.Equal(t, 4096, cfg.Parser.BufferSize)
	assert.Equal(t, `debug`, cfg.Log.Level)
	assert.Equal(t, 6, cfg.Parser.MaxDigits)
	assert.False(t, cfg.Parser.FastPath)
	assert.Equal(t, 3*time.Second, cfg.Consumer.RequestTimeout)

	logger, err := f.Logger(cfg, `test`)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Len(t, ProducerOptions(cfg, logger), 3)
	assert.Len(t, ConsumerOptions(cfg, logger), 2)
}

func TestLoadInvalid(t *testing.T) {
	t.Run(`Flag`, func(t *testing.T) {
		cmd, f := command(t, `--buffer-size`, `10`)
		_, err := f.Load(cmd)
		assert.Error(t, err)
	})
	t.Run(`LogLevel`, func(t *testing.T) {
		cmd, f := command(t, `--log-level`, `loud`)
		_, err := f.Load(cmd)
		assert.Error(t, err)
	})
	t.Run(`MissingFile`, func(t *testing.T) {
		cmd, f := command(t, `--config`, filepath.Join(t.TempDir(), `nope.yaml`))
		_, err := f.Load(cmd)
		assert.Error(t, err)
	})
}

func TestServeMetrics(t *testing.T) {
	l, err := net.Listen(`tcp`, `127.0.0.1:0`)
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeMetrics(ctx, addr, diag.Discard()) }()

	var body string
	require.Eventually(t, func() bool {
		res, err := http.Get(`http://` + addr + `/metrics`)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		b, _ := io.ReadAll(res.Body)
		body = string(b)
		return res.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, `go_goroutines`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(`metrics server did not stop`)
	}
}

func consumerProgress(out *[]int) consumer.Option {
	return consumer.WithProgress(func(pct int) { *out = append(*out, pct) })
}
