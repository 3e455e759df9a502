package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	small     = `../../internal/tracefile/testdata/small.epic`
	malformed = `../../internal/tracefile/testdata/malformed.epic`
)

func run(t *testing.T, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	c := &catter{stdout: &out, stderr: &errOut}
	c.flags.Stderr = io.Discard
	c.source.Stdin = stdin

	cmd := newCommand(c)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestSummary(t *testing.T) {
	out, _, err := run(t, nil, small)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `small.epic`, lines[0])
	assert.Contains(t, lines[1], `signals`)
	assert.True(t, strings.HasSuffix(lines[1], ` 2`))
	assert.Contains(t, lines[2], `max time`)
	assert.Contains(t, lines[3], `time 1e-09 s, voltage 1 V, current 1 A`)
	assert.Contains(t, lines[4], `v a`)
	assert.Contains(t, lines[4], `[100, 300]`)
	assert.Contains(t, lines[5], `i i(b)`)
	assert.Contains(t, lines[5], `[-50, -50]`)
}

func TestDump(t *testing.T) {
	out, _, err := run(t, nil, `-d`, small)
	require.NoError(t, err)
	assert.Contains(t, out, "      0\t100\t100\n      10\t300\t300\n")
	assert.Contains(t, out, "      5\t-50\t-50\n")
}

func TestMessages(t *testing.T) {
	_, stderr, err := run(t, nil, malformed)
	require.NoError(t, err)
	assert.Equal(t, 9, strings.Count(stderr, `epiccat producer: line `))

	_, stderr, err = run(t, nil, `-q`, malformed)
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestStdin(t *testing.T) {
	f, err := os.Open(small)
	require.NoError(t, err)
	defer f.Close()

	out, _, err := run(t, f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "stdin\n"))
	assert.Contains(t, out, `i i(b)`)
}

func TestGenerate(t *testing.T) {
	gen, _, err := run(t, nil, `-g`, `--seed`, `3`, `--signals`, `5`, `--steps`, `50`, `--noise`)
	require.NoError(t, err)
	require.NotEmpty(t, gen)

	again, _, err := run(t, nil, `-g`, `--seed`, `3`, `--signals`, `5`, `--steps`, `50`, `--noise`)
	require.NoError(t, err)
	assert.Equal(t, gen, again, `generation should be deterministic`)

	path := filepath.Join(t.TempDir(), `gen.epic`)
	require.NoError(t, os.WriteFile(path, []byte(gen), 0o600))
	out, stderr, err := run(t, nil, `--fast-path=false`, path)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, out, "gen.epic\n")
	assert.Contains(t, out, `top.blk`)
}

func TestErrors(t *testing.T) {
	_, _, err := run(t, nil, `missing.epic`)
	assert.Error(t, err)

	_, _, err = run(t, nil, `--max-digits`, `12`, small)
	assert.Error(t, err)

	_, _, err = run(t, nil, `--producer`, `/nonexistent/epicserve`, small)
	assert.Error(t, err)

	_, _, err = run(t, nil, small, small)
	assert.Error(t, err)
}
