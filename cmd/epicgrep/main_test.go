package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const small = `../../internal/tracefile/testdata/small.epic`

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	g := &grepper{stdout: &out, stderr: &errOut}
	g.flags.Stderr = io.Discard

	cmd := newCommand(g)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestGrep(t *testing.T) {
	tests := []struct {
		name string
		args []string
		exp  string
	}{
		{`All`, nil, "a\t0\t100\na\t10\t300\ni(b)\t5\t-50\n"},
		{`Match`, []string{`-r`, `^a$`}, "a\t0\t100\na\t10\t300\n"},
		{`Invert`, []string{`-v`, `-r`, `^a$`}, "i(b)\t5\t-50\n"},
		{`NoMatch`, []string{`-r`, `zzz`}, ``},
		{`Spans`, []string{`--spans`, `-r`, `^a$`}, "a\t0\t100\na\t10\t300\n"},
		{`Scaled`, []string{`--scaled`, `-r`, `b`}, "i(b)\t5e-09\t-50\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out, _, err := run(t, append(test.args, small)...)
			require.NoError(t, err)
			assert.Equal(t, test.exp, out)
		})
	}
}

func TestInfo(t *testing.T) {
	_, stderr, err := run(t, `-r`, `^a$`, small)
	require.NoError(t, err)
	assert.Contains(t, stderr, "epicgrep filtered: i(b)\n")

	_, stderr, err = run(t, `-q`, `-r`, `^a$`, small)
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestErrors(t *testing.T) {
	_, _, err := run(t, `-r`, `(`, small)
	assert.Error(t, err)

	_, _, err = run(t, `missing.epic`)
	assert.Error(t, err)
}
