package parser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imr/go-epic/event"
	"github.com/imr/go-epic/internal/tracegen"
)

func TestReaders(t *testing.T) {
	g := &tracegen.Generator{Signals: 5, Steps: 400, Density: 0.5, Seed: 11, Noise: true, CRLF: true}
	var buf bytes.Buffer
	exp, err := g.Generate(&buf)
	require.NoError(t, err)

	readers := map[string]func(io.Reader) io.Reader{
		`OneByte`: iotest.OneByteReader,
		`Half`:    iotest.HalfReader,
		`DataErr`: iotest.DataErrReader,
	}
	for name, wrap := range readers {
		t.Run(name, func(t *testing.T) {
			tr, err := Parse(context.Background(), wrap(bytes.NewReader(buf.Bytes())),
				WithBufferSize(MinBufferSize))
			require.NoError(t, err)
			assert.Equal(t, exp.Lines, tr.Lines)
			for i := range tr.Signals {
				got := events(t, tr, i)
				assert.Equal(t, len(exp.Events[i]), len(got))
			}
		})
	}
}

func TestLineEndings(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{`LF`, "Epic\n.index v(a) 0 v\n1\n0 5\n2\n0 6\n"},
		{`CRLF`, "Epic\r\n.index v(a) 0 v\r\n1\r\n0 5\r\n2\r\n0 6\r\n"},
		{`CR`, "Epic\r.index v(a) 0 v\r1\r0 5\r2\r0 6\r"},
		{`Mixed`, "Epic\r\n.index v(a) 0 v\r1\n0 5\r\n2\r0 6"},
		{`NoFinalNewline`, "Epic\n.index v(a) 0 v\n1\n0 5\n2\n0 6"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			for _, p := range paths {
				tr, rec := parseString(t, test.src, p.opts...)
				assert.Empty(t, rec.diags, p.name)
				assert.Equal(t, 6, tr.Lines, p.name)
				assert.Equal(t, []int32{1, 5, 2, 6}, events(t, tr, 0), p.name)

				// feed one byte at a time so "\r\n" straddles every refill
				r := iotest.OneByteReader(strings.NewReader(test.src))
				tr, err := Parse(context.Background(), r, p.opts...)
				require.NoError(t, err)
				assert.Equal(t, 6, tr.Lines, p.name)
				assert.Equal(t, []int32{1, 5, 2, 6}, events(t, tr, 0), p.name)
			}
		})
	}
}

func TestBufferBoundaries(t *testing.T) {
	// place a sample line across the refill point at every offset
	for pad := 0; pad < 40; pad++ {
		src := "Epic\n.index v(a) 0 v\n;" + strings.Repeat(`-`, MinBufferSize-30+pad) +
			"\n123456789\n0 -987654321\n"
		tr, rec := parseString(t, src, WithBufferSize(MinBufferSize))
		require.Empty(t, rec.diags, `pad %d`, pad)
		require.Equal(t, []int32{123456789, -987654321}, events(t, tr, 0), `pad %d`, pad)
	}
}

func TestLongLine(t *testing.T) {
	src := "Epic\n.index v(a) 0 v\n; " + strings.Repeat(`x`, maxLineLength+10) + "\n1\n0 5\n"
	tr, rec := parseString(t, src)
	assert.Equal(t, []event.DiagnosticKind{event.DiagMalformed}, rec.kinds())
	assert.Equal(t, 3, rec.diags[0].Line)
	assert.Equal(t, []int32{1, 5}, events(t, tr, 0))

	t.Run(`AtEOF`, func(t *testing.T) {
		_, rec := parseString(t, "Epic\n"+strings.Repeat(`7`, maxLineLength+1))
		assert.Equal(t, []event.DiagnosticKind{event.DiagMalformed}, rec.kinds())
	})
}

func TestProgress(t *testing.T) {
	g := &tracegen.Generator{Signals: 4, Steps: 3000, Density: 0.5, Seed: 5}
	var buf bytes.Buffer
	_, err := g.Generate(&buf)
	require.NoError(t, err)

	rec := new(recorder)
	_, err = Parse(context.Background(), &buf,
		WithListener(rec), WithSize(int64(buf.Len())), WithBufferSize(1024))
	require.NoError(t, err)

	require.NotEmpty(t, rec.progress)
	assert.Equal(t, 0, rec.progress[0])
	assert.Equal(t, 100, rec.progress[len(rec.progress)-1])
	for i := 1; i < len(rec.progress); i++ {
		assert.Greater(t, rec.progress[i], rec.progress[i-1])
	}
	assert.Greater(t, len(rec.progress), 10)
}

func TestParseErrors(t *testing.T) {
	t.Run(`Read`, func(t *testing.T) {
		boom := errors.New(`boom`)
		_, err := Parse(context.Background(), iotest.ErrReader(boom))
		assert.ErrorIs(t, err, boom)
	})
	t.Run(`Canceled`, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Parse(ctx, strings.NewReader("Epic\n"))
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run(`Listener`, func(t *testing.T) {
		tests := []struct {
			name string
			l    event.Listener
		}{
			{`String`, failing{str: true}},
			{`Progress`, failing{progress: true}},
			{`Diagnostic`, failing{diag: true}},
		}
		for _, test := range tests {
			_, err := Parse(context.Background(),
				strings.NewReader(".index v(a) 0 v\n.bogus\n"), WithListener(test.l))
			assert.ErrorIs(t, err, errListener, test.name)
		}
	})
}

var errListener = errors.New(`listener failed`)

type failing struct {
	str, progress, diag bool
}

func (f failing) NewString(int32, string) error {
	if f.str {
		return errListener
	}
	return nil
}

func (f failing) Progress(int) error {
	if f.progress {
		return errListener
	}
	return nil
}

func (f failing) Diagnostic(event.Diagnostic) error {
	if f.diag {
		return errListener
	}
	return nil
}

func TestScanUint(t *testing.T) {
	tests := []struct {
		in  string
		max int
		v   int64
		n   int
	}{
		{``, 9, 0, 0},
		{`x`, 9, 0, 0},
		{`7`, 9, 7, 1},
		{`123 4`, 9, 123, 3},
		{`123456789`, 9, 123456789, 9},
		{`1234567890`, 9, 0, 0},
		{`123`, 2, 0, 0},
		{`12\n`, 2, 12, 2},
	}
	for _, test := range tests {
		v, n := scanUint([]byte(test.in), test.max)
		assert.Equal(t, test.v, v, test.in)
		assert.Equal(t, test.n, n, test.in)
	}
}
