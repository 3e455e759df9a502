package producer

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imr/go-epic/event"
	"github.com/imr/go-epic/internal/diag"
	"github.com/imr/go-epic/parser"
	"github.com/imr/go-epic/wire"
)

const example = ".index v(a) 0 v\n.index i(b) 1 i\n.time_resolution 1\n" +
	"0\n0 100\n5\n1 -50\n10\n0 300\n"

type header struct {
	strs     []string
	progress []int
	msgs     []string
	sum      *event.Summary
}

func readHeader(r *wire.Reader) (*header, error) {
	h := new(header)
	for {
		tag, err := r.ReadTag()
		if err != nil {
			return h, err
		}
		switch tag {
		case wire.TagMessage:
			s, err := r.ReadUTF()
			if err != nil {
				return h, err
			}
			h.msgs = append(h.msgs, s)
		case wire.TagString:
			s, err := r.ReadUTF()
			if err != nil {
				return h, err
			}
			h.strs = append(h.strs, s)
		case wire.TagProgress:
			p, err := r.ReadProgress()
			if err != nil {
				return h, err
			}
			h.progress = append(h.progress, p)
		case wire.TagSummary:
			h.sum, err = r.ReadSummary()
			return h, err
		}
	}
}

type session struct {
	conn net.Conn
	r    *wire.Reader
	w    *wire.Writer
	done chan error
}

func start(t *testing.T, ctx context.Context, src string, opts ...Option) *session {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	srv := New(a, append([]Option{WithLogger(diag.Discard())}, opts...)...)
	s := &session{conn: b, r: wire.NewReader(b), w: wire.NewWriter(b), done: make(chan error, 1)}
	go func() {
		s.done <- srv.Run(ctx, strings.NewReader(src), int64(len(src)))
	}()
	return s
}

func (s *session) request(t *testing.T, idx int32) ([]int32, bool) {
	t.Helper()
	require.NoError(t, s.w.Request(idx))
	require.NoError(t, s.w.Flush())
	evts, ok, err := s.r.ReadEvents()
	require.NoError(t, err)
	return evts, ok
}

func (s *session) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal(`producer did not return`)
		return nil
	}
}

func TestServe(t *testing.T) {
	s := start(t, context.Background(), example)

	h, err := readHeader(s.r)
	require.NoError(t, err)
	assert.Equal(t, []string{``, `a`, `i(b)`}, h.strs)
	require.NotEmpty(t, h.progress)
	assert.Equal(t, 100, h.progress[len(h.progress)-1])
	require.Len(t, h.msgs, 1, `unrecognized banner`)
	assert.Contains(t, h.msgs[0], `line 1`)

	require.NotNil(t, h.sum)
	require.NoError(t, h.sum.Validate(len(h.strs)))
	assert.Equal(t, int32(10), h.sum.MaxTime)
	assert.Equal(t, 1e-9, h.sum.Resolutions.Time)
	require.Len(t, h.sum.Signals, 2)
	assert.Equal(t, event.KindCurrent, h.sum.Signals[1].Kind)
	assert.Equal(t, int32(100), h.sum.Signals[0].Min)
	assert.Equal(t, int32(300), h.sum.Signals[0].Max)

	first, ok := s.request(t, 0)
	require.True(t, ok)
	assert.Equal(t, []int32{0, 100, 10, 300}, first)

	evts, ok := s.request(t, 1)
	require.True(t, ok)
	assert.Equal(t, []int32{5, -50}, evts)

	again, ok := s.request(t, 0)
	require.True(t, ok)
	assert.Equal(t, first, again)

	_, ok = s.request(t, 2)
	assert.False(t, ok)
	_, ok = s.request(t, 1<<30)
	assert.False(t, ok)

	// still serving after a miss
	evts, ok = s.request(t, 1)
	require.True(t, ok)
	assert.Equal(t, []int32{5, -50}, evts)

	require.NoError(t, s.w.Request(wire.Stop))
	require.NoError(t, s.w.Flush())
	require.NoError(t, s.wait(t))
}

func TestTermination(t *testing.T) {
	for _, idx := range []int32{-1, -2, -1 << 31} {
		s := start(t, context.Background(), example)
		_, err := readHeader(s.r)
		require.NoError(t, err)

		require.NoError(t, s.w.Request(idx))
		require.NoError(t, s.w.Flush())
		require.NoError(t, s.wait(t))

		// nothing answers once the serve loop is gone
		s.conn.SetDeadline(time.Now().Add(50 * time.Millisecond))
		require.NoError(t, s.w.Request(0))
		assert.Error(t, s.w.Flush())
	}
}

func TestDiagnosticLimit(t *testing.T) {
	src := "Epic\n" + strings.Repeat(".bogus\n", 500) + ".index v(a) 0 v\n"
	s := start(t, context.Background(), src, WithDiagnosticLimit(10, time.Hour))

	h, err := readHeader(s.r)
	require.NoError(t, err)
	require.Len(t, h.msgs, 11)
	assert.Equal(t, `line 2: unknown directive ".bogus"`, h.msgs[0])
	assert.Equal(t, `490 of 500 diagnostics were not forwarded`, h.msgs[10])
	assert.Len(t, h.sum.Signals, 1)

	require.NoError(t, s.w.Request(wire.Stop))
	require.NoError(t, s.w.Flush())
	require.NoError(t, s.wait(t))
}

func TestParserOptions(t *testing.T) {
	s := start(t, context.Background(), example,
		WithParserOptions(parser.WithFastPath(false), parser.WithBufferSize(parser.MinBufferSize)))
	_, err := readHeader(s.r)
	require.NoError(t, err)
	evts, ok := s.request(t, 0)
	require.True(t, ok)
	assert.Equal(t, []int32{0, 100, 10, 300}, evts)
	require.NoError(t, s.w.Request(wire.Stop))
	require.NoError(t, s.w.Flush())
	require.NoError(t, s.wait(t))
}

func TestChannelFailure(t *testing.T) {
	s := start(t, context.Background(), example)
	_, err := readHeader(s.r)
	require.NoError(t, err)

	// consumer vanishes without sending a stop request
	s.conn.Close()
	err = s.wait(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := start(t, ctx, example)
	_, err := readHeader(s.r)
	require.NoError(t, err)

	cancel()
	err = s.wait(t)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFailure(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	boom := errors.New(`disk on fire`)
	srv := New(a, WithLogger(diag.Discard()))
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(context.Background(), iotest.ErrReader(boom), 0)
	}()

	r := wire.NewReader(b)
	tag, err := r.ReadTag()
	require.NoError(t, err)
	require.Equal(t, wire.TagMessage, tag)
	msg, err := r.ReadUTF()
	require.NoError(t, err)
	assert.Contains(t, msg, `disk on fire`)
	assert.ErrorIs(t, <-done, boom)
}

func TestServeParsed(t *testing.T) {
	tr, err := parser.Parse(context.Background(), strings.NewReader(example))
	require.NoError(t, err)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		done <- New(a, WithLogger(diag.Discard())).Serve(context.Background(), tr)
	}()

	r, w := wire.NewReader(b), wire.NewWriter(b)
	tag, err := r.ReadTag()
	require.NoError(t, err)
	require.Equal(t, wire.TagSummary, tag)
	_, err = r.ReadSummary()
	require.NoError(t, err)

	require.NoError(t, w.Request(1))
	require.NoError(t, w.Flush())
	evts, ok, err := r.ReadEvents()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int32{5, -50}, evts)

	require.NoError(t, w.Request(wire.Stop))
	require.NoError(t, w.Flush())
	require.NoError(t, <-done)
	assert.Empty(t, tr.Signals, `trace released`)
}

func TestParsed(t *testing.T) {
	var sep string
	var signals int
	s := start(t, context.Background(), ".hier_separator /\n"+example,
		WithParsed(func(tr *parser.Trace) {
			sep, signals = tr.Separator, len(tr.Signals)
		}))
	h, err := readHeader(s.r)
	require.NoError(t, err)
	require.NotNil(t, h.sum)

	// the hook runs before the summary is written
	assert.Equal(t, `/`, sep)
	assert.Equal(t, 2, signals)

	require.NoError(t, s.w.Request(wire.Stop))
	require.NoError(t, s.w.Flush())
	require.NoError(t, s.wait(t))
}
