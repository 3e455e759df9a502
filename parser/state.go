package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/imr/go-epic/event"
	"github.com/imr/go-epic/internal/diag"
)

// Raw indexes below this are kept in a slice, others in a map.
const maxDenseRaw = 1 << 16

// State holds everything that changes while a trace is read. Nothing is shared
// between two States, so traces may be parsed concurrently.
type State struct {
	ctx  context.Context
	r    io.Reader
	opts *options
	tr   *Trace

	buf      []byte
	pos, end int
	eof      bool
	read     int64

	// line is the 1 based number of the line being handled.
	line int

	// Time is the time cursor. It never decreases.
	Time int32

	// started is set once the banner line has been seen.
	started bool

	// skipLF is set when a line ended in '\r' so a following '\n' is part of
	// the same line ending.
	skipLF bool

	// scratch assembles lines which straddle a refill.
	scratch []byte

	dense   []*Signal
	sparse  map[int32]*Signal
	percent int
	err     error
}

func newState(ctx context.Context, r io.Reader, o *options) *State {
	s := &State{
		ctx:     ctx,
		r:       r,
		opts:    o,
		buf:     make([]byte, o.bufferSize),
		percent: -1,
	}
	s.tr = &Trace{
		Resolutions: event.DefaultResolutions,
		Separator:   DefaultSeparator,
	}
	s.tr.Pool = event.NewStringPool(s.onString)
	return s
}

// Err returns the first error which stopped the parse.
func (s *State) Err() error {
	return s.err
}

func (s *State) setErr(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *State) onString(id int32, str string) {
	if err := s.opts.listener.NewString(id, str); err != nil {
		s.setErr(fmt.Errorf(`listener: %w`, err))
	}
}

// margin is the number of buffered bytes wanted before the fast path runs,
// enough for the longest line it can match.
func (s *State) margin() int {
	return 2*s.opts.maxDigits + 4
}

func (s *State) run() (*Trace, error) {
	margin := s.margin()
	for s.err == nil {
		if !s.eof && s.end-s.pos < margin {
			s.fill()
			if s.err != nil {
				break
			}
		}
		if s.skipLF && s.pos < s.end {
			if s.buf[s.pos] == '\n' {
				s.pos++
			}
			s.skipLF = false
			continue
		}
		if s.pos >= s.end {
			if s.eof {
				break
			}
			continue
		}
		if s.started && s.opts.fastPath && s.fast() {
			continue
		}
		s.slow()
	}
	if s.err != nil {
		return nil, s.err
	}
	for _, sig := range s.tr.Signals {
		sig.Events.Compact()
	}
	if s.percent != 100 {
		s.percent = 100
		if err := s.opts.listener.Progress(100); err != nil {
			return nil, fmt.Errorf(`listener: %w`, err)
		}
	}
	return s.tr, nil
}

// fill moves unread bytes to the front of the buffer and reads more. It sets
// eof when the reader is exhausted.
func (s *State) fill() {
	if err := s.ctx.Err(); err != nil {
		s.setErr(err)
		return
	}
	s.progress()

	if s.pos > 0 {
		s.end = copy(s.buf, s.buf[s.pos:s.end])
		s.pos = 0
	}
	for s.end < len(s.buf) {
		n, err := s.r.Read(s.buf[s.end:])
		s.end += n
		s.read += int64(n)
		if errors.Is(err, io.EOF) {
			s.eof = true
			return
		}
		if err != nil {
			s.setErr(fmt.Errorf(`read trace: %w`, err))
			return
		}
		if n > 0 {
			return
		}
	}
}

// progress reports the percentage of input consumed when it changes.
func (s *State) progress() {
	if s.opts.size <= 0 {
		return
	}
	consumed := s.read - int64(s.end-s.pos)
	pct := int(consumed * 100 / s.opts.size)
	if pct > 99 {
		pct = 99
	}
	if pct <= s.percent {
		return
	}
	s.percent = pct
	if err := s.opts.listener.Progress(pct); err != nil {
		s.setErr(fmt.Errorf(`listener: %w`, err))
	}
}

func (s *State) diagnose(kind event.DiagnosticKind, format string, args ...any) {
	d := event.Diagnostic{Line: s.line, Kind: kind, Msg: fmt.Sprintf(format, args...)}
	s.tr.Diagnostics++
	diag.Diagnostics.WithLabelValues(kind.String()).Inc()
	s.opts.logger.Debug(`trace diagnostic`,
		slog.Int(`line`, d.Line),
		slog.String(`kind`, kind.String()),
		slog.String(`msg`, d.Msg))
	if err := s.opts.listener.Diagnostic(d); err != nil {
		s.setErr(fmt.Errorf(`listener: %w`, err))
	}
}

// lookup returns the signal declared with raw index raw, or nil.
func (s *State) lookup(raw int32) *Signal {
	if raw >= 0 && int(raw) < len(s.dense) {
		return s.dense[raw]
	}
	return s.sparse[raw]
}

func (s *State) declare(sig *Signal) {
	sig.Index = len(s.tr.Signals)
	s.tr.Signals = append(s.tr.Signals, sig)

	raw := sig.Raw
	if raw >= 0 && raw < maxDenseRaw {
		if int(raw) >= len(s.dense) {
			n := int(raw) + 1
			if n < 2*len(s.dense) {
				n = 2 * len(s.dense)
			}
			if n > maxDenseRaw {
				n = maxDenseRaw
			}
			grown := make([]*Signal, n)
			copy(grown, s.dense)
			s.dense = grown
		}
		s.dense[raw] = sig
		return
	}
	if s.sparse == nil {
		s.sparse = make(map[int32]*Signal)
	}
	s.sparse[raw] = sig
}

// advance moves the time cursor to t.
func (s *State) advance(t int32) {
	if t < s.Time {
		s.diagnose(event.DiagMalformed, `time %d is before current time %d`, t, s.Time)
		return
	}
	s.Time = t
	if t > s.tr.MaxTime {
		s.tr.MaxTime = t
	}
}

// sample records value for raw index raw at the current time.
func (s *State) sample(raw, value int32) {
	sig := s.lookup(raw)
	if sig == nil {
		s.diagnose(event.DiagUnknownSignal, `unknown signal index %d`, raw)
		return
	}
	if err := sig.Events.PutEvent(s.Time, value); err != nil {
		s.setErr(fmt.Errorf(`signal %d: %w`, sig.Index, err))
		return
	}
	sig.Observe(value)
}
