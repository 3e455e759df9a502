package parser

import (
	"bytes"
	"strconv"

	"github.com/imr/go-epic/event"
)

// slow reads one whole line and handles it by tokenizing.
func (s *State) slow() {
	s.line++
	s.tr.Lines++
	s.tr.SlowLines++
	if line, ok := s.readLine(); ok {
		s.handle(line)
	}
}

// readLine returns the line at the read position without its terminator,
// refilling the buffer as needed. A line ends at "\n", "\r\n", "\r" or the end
// of input. The returned slice is valid until the next refill.
func (s *State) readLine() ([]byte, bool) {
	s.scratch = s.scratch[:0]
	long := false
	for {
		b := s.buf[s.pos:s.end]
		if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
			s.pos += i + 1
			if b[i] == '\r' {
				if i+1 < len(b) {
					if b[i+1] == '\n' {
						s.pos++
					}
				} else {
					s.skipLF = true
				}
			}
			if long || len(s.scratch)+i > maxLineLength {
				s.diagnose(event.DiagMalformed, `line longer than %d bytes`, maxLineLength)
				return nil, false
			}
			if len(s.scratch) == 0 {
				return b[:i], true
			}
			s.scratch = append(s.scratch, b[:i]...)
			return s.scratch, true
		}

		if !long && len(s.scratch)+len(b) > maxLineLength {
			long = true
			s.scratch = s.scratch[:0]
		}
		if !long {
			s.scratch = append(s.scratch, b...)
		}
		s.pos = s.end
		if s.eof {
			if long {
				s.diagnose(event.DiagMalformed, `line longer than %d bytes`, maxLineLength)
				return nil, false
			}
			return s.scratch, true
		}
		s.fill()
		if s.err != nil {
			return nil, false
		}
	}
}

// handle dispatches one complete line.
func (s *State) handle(line []byte) {
	if len(line) == 0 {
		return
	}
	switch line[0] {
	case ';', ' ', '\t', '\f', '\v':
		return
	}

	if !s.started {
		s.started = true
		b := event.RecognizeBanner(string(line))
		s.tr.Banner = b
		if b.Valid() {
			s.opts.logger.Debug(`trace banner`, `banner`, b.String())
			return
		}
		s.diagnose(event.DiagBanner, `unrecognized banner %q`, clip(line))
		if line[0] != '.' && !isDigit(line[0]) {
			return
		}
	}

	if line[0] == '.' {
		s.directive(line)
		return
	}
	s.data(line)
}

// data handles a time or sample line.
func (s *State) data(line []byte) {
	f := bytes.Fields(line)
	switch len(f) {
	case 1:
		t, err := strconv.ParseUint(string(f[0]), 10, 31)
		if err != nil {
			s.diagnose(event.DiagMalformed, `invalid time %q`, clip(f[0]))
			return
		}
		s.advance(int32(t))
	case 2:
		raw, err := strconv.ParseUint(string(f[0]), 10, 31)
		if err != nil {
			s.diagnose(event.DiagMalformed, `invalid signal index %q`, clip(f[0]))
			return
		}
		v, err := strconv.ParseInt(string(f[1]), 10, 32)
		if err != nil {
			s.diagnose(event.DiagMalformed, `invalid value %q`, clip(f[1]))
			return
		}
		s.sample(int32(raw), int32(v))
	default:
		s.diagnose(event.DiagMalformed, `expected 1 or 2 fields, got %d`, len(f))
	}
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// clip shortens b for use in a diagnostic.
func clip(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + `...`
	}
	return string(b)
}
