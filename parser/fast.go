package parser

// fast matches `<uint>\n` or `<uint> [-]<uint>\n` at the read position. It
// consumes nothing and returns false when the bytes do not have exactly that
// shape, when a number is longer than maxDigits, or when the line is not
// entirely buffered.
func (s *State) fast() bool {
	b := s.buf[s.pos:s.end]
	max := s.opts.maxDigits

	a, n := scanUint(b, max)
	if n == 0 || n >= len(b) {
		return false
	}
	switch b[n] {
	case '\n':
		s.line++
		s.tr.Lines++
		s.tr.FastLines++
		s.pos += n + 1
		s.advance(int32(a))
		return true
	case ' ':
	default:
		return false
	}

	i := n + 1
	neg := i < len(b) && b[i] == '-'
	if neg {
		i++
	}
	v, m := scanUint(b[i:], max)
	if m == 0 || i+m >= len(b) || b[i+m] != '\n' {
		return false
	}
	if neg {
		v = -v
	}
	s.line++
	s.tr.Lines++
	s.tr.FastLines++
	s.pos += i + m + 1
	s.sample(int32(a), int32(v))
	return true
}

// scanUint reads up to max decimal digits from the start of b. It returns the
// number of digits consumed, or 0 if b does not start with a digit or has more
// than max of them.
func scanUint(b []byte, max int) (int64, int) {
	var v int64
	i := 0
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			break
		}
		if i == max {
			return 0, 0
		}
		v = v*10 + int64(c-'0')
	}
	return v, i
}
