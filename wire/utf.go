package wire

import (
	"unicode/utf16"
	"unicode/utf8"
)

// UTFLen returns the modified UTF-8 length of s.
func UTFLen(s string) int {
	var n int
	for _, r := range s {
		n += runeLen(r)
	}
	return n
}

func runeLen(r rune) int {
	switch {
	case r == 0:
		return 2
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	}
	return 6
}

// AppendUTF appends the modified UTF-8 form of s to dst, without a length
// prefix. NUL is written as two bytes and characters outside the basic
// multilingual plane as a surrogate pair of three bytes each. Invalid UTF-8 in
// s is written as U+FFFD.
func AppendUTF(dst []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r == 0:
			dst = append(dst, 0xC0, 0x80)
		case r < 0x80:
			dst = append(dst, byte(r))
		case r < 0x10000:
			dst = appendChar(dst, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			dst = appendChar(dst, hi)
			dst = appendChar(dst, lo)
		}
	}
	return dst
}

func appendChar(dst []byte, c rune) []byte {
	if c < 0x800 {
		return append(dst, byte(0xC0|c>>6), byte(0x80|c&0x3F))
	}
	return append(dst, byte(0xE0|c>>12), byte(0x80|(c>>6)&0x3F), byte(0x80|c&0x3F))
}

// DecodeUTF decodes modified UTF-8. Standard 4 byte sequences are rejected,
// unpaired surrogates become U+FFFD. The returned int is the offset of the
// first bad byte when ok is false.
func DecodeUTF(b []byte) (s string, off int, ok bool) {
	// fast path for ASCII without NUL
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), 0, true
	}

	out := make([]byte, 0, len(b))
	var pending rune = -1
	flush := func() {
		if pending >= 0 {
			out = utf8.AppendRune(out, utf8.RuneError)
			pending = -1
		}
	}
	for i := 0; i < len(b); {
		c := b[i]
		var r rune
		switch {
		case c < 0x80 && c != 0:
			r, i = rune(c), i+1
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return ``, i, false
			}
			r, i = rune(c&0x1F)<<6|rune(b[i+1]&0x3F), i+2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return ``, i, false
			}
			r = rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			i += 3
		default:
			return ``, i, false
		}

		switch {
		case utf16.IsSurrogate(r) && r < 0xDC00:
			flush()
			pending = r
			continue
		case utf16.IsSurrogate(r):
			if pending >= 0 {
				out = utf8.AppendRune(out, utf16.DecodeRune(pending, r))
				pending = -1
				continue
			}
			r = utf8.RuneError
		default:
			flush()
		}
		out = utf8.AppendRune(out, r)
	}
	flush()
	return string(out), 0, true
}
