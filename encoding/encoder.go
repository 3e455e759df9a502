package encoding

// Buffer holds the delta encoded events of a single signal. The zero value is
// an empty Buffer ready to use.
//
// A Buffer is not safe for concurrent use, it is written during parsing by a
// single goroutine and is only read after Compact.
type Buffer struct {
	buf       []byte
	count     int
	lastTime  int32
	lastValue int32
	compacted bool
}

// PutEvent appends the sample (time, value). Time is expected to be no less
// than the time of the previous sample, the caller is responsible for keeping
// it monotonic. PutEvent returns ErrCompacted after Compact has been called.
func (b *Buffer) PutEvent(time, value int32) error {
	if b.compacted {
		return ErrCompacted
	}

	// A pair is at most 10 bytes, make sure both fit before appending so the
	// growth policy below is the only place capacity changes.
	if cap(b.buf)-len(b.buf) < 10 {
		b.grow(10)
	}
	b.buf = AppendUnsigned(b.buf, time-b.lastTime)
	b.buf = AppendSigned(b.buf, value-b.lastValue)
	b.lastTime, b.lastValue = time, value
	b.count++
	return nil
}

// grow will reallocate buf to hold at least n more bytes, growing by at least
// 1.5x the current capacity.
func (b *Buffer) grow(n int) {
	size := cap(b.buf) * growNum / growDen
	if size < minCapacity {
		size = minCapacity
	}
	if need := len(b.buf) + n; size < need {
		size = need
	}
	buf := make([]byte, len(b.buf), size)
	copy(buf, b.buf)
	b.buf = buf
}

// Compact reallocates the buffer to exactly the number of bytes in use and
// freezes it. Calling Compact more than once has no further effect.
func (b *Buffer) Compact() {
	if b.compacted {
		return
	}
	b.compacted = true
	if cap(b.buf) == len(b.buf) {
		return
	}
	buf := make([]byte, len(b.buf))
	copy(buf, b.buf)
	b.buf = buf
}

// Compacted returns true once Compact has been called.
func (b *Buffer) Compacted() bool {
	return b.compacted
}

// Bytes returns the encoded bytes. The slice aliases the Buffer and must not be
// modified.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of encoded bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Cap returns the capacity of the underlying storage.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Count returns the number of events appended.
func (b *Buffer) Count() int {
	return b.count
}

// Last returns the most recently appended sample, or zeros if none.
func (b *Buffer) Last() (time, value int32) {
	return b.lastTime, b.lastValue
}

// Reset empties the Buffer for reuse, discarding compaction.
func (b *Buffer) Reset() {
	*b = Buffer{buf: b.buf[:0]}
}

// AppendUnsigned appends the encoding of the unsigned delta d to dst. Negative
// values of d are treated as their 32-bit unsigned equivalent and always take
// the 5 byte form.
func AppendUnsigned(dst []byte, d int32) []byte {
	switch u := uint32(d); {
	case u < oneByteLimit:
		return append(dst, byte(u))
	case u < unsignedTwoLimit:
		return append(dst, byte((u+unsignedTwoBias)>>8), byte(u))
	default:
		return appendLong(dst, u)
	}
}

// AppendSigned appends the encoding of the signed delta d to dst.
func AppendSigned(dst []byte, d int32) []byte {
	switch {
	case -signedOneBias <= d && d < signedOneBias:
		return append(dst, byte(d+signedOneBias))
	case signedTwoMin <= d && d < signedTwoLimit:
		return append(dst, byte((d+signedTwoBias)>>8), byte(d))
	default:
		return appendLong(dst, uint32(d))
	}
}

func appendLong(dst []byte, u uint32) []byte {
	return append(dst, longMarker, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

// UnsignedLen returns the number of bytes AppendUnsigned writes for d.
func UnsignedLen(d int32) int {
	switch u := uint32(d); {
	case u < oneByteLimit:
		return 1
	case u < unsignedTwoLimit:
		return 2
	}
	return 5
}

// SignedLen returns the number of bytes AppendSigned writes for d.
func SignedLen(d int32) int {
	switch {
	case -signedOneBias <= d && d < signedOneBias:
		return 1
	case signedTwoMin <= d && d < signedTwoLimit:
		return 2
	}
	return 5
}
