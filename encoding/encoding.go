// Package encoding implements the compact per-signal event codec used to hold
// waveform samples in memory while a trace is being served.
//
// # Overview
//
// Each signal owns a Buffer. Samples are appended as (time, value) pairs of
// 32-bit integers and stored as deltas from the previous sample of the same
// signal: an unsigned time delta followed by a signed value delta. Both are
// written in a three tier variable length form whose leading byte describes
// its own length:
//
//	0x00 - 0xBF   1 byte
//	0xC0 - 0xFE   2 bytes, the low byte follows
//	0xFF          5 bytes, a 4 byte big-endian delta follows
//
// Unsigned (time) deltas:
//
//	d < 0xC0             d
//	d < 0x3F00           (d + 0xC000) >> 8, d & 0xFF
//	otherwise            0xFF, d
//
// Signed (value) deltas:
//
//	-0x60 <= d < 0x60    d + 0x60
//	-0x1F00 <= d < 0x2000  (d + 0xDF00) >> 8, d & 0xFF
//	otherwise            0xFF, d
//
// Delta arithmetic wraps like int32 arithmetic, so every int32 value round
// trips, including jumps between math.MinInt32 and math.MaxInt32.
//
// # Compaction
//
// Once a trace has been read every Buffer is compacted, which reallocates its
// storage to exactly the bytes in use. A compacted Buffer no longer accepts
// events.
//
// # Corruption
//
// Decoding never reads past the stored bytes. A truncated or otherwise
// malformed buffer yields a *CorruptError, which matches ErrCorrupt with
// errors.Is.
package encoding

import (
	"errors"
	"fmt"
)

const (
	// Leading byte values at or above oneByteLimit begin a multi-byte delta.
	oneByteLimit = 0xC0

	// Marks a 5 byte delta.
	longMarker = 0xFF

	// Unsigned tier limits and bias.
	unsignedTwoLimit = 0x3F00
	unsignedTwoBias  = 0xC000

	// Signed tier limits and biases.
	signedOneBias  = 0x60
	signedTwoMin   = -0x1F00
	signedTwoLimit = 0x2000
	signedTwoBias  = 0xDF00

	// growth factor numerator / denominator applied on overflow.
	growNum, growDen = 3, 2

	// initial capacity of a Buffer on first append.
	minCapacity = 16
)

var (

	// ErrCorrupt matches any error caused by decoding a malformed buffer.
	ErrCorrupt = errors.New(`encoded event buffer is corrupt`)

	// ErrCompacted is returned when appending to a compacted Buffer.
	ErrCompacted = errors.New(`encoded event buffer was already compacted`)
)

// CorruptError describes where decoding of a buffer failed.
type CorruptError struct {
	Offset int
	Reason string
}

// Error implements error.
func (e *CorruptError) Error() string {
	return fmt.Sprintf(`%v: %v at 0x%x`, ErrCorrupt, e.Reason, e.Offset)
}

// Is reports whether target is ErrCorrupt.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}
