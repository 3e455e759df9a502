// Package wire implements the byte format spoken between a trace producer and
// its consumer.
//
// The producer first streams tagged messages while it reads the trace:
//
//	'M' utf            diagnostic message
//	'P' u8             progress percent, 0 to 100
//	'C' utf            next string pool entry
//	'S' summary        end of the header, see Writer.Summary
//
// where utf is a 2 byte big-endian length followed by modified UTF-8. After
// the summary the consumer sends int32 signal indexes and the producer answers
// each with an int32 length followed by that many int32 values, or with a
// length of -1 when there is no such signal. A negative index ends the
// session. All integers are big-endian.
package wire

import (
	"errors"
	"fmt"
)

// Tag identifies a message sent before the summary.
type Tag byte

// Message tags.
const (
	TagMessage  Tag = 'M'
	TagProgress Tag = 'P'
	TagString   Tag = 'C'
	TagSummary  Tag = 'S'
)

// Valid returns true for a known tag.
func (t Tag) Valid() bool {
	switch t {
	case TagMessage, TagProgress, TagString, TagSummary:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t Tag) String() string {
	switch t {
	case TagMessage:
		return `wire.Message`
	case TagProgress:
		return `wire.Progress`
	case TagString:
		return `wire.String`
	case TagSummary:
		return `wire.Summary`
	}
	return fmt.Sprintf(`wire.Tag(0x%02x)`, byte(t))
}

const (
	// MaxUTFLength is the longest encoded string a utf field can carry.
	MaxUTFLength = 0xFFFF

	// NotFound is the reply length for an unknown signal.
	NotFound = -1

	// Stop is the request index which ends a session.
	Stop = -1

	// Upper bounds which keep a corrupt stream from causing huge allocations.
	maxSignals = 1 << 26
	maxEvents  = 1 << 30

	// Events are read in chunks of this many values.
	eventChunk = 1 << 14
)

var (
	// ErrStringTooLong is returned when a string encodes to more than
	// MaxUTFLength bytes.
	ErrStringTooLong = errors.New(`wire: string exceeds 65535 encoded bytes`)

	// ErrMalformed matches every error caused by bytes that do not follow the
	// format.
	ErrMalformed = errors.New(`wire: malformed data`)
)

// TagError reports an unexpected tag byte.
type TagError struct {
	Tag    Tag
	Offset int64
}

// Error implements error.
func (e *TagError) Error() string {
	return fmt.Sprintf(`wire: unexpected tag %v at 0x%x`, e.Tag, e.Offset)
}

// Is reports whether target is ErrMalformed.
func (e *TagError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(off int64, format string, args ...any) error {
	return fmt.Errorf(`%w: %v at 0x%x`, ErrMalformed, fmt.Sprintf(format, args...), off)
}
