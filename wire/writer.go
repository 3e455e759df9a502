package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/imr/go-epic/event"
)

// Writer writes messages to an underlying stream. Output is buffered until
// Flush. The first error is sticky and returned by every later call.
type Writer struct {
	w   *bufio.Writer
	buf []byte
	err error
}

// NewWriter returns a Writer for w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), buf: make([]byte, 0, 64)}
}

// Err returns the first error that occurred.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(b []byte) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = err
	}
	return w.err
}

// Flush writes buffered data to the underlying stream.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		w.err = err
	}
	return w.err
}

func (w *Writer) utf(tag Tag, s string) error {
	n := UTFLen(s)
	if n > MaxUTFLength {
		return fmt.Errorf(`%w: %v bytes`, ErrStringTooLong, n)
	}
	b := append(w.buf[:0], byte(tag), byte(n>>8), byte(n))
	b = AppendUTF(b, s)
	w.buf = b[:0]
	return w.write(b)
}

// Message writes a diagnostic message. Messages too long for the format are
// truncated to fit.
func (w *Writer) Message(s string) error {
	if UTFLen(s) > MaxUTFLength {
		s = truncateUTF(s, MaxUTFLength)
	}
	return w.utf(TagMessage, s)
}

// NewString writes the next string pool entry. Unlike Message it fails with
// ErrStringTooLong rather than altering s.
func (w *Writer) NewString(s string) error {
	return w.utf(TagString, s)
}

// Progress writes a progress update, clamped to [0, 100].
func (w *Writer) Progress(pct int) error {
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return w.write(append(w.buf[:0], byte(TagProgress), byte(pct)))
}

// Summary writes the summary: the time, voltage and current resolutions as
// float64, int32 max time, int32 signal count, then for each signal the int32
// context id, int32 name id, kind byte, int32 min and int32 max.
func (w *Writer) Summary(s *event.Summary) error {
	b := append(w.buf[:0], byte(TagSummary))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(s.Resolutions.Time))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(s.Resolutions.Voltage))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(s.Resolutions.Current))
	b = binary.BigEndian.AppendUint32(b, uint32(s.MaxTime))
	b = binary.BigEndian.AppendUint32(b, uint32(len(s.Signals)))
	if err := w.write(b); err != nil {
		return err
	}

	for _, sig := range s.Signals {
		b = b[:0]
		b = binary.BigEndian.AppendUint32(b, uint32(sig.ContextID))
		b = binary.BigEndian.AppendUint32(b, uint32(sig.NameID))
		b = append(b, byte(sig.Kind))
		b = binary.BigEndian.AppendUint32(b, uint32(sig.Min))
		b = binary.BigEndian.AppendUint32(b, uint32(sig.Max))
		if err := w.write(b); err != nil {
			return err
		}
	}
	w.buf = b[:0]
	return nil
}

// Request writes a signal index. Stop ends the session.
func (w *Writer) Request(index int32) error {
	return w.int32(index)
}

// Events writes a reply holding the interleaved events of one signal.
func (w *Writer) Events(evts []int32) error {
	if err := w.int32(int32(len(evts))); err != nil {
		return err
	}
	for len(evts) > 0 {
		k := min(len(evts), eventChunk)
		b := w.buf[:0]
		for _, v := range evts[:k] {
			b = binary.BigEndian.AppendUint32(b, uint32(v))
		}
		w.buf = b[:0]
		if err := w.write(b); err != nil {
			return err
		}
		evts = evts[k:]
	}
	return nil
}

// NotFound writes the reply for an unknown signal.
func (w *Writer) NotFound() error {
	return w.int32(NotFound)
}

func (w *Writer) int32(v int32) error {
	if w.err != nil {
		return w.err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return w.write(b[:])
}

// truncateUTF returns the longest prefix of s whose encoding fits in n bytes.
func truncateUTF(s string, n int) string {
	var total int
	for i, r := range s {
		if total += runeLen(r); total > n {
			return s[:i]
		}
	}
	return s
}
