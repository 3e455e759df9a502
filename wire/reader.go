package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/imr/go-epic/event"
)

// Reader reads messages from an underlying stream.
type Reader struct {
	r   *bufio.Reader
	off int64
	buf [16]byte
}

// NewReader returns a Reader for r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int64 {
	return r.off
}

func (r *Reader) full(b []byte) error {
	n, err := io.ReadFull(r.r, b)
	r.off += int64(n)
	if errors.Is(err, io.EOF) && n == 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (r *Reader) uint8() (byte, error) {
	c, err := r.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	r.off++
	return c, nil
}

func (r *Reader) int32() (int32, error) {
	if err := r.full(r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

func (r *Reader) float64() (float64, error) {
	if err := r.full(r.buf[:8]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(r.buf[:8])), nil
}

// ReadTag reads the tag of the next header message. A byte which is not a
// known tag returns a *TagError.
func (r *Reader) ReadTag() (Tag, error) {
	off := r.off
	c, err := r.r.ReadByte()
	if err != nil {
		return 0, err
	}
	r.off++
	if t := Tag(c); t.Valid() {
		return t, nil
	}
	return 0, &TagError{Tag: Tag(c), Offset: off}
}

// ReadUTF reads a length prefixed modified UTF-8 string.
func (r *Reader) ReadUTF() (string, error) {
	if err := r.full(r.buf[:2]); err != nil {
		return ``, err
	}
	n := int(binary.BigEndian.Uint16(r.buf[:2]))
	start := r.off
	b := make([]byte, n)
	if err := r.full(b); err != nil {
		return ``, err
	}
	s, bad, ok := DecodeUTF(b)
	if !ok {
		return ``, malformed(start+int64(bad), `invalid modified UTF-8`)
	}
	return s, nil
}

// ReadProgress reads the payload of a progress message.
func (r *Reader) ReadProgress() (int, error) {
	off := r.off
	c, err := r.uint8()
	if err != nil {
		return 0, err
	}
	if c > 100 {
		return 0, malformed(off, `progress %d`, c)
	}
	return int(c), nil
}

// ReadSummary reads the payload of a summary message.
func (r *Reader) ReadSummary() (*event.Summary, error) {
	s := new(event.Summary)
	for _, dst := range []*float64{&s.Resolutions.Time, &s.Resolutions.Voltage, &s.Resolutions.Current} {
		v, err := r.float64()
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	var err error
	if s.MaxTime, err = r.int32(); err != nil {
		return nil, err
	}
	off := r.off
	count, err := r.int32()
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxSignals {
		return nil, malformed(off, `signal count %d`, count)
	}

	s.Signals = make([]event.Signal, 0, min(int(count), eventChunk))
	for i := 0; i < int(count); i++ {
		sig := event.Signal{Index: i}
		if sig.ContextID, err = r.int32(); err != nil {
			return nil, err
		}
		if sig.NameID, err = r.int32(); err != nil {
			return nil, err
		}
		off := r.off
		kind, err := r.uint8()
		if err != nil {
			return nil, err
		}
		if sig.Kind = event.Kind(kind); !sig.Kind.Valid() {
			return nil, malformed(off, `signal %d kind %d`, i, kind)
		}
		if sig.Min, err = r.int32(); err != nil {
			return nil, err
		}
		if sig.Max, err = r.int32(); err != nil {
			return nil, err
		}
		s.Signals = append(s.Signals, sig)
	}
	return s, nil
}

// ReadRequest reads a signal index. At the end of the stream it returns
// io.EOF.
func (r *Reader) ReadRequest() (int32, error) {
	n, err := io.ReadFull(r.r, r.buf[:4])
	r.off += int64(n)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

// ReadEvents reads a reply. It returns false if the producer had no such
// signal.
func (r *Reader) ReadEvents() ([]int32, bool, error) {
	off := r.off
	n, err := r.int32()
	if err != nil {
		return nil, false, err
	}
	if n == NotFound {
		return nil, false, nil
	}
	if n < 0 || n > maxEvents || n%2 != 0 {
		return nil, false, malformed(off, `reply length %d`, n)
	}

	evts := make([]int32, 0, min(int(n), eventChunk))
	chunk := make([]byte, 4*min(int(n), eventChunk))
	for left := int(n); left > 0; {
		k := min(left, eventChunk)
		if err := r.full(chunk[:4*k]); err != nil {
			return nil, false, err
		}
		for i := 0; i < k; i++ {
			evts = append(evts, int32(binary.BigEndian.Uint32(chunk[4*i:])))
		}
		left -= k
	}
	return evts, true, nil
}
