package encoding

// Decoder reads events from an encoded buffer one at a time. Every read is
// bounded by the length of the buffer it was created with.
type Decoder struct {
	data      []byte
	off       int
	err       error
	lastTime  int32
	lastValue int32
}

// NewDecoder returns a Decoder reading the encoded events in data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Reset the Decoder to read from data.
func (d *Decoder) Reset(data []byte) {
	*d = Decoder{data: data}
}

// More returns true while events remain and no error has occurred.
func (d *Decoder) More() bool {
	return d.err == nil && d.off < len(d.data)
}

// Err returns the first error that occurred during decoding.
func (d *Decoder) Err() error {
	return d.err
}

// Off returns the offset of the next byte to be decoded.
func (d *Decoder) Off() int {
	return d.off
}

// Next decodes the next event. Once Next returns an error all future calls
// return the same error.
func (d *Decoder) Next() (time, value int32, err error) {
	if d.err != nil {
		return 0, 0, d.err
	}
	start := d.off

	dt, err := d.decodeUnsigned()
	if err != nil {
		d.err = err
		return 0, 0, err
	}
	dv, err := d.decodeSigned()
	if err != nil {
		d.err = err
		return 0, 0, err
	}

	// Time is never negative in a valid buffer, so a wrapped time means the
	// delta bytes are garbage.
	if t := d.lastTime + dt; t < 0 {
		d.err = &CorruptError{Offset: start, Reason: `time went negative`}
		return 0, 0, d.err
	}
	d.lastTime += dt
	d.lastValue += dv
	return d.lastTime, d.lastValue, nil
}

// decodeUnsigned decodes one unsigned delta.
func (d *Decoder) decodeUnsigned() (int32, error) {
	if d.off >= len(d.data) {
		return 0, &CorruptError{Offset: d.off, Reason: `missing time delta`}
	}
	switch b := d.data[d.off]; {
	case b < oneByteLimit:
		d.off++
		return int32(b), nil
	case b < longMarker:
		v, err := d.decodeShort(`time`)
		return v - unsignedTwoBias, err
	default:
		return d.decodeLong(`time`)
	}
}

// decodeSigned decodes one signed delta.
func (d *Decoder) decodeSigned() (int32, error) {
	if d.off >= len(d.data) {
		return 0, &CorruptError{Offset: d.off, Reason: `missing value delta`}
	}
	switch b := d.data[d.off]; {
	case b < oneByteLimit:
		d.off++
		return int32(b) - signedOneBias, nil
	case b < longMarker:
		v, err := d.decodeShort(`value`)
		return v - signedTwoBias, err
	default:
		return d.decodeLong(`value`)
	}
}

// decodeShort reads the 2 byte form as an unbiased 16 bit quantity.
func (d *Decoder) decodeShort(what string) (int32, error) {
	if len(d.data)-d.off < 2 {
		return 0, &CorruptError{Offset: d.off, Reason: `truncated 2 byte ` + what + ` delta`}
	}
	v := int32(d.data[d.off])<<8 | int32(d.data[d.off+1])
	d.off += 2
	return v, nil
}

// decodeLong reads the 5 byte form.
func (d *Decoder) decodeLong(what string) (int32, error) {
	if len(d.data)-d.off < 5 {
		return 0, &CorruptError{Offset: d.off, Reason: `truncated 5 byte ` + what + ` delta`}
	}
	p := d.data[d.off+1 : d.off+5]
	v := uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
	d.off += 5
	return int32(v), nil
}

// DecodeEvents calls fn with every event in data, in order. It stops at the
// first error returned by fn or encountered while decoding.
func DecodeEvents(data []byte, fn func(time, value int32) error) error {
	dec := Decoder{data: data}
	for dec.More() {
		t, v, err := dec.Next()
		if err != nil {
			return err
		}
		if err = fn(t, v); err != nil {
			return err
		}
	}
	return dec.Err()
}

// Decode returns every event in data as a flat slice of interleaved time and
// value pairs, [t0, v0, t1, v1, ...]. The count hint sizes the result when
// known, pass 0 otherwise. On error no partial result is returned.
func Decode(data []byte, count int) ([]int32, error) {
	if count < 0 {
		return nil, &CorruptError{Reason: `negative event count`}
	}

	// every event takes at least 2 bytes, a larger hint can not be honest.
	if count > len(data)/2 {
		count = len(data) / 2
	}
	out := make([]int32, 0, count*2)
	err := DecodeEvents(data, func(t, v int32) error {
		out = append(out, t, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Events decodes the Buffer. See Decode.
func (b *Buffer) Events() ([]int32, error) {
	return Decode(b.buf, b.count)
}
