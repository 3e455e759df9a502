package encoding

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(t testing.TB, evts []int32) *Buffer {
	t.Helper()
	b := new(Buffer)
	for i := 0; i < len(evts); i += 2 {
		require.NoError(t, b.PutEvent(evts[i], evts[i+1]))
	}
	b.Compact()
	return b
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	t.Run(`Random`, func(t *testing.T) {
		for n := 0; n < 50; n++ {
			var (
				evts []int32
				now  int32
			)
			size := rnd.Intn(2000)
			for i := 0; i < size; i++ {
				switch rnd.Intn(4) {
				case 0:
					now += int32(rnd.Intn(0xC0))
				case 1:
					now += int32(rnd.Intn(0x4000))
				case 2:
					now += int32(rnd.Intn(1 << 20))
				}
				evts = append(evts, now, int32(rnd.Uint32()))
			}
			b := encodeAll(t, evts)
			got, err := Decode(b.Bytes(), b.Count())
			require.NoError(t, err)
			if evts == nil {
				evts = []int32{}
			}
			require.Equal(t, evts, got)
		}
	})
	t.Run(`SmallSteps`, func(t *testing.T) {
		var evts []int32
		for i := int32(0); i < 5000; i++ {
			evts = append(evts, i, int32(rnd.Intn(0x100)-0x80))
		}
		b := encodeAll(t, evts)
		got, err := b.Events()
		require.NoError(t, err)
		require.Equal(t, evts, got)
	})
	t.Run(`Extremes`, func(t *testing.T) {
		evts := []int32{
			0, math.MaxInt32,
			0, math.MinInt32,
			1, math.MaxInt32,
			math.MaxInt32, math.MinInt32,
			math.MaxInt32, 0,
		}
		b := encodeAll(t, evts)
		got, err := b.Events()
		require.NoError(t, err)
		require.Equal(t, evts, got)
	})
}

func TestBoundaryRoundTrip(t *testing.T) {
	times := []int32{0xBF, 0xC0, 0x3EFF, 0x3F00}
	values := []int32{0x5F, 0x60, -0x60, -0x61, 0x1FFF, 0x2000, -0x1F00, -0x1F01}

	for _, dt := range times {
		for _, dv := range values {
			var b Buffer
			require.NoError(t, b.PutEvent(0, 0))
			require.NoError(t, b.PutEvent(dt, dv))

			// first pair is 2 bytes, then the predicted tiers.
			exp := 2 + UnsignedLen(dt) + SignedLen(dv)
			require.Equal(t, exp, b.Len(), `dt=0x%x dv=%d`, dt, dv)

			got, err := b.Events()
			require.NoError(t, err)
			require.Equal(t, []int32{0, 0, dt, dv}, got)
		}
	}

	lens := map[int32]int{0xBF: 1, 0xC0: 2, 0x3EFF: 2, 0x3F00: 5}
	for d, n := range lens {
		assert.Equal(t, n, UnsignedLen(d))
	}
	slens := map[int32]int{
		0x5F: 1, 0x60: 2, -0x60: 1, -0x61: 2,
		0x1FFF: 2, 0x2000: 5, -0x1F00: 2, -0x1F01: 5}
	for d, n := range slens {
		assert.Equal(t, n, SignedLen(d))
	}
}

func TestDecodeCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{`MissingValue`, []byte{0x01}},
		{`TruncatedShortTime`, []byte{0xC1}},
		{`TruncatedShortValue`, []byte{0x01, 0xC1}},
		{`TruncatedLongTime`, []byte{0xFF, 0x00, 0x00}},
		{`TruncatedLongValue`, []byte{0x00, 0xFF, 0x00, 0x00, 0x00}},
		{`NegativeTime`, []byte{0xFF, 0x80, 0x00, 0x00, 0x00, 0x60}},
		{`TrailingByte`, []byte{0x01, 0x60, 0x02}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Decode(test.data, 0)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrCorrupt)

			var ce *CorruptError
			require.True(t, errors.As(err, &ce))
			assert.LessOrEqual(t, ce.Offset, len(test.data))
		})
	}
	t.Run(`Count`, func(t *testing.T) {
		_, err := Decode(nil, -1)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestDecodeCountHint(t *testing.T) {
	b := encodeAll(t, []int32{1, 2, 3, 4})
	for _, count := range []int{0, 1, 2, 1 << 27, 1<<27 + 1, math.MaxInt32} {
		got, err := Decode(b.Bytes(), count)
		require.NoError(t, err, `count %d`, count)
		assert.Equal(t, []int32{1, 2, 3, 4}, got)
	}
}

func TestDecoder(t *testing.T) {
	b := encodeAll(t, []int32{1, 2, 3, 4})
	data := append(append([]byte{}, b.Bytes()...), 0xC5)

	dec := NewDecoder(data)
	var got []int32
	for dec.More() {
		tm, v, err := dec.Next()
		if err != nil {
			break
		}
		got = append(got, tm, v)
	}
	assert.Equal(t, []int32{1, 2, 3, 4}, got)

	sentinel := dec.Err()
	require.ErrorIs(t, sentinel, ErrCorrupt)
	assert.False(t, dec.More())
	for i := 0; i < 3; i++ {
		_, _, err := dec.Next()
		assert.Equal(t, sentinel, err, `errors should be sticky`)
	}

	dec.Reset(b.Bytes())
	assert.NoError(t, dec.Err())
	assert.Equal(t, 0, dec.Off())
	assert.True(t, dec.More())
}

func TestDecodeEventsStops(t *testing.T) {
	b := encodeAll(t, []int32{1, 1, 2, 2, 3, 3})
	stop := errors.New(`stop`)

	var n int
	err := DecodeEvents(b.Bytes(), func(time, value int32) error {
		if n++; n == 2 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 2, n)
}
