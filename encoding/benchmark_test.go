package encoding

import (
	"math/rand"
	"testing"
)

func benchEvents(n int) []int32 {
	rnd := rand.New(rand.NewSource(1))
	evts := make([]int32, 0, n*2)
	var now int32
	for i := 0; i < n; i++ {
		now += int32(rnd.Intn(200))
		evts = append(evts, now, int32(rnd.Intn(4000)-2000))
	}
	return evts
}

func BenchmarkEncoding(b *testing.B) {
	evts := benchEvents(100000)

	b.Run(`PutEvent`, func(b *testing.B) {
		b.ReportAllocs()
		var buf Buffer
		for i := 0; i < b.N; i++ {
			buf.Reset()
			for j := 0; j < len(evts); j += 2 {
				buf.PutEvent(evts[j], evts[j+1])
			}
		}
	})

	var buf Buffer
	for j := 0; j < len(evts); j += 2 {
		buf.PutEvent(evts[j], evts[j+1])
	}
	buf.Compact()
	b.Run(`Decode`, func(b *testing.B) {
		b.ReportAllocs()
		b.SetBytes(int64(buf.Len()))
		for i := 0; i < b.N; i++ {
			out, err := Decode(buf.Bytes(), buf.Count())
			if err != nil {
				b.Fatal(err)
			}
			if len(out) != len(evts) {
				b.Fatalf(`exp %v values; got %v`, len(evts), len(out))
			}
		}
	})
}
