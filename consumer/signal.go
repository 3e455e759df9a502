package consumer

import (
	"context"
	"fmt"

	"github.com/imr/go-epic/event"
)

// Signal is the consumer's handle on one signal. Metadata is answered from the
// summary, events are fetched with one round trip on first use and cached.
type Signal struct {
	s    *Session
	meta event.Signal

	loaded        bool
	times, values []int32
}

// Index returns the signal index.
func (sig *Signal) Index() int { return sig.meta.Index }

// Kind returns the measured quantity.
func (sig *Signal) Kind() event.Kind { return sig.meta.Kind }

// Context returns the hierarchical context, empty at the top level.
func (sig *Signal) Context() string { return sig.s.pool.Get(sig.meta.ContextID) }

// Name returns the leaf name.
func (sig *Signal) Name() string { return sig.s.pool.Get(sig.meta.NameID) }

// FullName returns the context and name joined by the session separator.
func (sig *Signal) FullName() string {
	return sig.meta.FullName(sig.s.pool, sig.s.opts.separator)
}

// Min returns the smallest raw value.
func (sig *Signal) Min() int32 { return sig.meta.Min }

// Max returns the largest raw value.
func (sig *Signal) Max() int32 { return sig.meta.Max }

// Resolution returns the scale factor for values of this signal's kind.
func (sig *Signal) Resolution() float64 {
	return sig.s.summary.Resolutions.Of(sig.meta.Kind)
}

// MinValue returns Min in volts or amperes.
func (sig *Signal) MinValue() float64 {
	return float64(sig.meta.Min) * sig.Resolution()
}

// MaxValue returns Max in volts or amperes.
func (sig *Signal) MaxValue() float64 {
	return float64(sig.meta.Max) * sig.Resolution()
}

// Loaded reports whether the events are cached.
func (sig *Signal) Loaded() bool {
	sig.s.mu.Lock()
	defer sig.s.mu.Unlock()
	return sig.loaded
}

// Events returns the raw sample times and values, fetching them on the first
// call. The returned slices are shared and must not be modified.
func (sig *Signal) Events(ctx context.Context) (times, values []int32, err error) {
	sig.s.mu.Lock()
	defer sig.s.mu.Unlock()
	if sig.loaded {
		return sig.times, sig.values, nil
	}

	evts, err := sig.s.fetch(ctx, sig.meta.Index)
	if err != nil {
		return nil, nil, err
	}
	n := len(evts) / 2
	sig.times, sig.values = make([]int32, n), make([]int32, n)
	for i := 0; i < n; i++ {
		sig.times[i], sig.values[i] = evts[2*i], evts[2*i+1]
	}
	sig.loaded = true
	return sig.times, sig.values, nil
}

// String implements fmt.Stringer.
func (sig *Signal) String() string {
	return fmt.Sprintf(`consumer.Signal(#%d %v %v [%d, %d])`,
		sig.meta.Index, sig.meta.Kind.Letter(), sig.FullName(), sig.meta.Min, sig.meta.Max)
}
