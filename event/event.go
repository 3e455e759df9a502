// Package event defines the data shared between the producer and consumer of a
// waveform trace: signal metadata, the summary handed over once a trace has
// been read, and the string pool that names every signal.
package event

import (
	"fmt"
	"strings"
)

// Kind is the type of quantity a signal measures.
type Kind byte

// Kinds of signals. The values are the wire representation.
const (
	KindNone    Kind = 0
	KindVoltage Kind = 1
	KindCurrent Kind = 2
)

// ParseKind returns the Kind for the letter used by .index declarations, v or i
// in either case.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case `v`, `V`:
		return KindVoltage, true
	case `i`, `I`:
		return KindCurrent, true
	}
	return KindNone, false
}

// Valid returns true if the Kind is KindVoltage or KindCurrent.
func (k Kind) Valid() bool {
	return k == KindVoltage || k == KindCurrent
}

// Letter returns the declaration letter for this kind.
func (k Kind) Letter() string {
	switch k {
	case KindVoltage:
		return `v`
	case KindCurrent:
		return `i`
	}
	return `?`
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindVoltage:
		return `event.Voltage`
	case KindCurrent:
		return `event.Current`
	}
	return fmt.Sprintf(`event.Kind(%d)`, byte(k))
}

// Resolutions hold the scale factors which convert raw integers into seconds,
// volts and amperes.
type Resolutions struct {
	Time    float64
	Voltage float64
	Current float64
}

// DefaultResolutions are used until a trace declares its own.
var DefaultResolutions = Resolutions{Time: 1, Voltage: 1, Current: 1}

// Of returns the value resolution for signals of kind k, or 1 for an invalid
// kind.
func (r Resolutions) Of(k Kind) float64 {
	switch k {
	case KindVoltage:
		return r.Voltage
	case KindCurrent:
		return r.Current
	}
	return 1
}

// Signal is the metadata of one declared signal. The event data itself is not
// part of a Signal, it is fetched on demand by index.
type Signal struct {

	// Index is the dense zero based position of the signal, assigned in the
	// order signals are first declared.
	Index int

	// ContextID and NameID are StringPool ids of the hierarchical context the
	// signal lives in and of its leaf name.
	ContextID int32
	NameID    int32

	// Kind is the measured quantity.
	Kind Kind

	// Min and Max are the smallest and largest raw values recorded, both zero
	// when the signal has no events.
	Min, Max int32

	// Count is the number of recorded events. It is known to the producer only
	// and is not transmitted.
	Count int
}

// Observe widens Min and Max to include v and counts one event.
func (s *Signal) Observe(v int32) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else if v < s.Min {
		s.Min = v
	} else if v > s.Max {
		s.Max = v
	}
	s.Count++
}

// FullName joins the signal context and name from the pool with sep.
func (s Signal) FullName(p *StringPool, sep string) string {
	ctx, name := p.Get(s.ContextID), p.Get(s.NameID)
	if ctx == `` {
		return name
	}
	return ctx + sep + name
}

// String implements fmt.Stringer.
func (s Signal) String() string {
	return fmt.Sprintf(`event.Signal(#%d %v ctx:%d name:%d [%d, %d])`,
		s.Index, s.Kind.Letter(), s.ContextID, s.NameID, s.Min, s.Max)
}

// Summary is the frozen view of a trace produced once all input has been read.
type Summary struct {
	Resolutions Resolutions
	MaxTime     int32
	Signals     []Signal
}

// Len returns the number of signals.
func (s *Summary) Len() int {
	return len(s.Signals)
}

// Validate checks that every signal refers to strings within a pool of size n
// and carries a valid kind.
func (s *Summary) Validate(n int) error {
	for i, sig := range s.Signals {
		if sig.Index != i {
			return fmt.Errorf(`signal %d has index %d`, i, sig.Index)
		}
		if !sig.Kind.Valid() {
			return fmt.Errorf(`signal %d has invalid kind %v`, i, sig.Kind)
		}
		if sig.ContextID < 0 || int(sig.ContextID) >= n {
			return fmt.Errorf(`signal %d context id %d out of range [0, %d)`, i, sig.ContextID, n)
		}
		if sig.NameID < 0 || int(sig.NameID) >= n {
			return fmt.Errorf(`signal %d name id %d out of range [0, %d)`, i, sig.NameID, n)
		}
		if sig.Min > sig.Max {
			return fmt.Errorf(`signal %d min %d exceeds max %d`, i, sig.Min, sig.Max)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `event.Summary(signals:%d maxTime:%d res:[%g %g %g])`,
		len(s.Signals), s.MaxTime,
		s.Resolutions.Time, s.Resolutions.Voltage, s.Resolutions.Current)
	return b.String()
}
