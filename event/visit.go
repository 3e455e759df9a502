package event

import "fmt"

// DiagnosticKind classifies a problem found in a trace.
type DiagnosticKind byte

// Kinds of diagnostics.
const (
	DiagMalformed DiagnosticKind = iota
	DiagUnknownDirective
	DiagUnknownSignal
	DiagBanner
)

// String implements fmt.Stringer.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagMalformed:
		return `malformed`
	case DiagUnknownDirective:
		return `unknown_directive`
	case DiagUnknownSignal:
		return `unknown_signal`
	case DiagBanner:
		return `banner`
	}
	return fmt.Sprintf(`DiagnosticKind(%d)`, byte(k))
}

// Diagnostic reports a line of input that was skipped or is suspicious.
type Diagnostic struct {
	Line int
	Kind DiagnosticKind
	Msg  string
}

// String implements fmt.Stringer.
func (d Diagnostic) String() string {
	return fmt.Sprintf(`line %d: %v`, d.Line, d.Msg)
}

// Listener receives notifications while a trace is being read.
type Listener interface {

	// NewString is called the first time a string is interned, with id equal to
	// the pool size before the string was added.
	NewString(id int32, s string) error

	// Progress is called when the integer percentage of input consumed
	// changes.
	Progress(percent int) error

	// Diagnostic is called for every skipped or suspicious line.
	Diagnostic(d Diagnostic) error
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) NewString(int32, string) error { return nil }
func (NopListener) Progress(int) error            { return nil }
func (NopListener) Diagnostic(Diagnostic) error   { return nil }

// Diagnostics collects diagnostics in memory, ignoring everything else.
type Diagnostics struct {
	NopListener
	List []Diagnostic
}

// Diagnostic implements Listener.
func (d *Diagnostics) Diagnostic(diag Diagnostic) error {
	d.List = append(d.List, diag)
	return nil
}
