// Package tracefile loads the sample traces kept in testdata.
package tracefile

import (
	"bytes"
	"os"
	"path/filepath"
)

// Names of the sample traces.
var Names = []string{`small.epic`, `hspice.epic`, `malformed.epic`}

// Load will load the trace files from the testdata dir under root.
func Load(root string) (out TraceList, err error) {
	for _, name := range Names {
		// path: /path/to/cwd/testdata/small.epic
		path := filepath.Join(root, `testdata`, name)
		tr, err := NewTrace(path)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return
}

// Trace is one sample file held in memory.
type Trace struct {
	Size int
	Path string
	Name string
	Data []byte
}

// NewTrace reads the trace at path.
func NewTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tr := &Trace{len(data), path, filepath.Base(path), data}
	return tr, nil
}

// Bytes returns a copy of the trace contents.
func (tf Trace) Bytes() []byte {
	out := make([]byte, len(tf.Data))
	copy(out, tf.Data)
	return out
}

// Reader returns a reader over the trace contents.
func (tf Trace) Reader() *bytes.Reader {
	return bytes.NewReader(tf.Data)
}

// TraceList is a list of sample traces.
type TraceList []*Trace

func (s TraceList) String() string {
	var buf bytes.Buffer
	if len(s) == 0 {
		return `TraceList()`
	}

	buf.WriteString(`TraceList(` + s[0].Name)
	for _, tr := range s[1:] {
		buf.WriteString(`, ` + tr.Name)
	}
	return buf.String() + `)`
}

// ByName returns the traces named name.
func (s TraceList) ByName(name string) (out TraceList) {
	for _, tf := range s {
		if tf.Name == name {
			out = append(out, tf)
		}
	}
	return
}

// Get returns the trace named name or nil.
func (s TraceList) Get(name string) *Trace {
	if l := s.ByName(name); len(l) > 0 {
		return l[0]
	}
	return nil
}

// ByMaxSize returns the traces smaller than n bytes.
func (s TraceList) ByMaxSize(n int) (out TraceList) {
	for _, tf := range s {
		if tf.Size < n {
			out = append(out, tf)
		}
	}
	return
}
