package parser

import (
	"strings"

	"github.com/imr/go-epic/event"
)

var wrappers = []string{`v(`, `i(`, `i1(`}

// cleanName splits a declared signal name into its context and leaf name.
//
// One v(...), i(...) or i1(...) wrapper is removed, then the leading 'x' that
// HSPICE puts on subcircuit instances is dropped from every segment. The last
// segment is the leaf, the rest joined by sep is the context. Current leaves
// are wrapped as i(leaf) so they never collide with a voltage of the same
// node.
func cleanName(name, sep string, kind event.Kind) (ctx, leaf string) {
	name = unwrap(name)

	segs := strings.Split(name, sep)
	for i, seg := range segs {
		if len(seg) > 1 && (seg[0] == 'x' || seg[0] == 'X') {
			segs[i] = seg[1:]
		}
	}

	n := len(segs) - 1
	leaf = segs[n]
	ctx = strings.Join(segs[:n], sep)
	if kind == event.KindCurrent {
		leaf = `i(` + leaf + `)`
	}
	return ctx, leaf
}

func unwrap(name string) string {
	if !strings.HasSuffix(name, `)`) {
		return name
	}
	for _, w := range wrappers {
		if len(name) > len(w)+1 && strings.EqualFold(name[:len(w)], w) {
			return name[len(w) : len(name)-1]
		}
	}
	return name
}
