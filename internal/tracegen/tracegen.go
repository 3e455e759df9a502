// Package tracegen writes synthetic Epic traces along with the events a reader
// is expected to recover from them.
package tracegen

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
)

// Generator describes a synthetic trace. The same Generator always writes the
// same bytes.
type Generator struct {
	// Signals is the number of declared signals, half of them currents.
	Signals int

	// Steps is the number of time advances.
	Steps int

	// Density is the chance in [0, 1] that a signal records a value at a
	// step.
	Density float64

	// Seed seeds the random source.
	Seed int64

	// Noise mixes in comments, blank lines, ignored directives, redundant
	// redeclarations and numbers written in forms only the tokenizer
	// accepts.
	Noise bool

	// CRLF ends lines with "\r\n".
	CRLF bool
}

// New returns a Generator with small defaults.
func New(seed int64) *Generator {
	return &Generator{Signals: 8, Steps: 500, Density: 0.3, Seed: seed}
}

// Expected is what parsing a generated trace must produce.
type Expected struct {
	// Contexts and Names hold the cleaned context and leaf of each signal in
	// declaration order.
	Contexts, Names []string

	// Currents marks current signals.
	Currents []bool

	// Events holds the interleaved [t0, v0, t1, v1, ...] of each signal.
	Events [][]int32

	// Min and Max are the raw bounds of each signal, zero when empty.
	Min, Max []int32

	MaxTime int32

	// Lines is the number of lines written.
	Lines int
}

// WriteTo implements io.WriterTo.
func (g *Generator) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	_, err := g.Generate(cw)
	return cw.n, err
}

// Generate writes the trace to w and returns what a parser should recover.
func (g *Generator) Generate(w io.Writer) (*Expected, error) {
	rnd := rand.New(rand.NewSource(g.Seed))
	bw := bufio.NewWriter(w)
	exp := &Expected{}

	eol := "\n"
	if g.CRLF {
		eol = "\r\n"
	}
	line := func(format string, args ...any) {
		fmt.Fprintf(bw, format, args...)
		bw.WriteString(eol)
		exp.Lines++
	}

	line(`Epic 2008.1 tracegen seed %d`, g.Seed)
	if g.Noise {
		line(`; generated`)
		line(`.vdd 1.8`)
		line(``)
	}
	line(`.time_resolution 10`)
	line(`.voltage_resolution 0.001`)
	line(`.current_resolution 1e-06`)

	raws := make([]int, g.Signals)
	values := make([]int64, g.Signals)
	for i := range raws {
		raws[i] = i*3 + 1
		blk, node := i%4, i
		current := i%2 == 1
		exp.Contexts = append(exp.Contexts, fmt.Sprintf(`top.blk%d`, blk))
		exp.Currents = append(exp.Currents, current)
		exp.Events = append(exp.Events, nil)
		exp.Min = append(exp.Min, 0)
		exp.Max = append(exp.Max, 0)
		if current {
			exp.Names = append(exp.Names, fmt.Sprintf(`i(m%d)`, node))
			line(`.index i1(xtop.xblk%d.xm%d) %d i`, blk, node, raws[i])
		} else {
			exp.Names = append(exp.Names, fmt.Sprintf(`n%d`, node))
			line(`.index v(xtop.xblk%d.n%d) %d v`, blk, node, raws[i])
		}
		values[i] = int64(rnd.Intn(2000) - 1000)
	}
	if g.Noise && g.Signals > 0 {
		line(`.index v(ignored) %d v`, raws[0])
		line(`.nnodes %d`, g.Signals)
	}

	var now int64
	for step := 0; step < g.Steps; step++ {
		now += timeDelta(rnd)
		if now > math.MaxInt32 {
			now = math.MaxInt32
		}
		line(`%s`, g.number(rnd, now, false))
		exp.MaxTime = int32(now)

		for i := range raws {
			if rnd.Float64() >= g.Density {
				continue
			}
			v := values[i] + valueDelta(rnd)
			if v > math.MaxInt32 || v < math.MinInt32 {
				v = int64(rnd.Intn(2000) - 1000)
			}
			values[i] = v
			g.sample(rnd, line, raws[i], v)

			if len(exp.Events[i]) == 0 {
				exp.Min[i], exp.Max[i] = int32(v), int32(v)
			} else if int32(v) < exp.Min[i] {
				exp.Min[i] = int32(v)
			} else if int32(v) > exp.Max[i] {
				exp.Max[i] = int32(v)
			}
			exp.Events[i] = append(exp.Events[i], int32(now), int32(v))
		}
		if g.Noise && rnd.Intn(50) == 0 {
			line(`; step %d`, step)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return exp, nil
}

// sample writes one sample line, in an unusual but valid form when Noise is
// set.
func (g *Generator) sample(rnd *rand.Rand, line func(string, ...any), raw int, v int64) {
	if !g.Noise {
		line(`%d %d`, raw, v)
		return
	}
	switch rnd.Intn(8) {
	case 0:
		line("%d\t%d", raw, v)
	case 1:
		line(`%d %d  `, raw, v)
	case 2:
		line(`%03d %d`, raw, v)
	default:
		line(`%d %s`, raw, g.number(rnd, v, true))
	}
}

// number formats v, occasionally with an explicit sign or padded past the
// fast path digit limit when Noise is set. Times never carry a sign.
func (g *Generator) number(rnd *rand.Rand, v int64, signed bool) string {
	s := strconv.FormatInt(v, 10)
	if !g.Noise {
		return s
	}
	switch rnd.Intn(10) {
	case 0:
		if signed && v >= 0 {
			return `+` + s
		}
	case 1:
		if v >= 0 {
			return fmt.Sprintf(`%012d`, v)
		}
	}
	return s
}

// timeDelta is usually small, sometimes zero, and crosses every codec tier.
func timeDelta(rnd *rand.Rand) int64 {
	switch n := rnd.Intn(20); {
	case n == 0:
		return 0
	case n < 15:
		return int64(rnd.Intn(0xC0))
	case n < 19:
		return int64(rnd.Intn(0x3F00))
	default:
		return int64(rnd.Intn(1 << 20))
	}
}

func valueDelta(rnd *rand.Rand) int64 {
	switch n := rnd.Intn(20); {
	case n < 12:
		return int64(rnd.Intn(0xC0) - 0x60)
	case n < 18:
		return int64(rnd.Intn(0x3F00) - 0x1F00)
	case n < 19:
		return int64(rnd.Int31()) - 1<<30
	default:
		return int64(rnd.Int63n(1<<32)) - 1<<31
	}
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
