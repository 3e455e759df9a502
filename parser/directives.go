package parser

import (
	"bytes"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/imr/go-epic/event"
)

type directive struct {
	min, max int
	fn       func(s *State, args [][]byte)
}

// Directives by name. Those without fn are checked for arity and ignored.
var directives = map[string]directive{
	`.index`:              {3, 3, (*State).index},
	`.time_resolution`:    {1, 1, (*State).timeResolution},
	`.voltage_resolution`: {1, 1, (*State).voltageResolution},
	`.current_resolution`: {1, 1, (*State).currentResolution},
	`.hier_separator`:     {1, 1, (*State).hierSeparator},
	`.vdd`:                {1, 1, nil},
	`.simulation_time`:    {1, 1, nil},
	`.high_threshold`:     {1, 1, nil},
	`.low_threshold`:      {1, 1, nil},
	`.nnodes`:             {1, 1, nil},
	`.nelems`:             {1, 1, nil},
	`.extra_nodes`:        {1, 1, nil},
	`.case`:               {1, 1, nil},
	`.bus_notation`:       {1, 3, nil},
}

func (s *State) directive(line []byte) {
	f := bytes.Fields(line)
	name := strings.ToLower(string(f[0]))
	d, ok := directives[name]
	if !ok {
		s.diagnose(event.DiagUnknownDirective, `unknown directive %q`, clip(f[0]))
		return
	}
	args := f[1:]
	if len(args) < d.min || len(args) > d.max {
		if d.min == d.max {
			s.diagnose(event.DiagMalformed, `%v expects %d arguments, got %d`, name, d.min, len(args))
		} else {
			s.diagnose(event.DiagMalformed, `%v expects %d to %d arguments, got %d`, name, d.min, d.max, len(args))
		}
		return
	}
	if d.fn != nil {
		d.fn(s, args)
	}
}

// index handles `.index <name> <raw> <v|i>`.
func (s *State) index(args [][]byte) {
	raw, err := strconv.ParseUint(string(args[1]), 10, 31)
	if err != nil {
		s.diagnose(event.DiagMalformed, `invalid signal index %q`, clip(args[1]))
		return
	}
	kind, ok := event.ParseKind(string(args[2]))
	if !ok {
		s.diagnose(event.DiagMalformed, `invalid signal kind %q`, clip(args[2]))
		return
	}
	if prev := s.lookup(int32(raw)); prev != nil {
		s.opts.logger.Debug(`signal redeclared`,
			slog.Int(`line`, s.line),
			slog.Int64(`raw`, int64(raw)),
			slog.Int(`signal`, prev.Index))
		return
	}

	ctx, leaf := cleanName(string(args[0]), s.tr.Separator, kind)
	sig := &Signal{Raw: int32(raw)}
	sig.Kind = kind
	sig.ContextID = s.tr.Pool.Intern(ctx)
	sig.NameID = s.tr.Pool.Intern(leaf)
	s.declare(sig)
}

func (s *State) resolution(args [][]byte, scale float64, dst *float64) {
	v, err := strconv.ParseFloat(string(args[0]), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		s.diagnose(event.DiagMalformed, `invalid resolution %q`, clip(args[0]))
		return
	}
	*dst = v * scale
}

// timeResolution is given in nanoseconds.
func (s *State) timeResolution(args [][]byte) {
	s.resolution(args, 1e-9, &s.tr.Resolutions.Time)
}

func (s *State) voltageResolution(args [][]byte) {
	s.resolution(args, 1, &s.tr.Resolutions.Voltage)
}

func (s *State) currentResolution(args [][]byte) {
	s.resolution(args, 1, &s.tr.Resolutions.Current)
}

func (s *State) hierSeparator(args [][]byte) {
	s.tr.Separator = string(args[0])
}
