package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/imr/go-epic/consumer"
	"github.com/imr/go-epic/internal/cli"
	"github.com/imr/go-epic/internal/tracegen"
)

type catter struct {
	flags  cli.Flags
	source cli.Source

	dump     bool
	quiet    bool
	generate bool
	gen      tracegen.Generator

	stdout, stderr io.Writer
	color          bool
	bar            bool

	progressed atomic.Bool
	notice     sync.Once
}

func newCommand(c *catter) *cobra.Command {
	cmd := &cobra.Command{
		Use:          `epiccat [flags] [TRACE]`,
		Short:        `Print the signals of an Epic trace`,
		Long:         help,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.generate {
				_, err := c.gen.WriteTo(c.stdout)
				return err
			}
			path := ``
			if len(args) > 0 {
				path = args[0]
			} else if c.source.NeedsPath() {
				path = `-`
			}
			return c.cat(cmd, path)
		},
	}
	c.flags.Bind(cmd)
	c.source.Bind(cmd)

	def := tracegen.New(1)
	fs := cmd.Flags()
	fs.BoolVarP(&c.dump, `dump`, `d`, false, `print the events of every signal`)
	fs.BoolVarP(&c.quiet, `quiet`, `q`, false, `do not print producer messages to stderr`)
	fs.BoolVarP(&c.generate, `generate`, `g`, false, `write a synthetic trace to stdout and exit`)
	fs.Int64Var(&c.gen.Seed, `seed`, def.Seed, `seed of the synthetic trace`)
	fs.IntVar(&c.gen.Signals, `signals`, def.Signals, `signals in the synthetic trace`)
	fs.IntVar(&c.gen.Steps, `steps`, def.Steps, `time steps in the synthetic trace`)
	fs.Float64Var(&c.gen.Density, `density`, def.Density, `chance a signal changes at each step`)
	fs.BoolVar(&c.gen.Noise, `noise`, false, `mix comments and odd spacing into the synthetic trace`)
	fs.BoolVar(&c.gen.CRLF, `crlf`, false, `end synthetic trace lines with CRLF`)
	return cmd
}

func (c *catter) cat(cmd *cobra.Command, path string) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}
	logger, err := c.flags.Logger(cfg, `epiccat`)
	if err != nil {
		return err
	}
	flush, err := c.flags.StartTracing(`epiccat`)
	if err != nil {
		return err
	}
	defer flush()
	if path == `-` {
		c.waitingNotice()
	}

	sess, closer, err := c.source.Open(cmd.Context(), path, cfg, logger,
		consumer.WithProgress(c.progress),
		consumer.WithMessages(c.message))
	if err != nil {
		return err
	}
	defer closer()

	var title string
	switch {
	case c.source.Connect != ``:
		title = c.source.Connect
	case path == `-`:
		title = `stdin`
	default:
		title = filepath.Base(path)
	}
	if err := c.print(cmd.Context(), title, sess); err != nil {
		return err
	}
	return closer()
}

// waitingNotice tells a user who forgot to pipe a trace in why nothing happens.
func (c *catter) waitingNotice() {
	c.notice.Do(func() {
		time.AfterFunc(time.Second/2, func() {
			if !c.progressed.Load() {
				fmt.Fprintln(c.stderr, `epiccat info: waiting for stdin...`)
			}
		})
	})
}

func (c *catter) progress(pct int) {
	c.progressed.Store(true)
	if !c.bar {
		return
	}
	fmt.Fprintf(c.stderr, "\rparsing %3d%%", pct)
	if pct == 100 {
		fmt.Fprintln(c.stderr)
	}
}

func (c *catter) message(msg string) {
	if !c.quiet {
		fmt.Fprintln(c.stderr, `epiccat producer:`, msg)
	}
}

func (c *catter) print(ctx context.Context, title string, sess *consumer.Session) error {
	st := newStyles(c.color)
	res := sess.Resolutions()

	fmt.Fprintln(c.stdout, st.title.Render(title))
	fmt.Fprintf(c.stdout, "  %s %d\n", st.label.Render(`signals   `), len(sess.Signals()))
	fmt.Fprintf(c.stdout, "  %s %d (%g s)\n", st.label.Render(`max time  `),
		sess.MaxTime(), float64(sess.MaxTime())*res.Time)
	fmt.Fprintf(c.stdout, "  %s time %g s, voltage %g V, current %g A\n",
		st.label.Render(`resolution`), res.Time, res.Voltage, res.Current)

	width := 0
	for _, sig := range sess.Signals() {
		width = max(width, lipgloss.Width(sig.FullName()))
	}
	for _, sig := range sess.Signals() {
		name := sig.FullName()
		pad := width - lipgloss.Width(name)
		fmt.Fprintf(c.stdout, "  %s %s %s%*s  %s\n",
			st.dim.Render(fmt.Sprintf(`#%-3d`, sig.Index())),
			sig.Kind().Letter(),
			st.name.Render(name), pad, ``,
			st.dim.Render(fmt.Sprintf(`[%d, %d]`, sig.Min(), sig.Max())))
		if !c.dump {
			continue
		}

		times, values, err := sig.Events(ctx)
		if err != nil {
			return err
		}
		for i := range times {
			fmt.Fprintf(c.stdout, "      %d\t%d\t%g\n",
				times[i], values[i], float64(values[i])*sig.Resolution())
		}
	}
	return nil
}

type styles struct {
	title, label, name, dim lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, label: plain, name: plain, dim: plain}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(`12`)),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color(`8`)),
		name:  lipgloss.NewStyle().Foreground(lipgloss.Color(`10`)),
		dim:   lipgloss.NewStyle().Faint(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &catter{stdout: os.Stdout, stderr: os.Stderr}
	c.color, c.bar = isTerminal(os.Stdout), isTerminal(os.Stderr)
	if err := newCommand(c).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var help = `Prints the signals of an Epic trace, optionally with their events.

Example:

  # summary of a trace parsed in this process
  epiccat sim.epic

  # the same through a producer subprocess, with every event
  epiccat --producer epicserve -d sim.epic

  # read a trace piped on stdin
  gunzip -c sim.epic.gz | epiccat

  # a remote producer
  epiccat --connect tcp://host:7070

  # make a synthetic trace to test with
  epiccat -g --signals 100 --steps 10000 > synthetic.epic
`
