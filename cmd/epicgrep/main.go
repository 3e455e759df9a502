package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imr/go-epic/consumer"
	"github.com/imr/go-epic/internal/cli"
)

type grepper struct {
	flags  cli.Flags
	source cli.Source

	regexp string
	invert bool
	quiet  bool
	scaled bool

	stdout, stderr io.Writer
}

func newCommand(g *grepper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          `epicgrep [flags] [TRACE]`,
		Short:        `Print the events of the signals whose name matches a regexp`,
		Long:         help,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ``
			if len(args) > 0 {
				path = args[0]
			} else if g.source.NeedsPath() {
				path = `-`
			}
			return g.grep(cmd, path)
		},
	}
	g.flags.Bind(cmd)
	g.source.Bind(cmd)

	fs := cmd.Flags()
	fs.StringVarP(&g.regexp, `regexp`, `r`, ``, `regexp to match against the full signal name`)
	fs.BoolVarP(&g.invert, `invert`, `v`, false, `invert matching, like grep -v`)
	fs.BoolVarP(&g.quiet, `quiet`, `q`, false, `do not write information to stderr`)
	fs.BoolVar(&g.scaled, `scaled`, false, `print seconds and volts or amperes instead of raw integers`)
	return cmd
}

func (g *grepper) grep(cmd *cobra.Command, path string) error {
	re, err := regexp.Compile(g.regexp)
	if err != nil {
		return fmt.Errorf(`epicgrep regexp: %w`, err)
	}
	cfg, err := g.flags.Load(cmd)
	if err != nil {
		return err
	}
	logger, err := g.flags.Logger(cfg, `epicgrep`)
	if err != nil {
		return err
	}
	flush, err := g.flags.StartTracing(`epicgrep`)
	if err != nil {
		return err
	}
	defer flush()

	sess, closer, err := g.source.Open(cmd.Context(), path, cfg, logger,
		consumer.WithMessages(g.info))
	if err != nil {
		return err
	}
	defer closer()

	w := bufio.NewWriter(g.stdout)
	res := sess.Resolutions()
	for _, sig := range sess.Signals() {
		name := sig.FullName()
		if re.MatchString(name) == g.invert {
			g.info(`filtered: ` + name)
			continue
		}

		// only matching signals cross the channel
		times, values, err := sig.Events(cmd.Context())
		if err != nil {
			return err
		}
		for i := range times {
			if g.scaled {
				fmt.Fprintf(w, "%s\t%g\t%g\n", name,
					float64(times[i])*res.Time, float64(values[i])*sig.Resolution())
			} else {
				fmt.Fprintf(w, "%s\t%d\t%d\n", name, times[i], values[i])
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return closer()
}

func (g *grepper) info(msg string) {
	if !g.quiet {
		fmt.Fprintln(g.stderr, `epicgrep`, msg)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := &grepper{stdout: os.Stdout, stderr: os.Stderr}
	if err := newCommand(g).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var help = `Prints one line per event of every signal whose full name matches a
regexp: the name, the time and the value, separated by tabs.

Only the matching signals are fetched from the producer.

Example:

  # every event of the outputs of block 3
  epicgrep -r '^top\.blk3\..*out$' sim.epic

  # everything except currents, in seconds and volts
  epicgrep -v -r 'i\(' --scaled sim.epic

  # from a remote producer, quietly
  epicgrep -q --connect ws://host:7070/trace -r clk
`
