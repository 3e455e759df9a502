package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Process is a producer running as a subprocess. Its stdin and stdout form
// the channel, its stderr is passed through to Stderr.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	once sync.Once
	err  error
}

// Stderr receives the output a spawned producer writes to stderr.
var Stderr io.Writer = os.Stderr

// KillDelay is how long Close waits for a producer to exit on its own before
// killing it.
var KillDelay = 2 * time.Second

// Spawn starts name with args and returns the channel to it. The process is
// killed if ctx is done before Close.
func Spawn(ctx context.Context, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf(`transport: %w`, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf(`transport: %w`, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf(`transport: start %v: %w`, name, err)
	}
	return &Process{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Read implements io.Reader.
func (p *Process) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Write implements io.Writer.
func (p *Process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close closes stdin, which a producer treats as the end of the session, and
// waits for the process to exit. A pending Read returns at once. A process
// still running after KillDelay is killed.
func (p *Process) Close() error {
	p.once.Do(func() {
		p.stdin.Close()
		p.stdout.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()
		timer := time.NewTimer(KillDelay)
		defer timer.Stop()

		var err error
		select {
		case err = <-done:
		case <-timer.C:
			p.cmd.Process.Kill()
			err = <-done
		}
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			err = fmt.Errorf(`transport: producer %v`, exit.ProcessState)
		}
		p.err = err
	})
	return p.err
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}
