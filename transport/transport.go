// Package transport provides the duplex byte channels a producer and consumer
// talk over: an in-process pipe, a subprocess on stdin and stdout, a TCP
// connection, or a WebSocket.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
)

// Channel is a duplex byte stream. Closing it unblocks pending reads and
// writes on both ends.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
}

// Pipe returns the two connected ends of an in-process channel.
func Pipe() (Channel, Channel) {
	a, b := net.Pipe()
	return a, b
}

// Stdio returns the channel a subprocess producer speaks on. Close closes
// stdout.
func Stdio() Channel {
	return &stdio{r: os.Stdin, w: os.Stdout}
}

type stdio struct {
	r    io.Reader
	w    io.WriteCloser
	once sync.Once
	err  error
}

func (s *stdio) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *stdio) Close() error {
	s.once.Do(func() { s.err = s.w.Close() })
	return s.err
}

// Dial connects to a producer at rawURL, which is tcp://host:port,
// ws://host:port/path or wss://host:port/path.
func Dial(ctx context.Context, rawURL string) (Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf(`transport: %w`, err)
	}
	switch u.Scheme {
	case `tcp`:
		var d net.Dialer
		conn, err := d.DialContext(ctx, `tcp`, u.Host)
		if err != nil {
			return nil, fmt.Errorf(`transport: %w`, err)
		}
		return conn, nil
	case `ws`, `wss`:
		return DialWebSocket(ctx, rawURL)
	}
	return nil, fmt.Errorf(`transport: unsupported scheme %q`, u.Scheme)
}
