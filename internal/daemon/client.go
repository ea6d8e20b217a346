package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/standardbeagle/webpilot/internal/protocol"
)

var (
	// ErrNotConnected is returned when using a client before Connect.
	ErrNotConnected = errors.New("not connected to daemon")
)

// Client is the thin transport a CLI invocation uses: connect, send one
// frame, read one response, disconnect.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	closed bool

	socketPath string
	timeout    time.Duration
	debug      bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSocketPath sets the socket path for the client.
func WithSocketPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.socketPath = path
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDebug enables protocol traffic tracing to the log.
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// NewClient creates a new daemon client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		socketPath: DefaultSocketPath(),
		timeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SocketPath returns the configured socket path.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Connect dials the daemon socket.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.closed {
		return nil
	}

	conn, err := Connect(c.socketPath)
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.closed = false
	return nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Do sends one command frame and reads its response frame.
func (c *Client) Do(cmd *protocol.Command) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return nil, ErrNotConnected
	}

	raw, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	if c.debug {
		tracef("-> %s", raw[:len(raw)-1])
	}

	deadline := time.Now().Add(c.timeout)
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(raw); err != nil {
		return nil, fmt.Errorf("send command %s: %w", cmd.ID, err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", cmd.ID, err)
	}
	if c.debug {
		tracef("<- %s", line[:len(line)-1])
	}

	resp, err := protocol.DecodeResponse(line)
	if err != nil {
		return nil, err
	}
	if resp.ID != cmd.ID && resp.ID != protocol.FallbackID {
		return nil, fmt.Errorf("response id %q does not match request id %q", resp.ID, cmd.ID)
	}
	return resp, nil
}
