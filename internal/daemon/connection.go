package daemon

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/standardbeagle/webpilot/internal/protocol"
)

// closeGrace is how long the handler waits after writing a close response
// before tearing the daemon down, so the flush reaches the client.
const closeGrace = 100 * time.Millisecond

// Connection handles one client connection: it assembles frames from raw
// reads, processes them strictly in order, and writes responses back.
// Socket-level failures end this connection only.
type Connection struct {
	id     int64
	conn   net.Conn
	daemon *Daemon
	frames protocol.FrameBuffer
}

func newConnection(id int64, conn net.Conn, daemon *Daemon) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		daemon: daemon,
	}
}

// Handle processes frames from the client until disconnect or shutdown.
func (c *Connection) Handle(ctx context.Context) {
	defer c.conn.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.frames.Append(buf[:n])
			for {
				line, ok := c.frames.Next()
				if !ok {
					break
				}
				if stop := c.process(ctx, line); stop {
					return
				}
			}
		}
		if err != nil {
			// EOF, resets and closed-socket errors are all swallowed at
			// the connection boundary.
			return
		}
	}
}

// process decodes and dispatches one frame, then writes its response.
// Returns true when the connection should stop (shutdown requested).
func (c *Connection) process(ctx context.Context, line []byte) bool {
	cmd, errResp := protocol.DecodeCommand(line)
	if errResp != nil {
		log.Printf("[Conn %d] rejected frame: %s", c.id, errResp.Error)
		c.write(errResp)
		return false
	}

	resp, shutdown := c.daemon.dispatcher.Dispatch(ctx, cmd)
	c.write(resp)

	if shutdown {
		// The close response must reach the client before the listener
		// goes away; the grace delay orders the flush ahead of teardown.
		time.Sleep(closeGrace)
		go c.daemon.Shutdown()
		return true
	}
	return false
}

// write encodes and sends a response frame. Write failures mean the client
// is gone; they are logged and otherwise ignored.
func (c *Connection) write(resp *protocol.Response) {
	raw, err := protocol.EncodeResponse(resp)
	if err != nil {
		log.Printf("[Conn %d] encode response %s: %v", c.id, resp.ID, err)
		raw, _ = protocol.EncodeResponse(protocol.ErrorResponse(
			resp.ID, protocol.ErrInternal, "response not serializable"))
	}

	c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if _, err := c.conn.Write(raw); err != nil {
		log.Printf("[Conn %d] write: %v", c.id, err)
	}
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}
