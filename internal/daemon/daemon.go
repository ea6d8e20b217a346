package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/webpilot/internal/config"
)

// Version is the daemon version.
const Version = "0.1.0"

// Daemon is the long-running supervisor: it enforces single-instance
// ownership of the socket, accepts connections, and funnels every shutdown
// trigger through one idempotent cleanup path.
type Daemon struct {
	cfg        *config.Config
	dispatcher *Dispatcher
	sockMgr    *SocketManager
	listener   net.Listener

	clients     sync.Map // clientID -> *Connection
	clientCount atomic.Int64
	nextID      atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  time.Time
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a daemon over the given browser session.
func New(cfg *config.Config, session Session) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:        cfg,
		dispatcher: NewDispatcher(session, cfg),
		sockMgr:    NewSocketManager(cfg.SocketPath),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start binds the socket, writes the instance marker, and begins accepting
// connections. A bind conflict is fatal for this start attempt and leaves a
// legitimately running instance's artifacts untouched.
func (d *Daemon) Start() error {
	listener, err := d.sockMgr.Listen()
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	d.listener = listener
	d.started = time.Now()

	log.Printf("[Daemon] v%s listening on %s", Version, d.sockMgr.Path())

	d.wg.Add(1)
	go d.acceptLoop()

	return nil
}

// Shutdown stops the daemon: stop accepting, release the browser
// best-effort, remove the socket and marker. Idempotent — concurrent
// triggers (signal plus close command) execute cleanup exactly once.
func (d *Daemon) Shutdown() {
	d.stopOnce.Do(func() {
		log.Printf("[Daemon] shutting down")

		d.cancel()
		if d.listener != nil {
			d.listener.Close()
		}

		d.clients.Range(func(_, value any) bool {
			value.(*Connection).Close()
			return true
		})

		if err := d.dispatcher.ReleaseSession(); err != nil {
			log.Printf("[Daemon] browser release during shutdown: %v", err)
		}

		// Wait briefly for connection goroutines; stragglers are cut off
		// by process exit, which is acceptable for one-shot clients.
		waited := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			log.Printf("[Daemon] timed out waiting for connections")
		}

		if err := d.sockMgr.Close(); err != nil {
			log.Printf("[Daemon] artifact cleanup: %v", err)
		}

		log.Printf("[Daemon] stopped")
		close(d.done)
	})
}

// Done returns a channel closed when shutdown has completed.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// SocketPath returns the socket path the daemon is serving on.
func (d *Daemon) SocketPath() string {
	return d.sockMgr.Path()
}

// Uptime reports how long the daemon has been listening.
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.started)
}

// ClientCount reports the number of connected clients.
func (d *Daemon) ClientCount() int64 {
	return d.clientCount.Load()
}

// acceptLoop accepts client connections until shutdown.
func (d *Daemon) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				log.Printf("[Daemon] accept: %v", err)
				continue
			}
		}

		clientID := d.nextID.Add(1)
		clientConn := newConnection(clientID, conn, d)

		d.clients.Store(clientID, clientConn)
		d.clientCount.Add(1)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer func() {
				d.clients.Delete(clientID)
				d.clientCount.Add(-1)
			}()
			clientConn.Handle(d.ctx)
		}()
	}
}
