// Package daemon provides the stateful background process that holds the
// browser session across short-lived CLI invocations, plus the client
// transport used to reach it.
package daemon

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// SocketName is the well-known name for the webpilot daemon artifacts.
const SocketName = "webpilot"

var (
	// ErrDaemonRunning is returned when another live daemon owns the socket.
	ErrDaemonRunning = errors.New("daemon already running")
	// ErrSocketInUse is returned when the socket path is bound by another
	// process.
	ErrSocketInUse = errors.New("socket already in use")
	// ErrSocketNotFound is returned when no daemon socket exists.
	ErrSocketNotFound = errors.New("daemon socket not found")
)

// DefaultSocketPath returns the well-known socket path under the temp dir.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), SocketName+".sock")
}

// PIDPathFor derives the instance marker path from a socket path.
func PIDPathFor(socketPath string) string {
	return strings.TrimSuffix(socketPath, ".sock") + ".pid"
}

// SocketManager owns the daemon's two durable artifacts: the listening
// socket and the pid marker next to it. Both are ephemeral; liveness is
// always re-verified, never trusted blindly.
type SocketManager struct {
	path    string
	pidPath string
}

// NewSocketManager creates a socket manager for the given path. An empty
// path selects the well-known default.
func NewSocketManager(path string) *SocketManager {
	if path == "" {
		path = DefaultSocketPath()
	}
	return &SocketManager{
		path:    path,
		pidPath: PIDPathFor(path),
	}
}

// Path returns the socket path.
func (sm *SocketManager) Path() string {
	return sm.path
}

// PIDPath returns the instance marker path.
func (sm *SocketManager) PIDPath() string {
	return sm.pidPath
}

// Listen performs the daemon's startup sequence: clear stale artifacts from
// a previous unclean exit, bind the socket, then record our pid. A live
// instance (an answering socket) aborts the attempt without touching that
// instance's artifacts.
func (sm *SocketManager) Listen() (net.Listener, error) {
	if pid, ok := sm.readPID(); ok {
		// The pid probe alone is advisory: after an unclean exit the pid can
		// be recycled by an unrelated process. Only an answering socket
		// confirms a live instance.
		if pidAlive(pid) && sm.answers() {
			return nil, fmt.Errorf("%w (pid %d)", ErrDaemonRunning, pid)
		}
		log.Printf("[Socket] removing stale artifacts (marker pid %d, socket not answering)", pid)
		sm.removeArtifacts()
	}

	listener, err := net.Listen("unix", sm.path)
	if err != nil {
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("bind %s: %w", sm.path, err)
		}
		// The socket file exists without a live marker. An answering
		// socket is authoritative over the pid probe: treat it as running.
		if sm.answers() {
			return nil, fmt.Errorf("%w at %s", ErrSocketInUse, sm.path)
		}
		if rmErr := os.Remove(sm.path); rmErr != nil {
			return nil, fmt.Errorf("remove stale socket %s: %w", sm.path, rmErr)
		}
		listener, err = net.Listen("unix", sm.path)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", sm.path, err)
		}
	}

	if err := os.Chmod(sm.path, 0600); err != nil {
		listener.Close()
		os.Remove(sm.path)
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	// The marker is written only after a successful bind, and before the
	// daemon declares readiness.
	if err := sm.writePID(os.Getpid()); err != nil {
		listener.Close()
		os.Remove(sm.path)
		return nil, fmt.Errorf("write pid marker: %w", err)
	}

	return listener, nil
}

// Close removes the socket and marker files. The listener itself is closed
// by the daemon before this is called.
func (sm *SocketManager) Close() error {
	return sm.removeArtifacts()
}

// IsRunning reports whether a live daemon owns the socket at path. A marker
// pointing at a dead process is cleaned up along with any leftover socket.
func IsRunning(path string) bool {
	sm := NewSocketManager(path)

	pid, ok := sm.readPID()
	if !ok {
		return false
	}
	// Same rule as Listen: an alive pid without an answering socket is a
	// recycled pid, not a daemon.
	if pidAlive(pid) && sm.answers() {
		return true
	}

	log.Printf("[Socket] daemon pid %d is gone, cleaning up stale artifacts", pid)
	sm.removeArtifacts()
	return false
}

// Connect dials an existing daemon socket.
func Connect(path string) (net.Conn, error) {
	if path == "" {
		path = DefaultSocketPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrSocketNotFound
	}
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return conn, nil
}

// answers probes whether something accepts connections on the socket path.
func (sm *SocketManager) answers() bool {
	conn, err := net.DialTimeout("unix", sm.path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (sm *SocketManager) readPID() (int, bool) {
	data, err := os.ReadFile(sm.pidPath)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (sm *SocketManager) writePID(pid int) error {
	return os.WriteFile(sm.pidPath, []byte(strconv.Itoa(pid)), 0600)
}

func (sm *SocketManager) removeArtifacts() error {
	var errs []error
	if err := os.Remove(sm.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := os.Remove(sm.pidPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) ||
		strings.Contains(err.Error(), "address already in use")
}
