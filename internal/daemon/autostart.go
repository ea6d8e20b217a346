package daemon

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/webpilot/internal/config"
	"github.com/standardbeagle/webpilot/internal/protocol"
)

// tracef logs client-side protocol tracing.
func tracef(format string, args ...any) {
	log.Printf("[Client] "+format, args...)
}

// AutoStartConfig holds configuration for auto-starting the daemon.
type AutoStartConfig struct {
	// SocketPath is the socket path to connect to.
	SocketPath string
	// DaemonPath is the daemon executable; empty means the current binary.
	DaemonPath string
	// RetryInterval is how long to wait between connection attempts.
	RetryInterval time.Duration
	// MaxRetries is the maximum number of connection attempts.
	MaxRetries int
	// Debug enables protocol tracing on the returned client.
	Debug bool
}

// DefaultAutoStartConfig returns sensible defaults.
func DefaultAutoStartConfig() AutoStartConfig {
	return AutoStartConfig{
		SocketPath:    DefaultSocketPath(),
		RetryInterval: 100 * time.Millisecond,
		MaxRetries:    50,
		Debug:         config.Debug(),
	}
}

// EnsureDaemonRunning returns a connected client, spawning a detached
// daemon process first if none is reachable.
func EnsureDaemonRunning(cfg AutoStartConfig) (*Client, error) {
	client := NewClient(
		WithSocketPath(cfg.SocketPath),
		WithDebug(cfg.Debug),
	)

	if err := client.Connect(); err == nil {
		return client, nil
	}

	if err := spawnDaemon(cfg); err != nil {
		return nil, fmt.Errorf("auto-start daemon: %w", err)
	}

	for i := 0; i < cfg.MaxRetries; i++ {
		time.Sleep(cfg.RetryInterval)
		if err := client.Connect(); err == nil {
			return client, nil
		}
	}
	return nil, fmt.Errorf("daemon did not become reachable at %s", cfg.SocketPath)
}

// spawnDaemon starts the daemon as a detached background process.
func spawnDaemon(cfg AutoStartConfig) error {
	daemonPath := cfg.DaemonPath
	if daemonPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		daemonPath = exe
	}

	args := []string{"daemon", "start"}
	if cfg.SocketPath != DefaultSocketPath() {
		args = append(args, "--socket", cfg.SocketPath)
	}

	cmd := exec.Command(daemonPath, args...)
	cmd.Env = append(os.Environ(), config.EnvDaemon+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detachProcess(cmd)

	if cfg.Debug {
		tracef("spawning daemon: %s %v", daemonPath, args)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", daemonPath, err)
	}
	// The daemon outlives this invocation; don't hold the process handle.
	return cmd.Process.Release()
}

// StopDaemon connects to a running daemon and requests shutdown via the
// close command. A daemon that is not running is not an error.
func StopDaemon(socketPath string) error {
	client := NewClient(WithSocketPath(socketPath), WithTimeout(10*time.Second))
	if err := client.Connect(); err != nil {
		if err == ErrSocketNotFound {
			return nil
		}
		return err
	}
	defer client.Close()

	resp, err := client.Do(&protocol.Command{
		ID:     uuid.NewString(),
		Action: protocol.ActionClose,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("daemon refused shutdown: %s", resp.Error)
	}
	return nil
}
