package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/webpilot/internal/browser"
	"github.com/standardbeagle/webpilot/internal/config"
	"github.com/standardbeagle/webpilot/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background daemon",
	Long: `Manage the background daemon that owns the browser.

The daemon keeps the browser session alive between CLI invocations. It is
started automatically when needed, but can be managed manually.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	Run:   runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Run:   runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	Run:   runDaemonStatus,
}

var daemonInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show daemon socket, marker, and process details",
	Run:   runDaemonInfo,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	Run:   runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonInfoCmd)
	rootCmd.AddCommand(statusCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if path, _ := cmd.Root().PersistentFlags().GetString("socket"); path != "" {
		cfg.SocketPath = path
	}

	session := browser.NewManager(cfg.NavTimeout, cfg.ActionTimeout)
	d := daemon.New(cfg, session)

	if err := d.Start(); err != nil {
		log.Fatalf("Failed to start daemon: %v", err)
	}

	// Signal-triggered and close-command shutdown converge on the same
	// idempotent cleanup path.
	sigCtx, cancel := signal.NotifyContext(cmd.Context(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	select {
	case <-sigCtx.Done():
		log.Println("Daemon shutdown signal received...")
		d.Shutdown()
	case <-d.Done():
	}

	<-d.Done()
	log.Println("Daemon shutdown complete")
}

func runDaemonStop(cmd *cobra.Command, args []string) {
	path := socketPath(cmd)
	if !daemon.IsRunning(path) {
		fmt.Println("Daemon is not running")
		return
	}
	if err := daemon.StopDaemon(path); err != nil {
		fail(fmt.Sprintf("stop daemon: %v", err))
	}

	// Give the daemon a moment to remove its artifacts.
	for i := 0; i < 20; i++ {
		if !daemon.IsRunning(path) {
			fmt.Println("Daemon stopped")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fail("daemon did not stop")
}

func runDaemonInfo(cmd *cobra.Command, args []string) {
	path := socketPath(cmd)
	pidPath := daemon.PIDPathFor(path)

	fmt.Printf("Socket:  %s\n", path)
	fmt.Printf("Marker:  %s\n", pidPath)

	if !daemon.IsRunning(path) {
		fmt.Println("Status:  not running")
		os.Exit(1)
	}
	fmt.Println("Status:  running")
	if data, err := os.ReadFile(pidPath); err == nil {
		fmt.Printf("PID:     %s\n", strings.TrimSpace(string(data)))
	}
}

func runDaemonStatus(cmd *cobra.Command, args []string) {
	path := socketPath(cmd)
	if daemon.IsRunning(path) {
		fmt.Println("Daemon is running")
		fmt.Printf("Socket: %s\n", path)
		return
	}
	fmt.Println("Daemon is not running")
	os.Exit(1)
}
