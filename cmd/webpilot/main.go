package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/webpilot/internal/config"
)

const (
	appName    = "webpilot"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Drive a persistent browser from the command line",
	Long: `Webpilot drives a real browser from short-lived CLI invocations.

A background daemon owns the browser, so page state, history, and cookies
survive between commands:

  webpilot open https://example.com
  webpilot click "a.more"
  webpilot screenshot /tmp/page.png
  webpilot close

The daemon starts automatically on first use and exits on 'webpilot close'.`,
	Version: appVersion,
	Run: func(cmd *cobra.Command, args []string) {
		// Spawned detached with the daemon env flag set, the binary runs
		// the daemon directly instead of showing help.
		if os.Getenv(config.EnvDaemon) != "" {
			runDaemonStart(cmd, args)
			return
		}
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("socket", "", "Socket path for daemon communication")
	rootCmd.PersistentFlags().Bool("json", false, "Print raw JSON responses")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-action timeout (e.g. 30s)")
	rootCmd.PersistentFlags().Bool("debug", false, "Trace protocol traffic")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
