package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/webpilot/internal/updater"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Check whether a newer release is available",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		result, err := updater.NewChecker("").Check(ctx, appVersion)
		if err != nil {
			fail(fmt.Sprintf("check for updates: %v", err))
		}

		if !result.Available {
			fmt.Printf("%s v%s is up to date\n", appName, result.CurrentVersion)
			return
		}
		fmt.Printf("Update available: v%s -> v%s\n", result.CurrentVersion, result.LatestVersion)
		if result.ReleaseURL != "" {
			fmt.Println(result.ReleaseURL)
		}
	},
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}
