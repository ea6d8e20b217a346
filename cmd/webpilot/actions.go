package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/standardbeagle/webpilot/internal/config"
	"github.com/standardbeagle/webpilot/internal/daemon"
	"github.com/standardbeagle/webpilot/internal/protocol"
)

var openCmd = &cobra.Command{
	Use:     "open URL",
	Aliases: []string{"navigate", "goto"},
	Short:   "Navigate to a URL",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionNavigate, URL: args[0]})
	},
}

var clickCmd = &cobra.Command{
	Use:   "click SELECTOR",
	Short: "Click an element",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionClick, Selector: args[0]})
	},
}

var typeCmd = &cobra.Command{
	Use:   "type SELECTOR TEXT",
	Short: "Clear a field and type text into it",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionType, Selector: args[0], Text: args[1]})
	},
}

var pressCmd = &cobra.Command{
	Use:   "press KEY",
	Short: "Press a key (Enter, Tab, ArrowDown, ...)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		selector, _ := cmd.Flags().GetString("selector")
		send(cmd, &protocol.Command{Action: protocol.ActionPress, Key: args[0], Selector: selector})
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait [SELECTOR]",
	Short: "Wait for an element to be visible, or for text with --text",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pc := &protocol.Command{Action: protocol.ActionWait}
		if len(args) > 0 {
			pc.Selector = args[0]
		}
		pc.Text, _ = cmd.Flags().GetString("text")
		send(cmd, pc)
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot [PATH]",
	Short: "Capture the page as a PNG",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pc := &protocol.Command{Action: protocol.ActionScreenshot}
		if len(args) > 0 {
			pc.Path = absPath(args[0])
		}
		pc.FullPage, _ = cmd.Flags().GetBool("full-page")
		send(cmd, pc)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "List the page's interactive elements",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionSnapshot})
	},
}

var extractCmd = &cobra.Command{
	Use:     "extract [SELECTOR]",
	Aliases: []string{"content"},
	Short:   "Extract page content as text, or HTML with --html",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pc := &protocol.Command{Action: protocol.ActionContent}
		if len(args) > 0 {
			pc.Selector = args[0]
		}
		if html, _ := cmd.Flags().GetBool("html"); html {
			pc.Format = "html"
		}
		send(cmd, pc)
	},
}

var evalCmd = &cobra.Command{
	Use:     "eval EXPRESSION",
	Aliases: []string{"evaluate"},
	Short:   "Evaluate a JavaScript expression in the page",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionEvaluate, Expression: args[0]})
	},
}

var scrollCmd = &cobra.Command{
	Use:   "scroll [SELECTOR]",
	Short: "Scroll to an element, by --dx/--dy, or one page down",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pc := &protocol.Command{Action: protocol.ActionScroll}
		if len(args) > 0 {
			pc.Selector = args[0]
		}
		pc.DeltaX, _ = cmd.Flags().GetInt("dx")
		pc.DeltaY, _ = cmd.Flags().GetInt("dy")
		send(cmd, pc)
	},
}

var hoverCmd = &cobra.Command{
	Use:   "hover SELECTOR",
	Short: "Hover over an element",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionHover, Selector: args[0]})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select SELECTOR VALUE",
	Short: "Set the value of a select or input element",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		send(cmd, &protocol.Command{Action: protocol.ActionSelect, Selector: args[0], Value: args[1]})
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch the browser explicitly (replaces a running one)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		pc := &protocol.Command{Action: protocol.ActionLaunch}
		pc.Engine, _ = cmd.Flags().GetString("engine")
		if headed, _ := cmd.Flags().GetBool("headed"); headed {
			headless := false
			pc.Headless = &headless
		}
		if viewport, _ := cmd.Flags().GetString("viewport"); viewport != "" {
			w, h, err := parseViewport(viewport)
			if err != nil {
				fail(err.Error())
			}
			pc.Width, pc.Height = w, h
		}
		send(cmd, pc)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the browser and stop the daemon",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Close never auto-starts a daemon just to tear it down.
		socketPath := socketPath(cmd)
		if !daemon.IsRunning(socketPath) {
			fmt.Println("Daemon is not running")
			return
		}
		if err := daemon.StopDaemon(socketPath); err != nil {
			fail(fmt.Sprintf("close: %v", err))
		}
		fmt.Println("Browser closed, daemon stopped")
	},
}

func init() {
	pressCmd.Flags().String("selector", "", "Send the key to a specific element")
	waitCmd.Flags().String("text", "", "Wait for text to appear in the page")
	screenshotCmd.Flags().Bool("full-page", false, "Capture the full scrollable page")
	extractCmd.Flags().Bool("html", false, "Return HTML instead of text")
	scrollCmd.Flags().Int("dx", 0, "Horizontal scroll delta in pixels")
	scrollCmd.Flags().Int("dy", 0, "Vertical scroll delta in pixels")
	launchCmd.Flags().String("engine", "", "Browser engine: chromium, chrome, chrome-beta, edge, or a path")
	launchCmd.Flags().Bool("headed", false, "Run with a visible window")
	launchCmd.Flags().String("viewport", "", "Viewport size, e.g. 1280x800")

	rootCmd.AddCommand(openCmd, clickCmd, typeCmd, pressCmd, waitCmd,
		screenshotCmd, snapshotCmd, extractCmd, evalCmd, scrollCmd,
		hoverCmd, selectCmd, launchCmd, closeCmd)
}

// send fills in the correlation id, ensures a daemon is reachable, performs
// one request/response exchange, and prints the result.
func send(cmd *cobra.Command, pc *protocol.Command) {
	pc.ID = uuid.NewString()

	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		pc.TimeoutMS = int(timeout.Milliseconds())
	}

	autoCfg := daemon.DefaultAutoStartConfig()
	autoCfg.SocketPath = socketPath(cmd)
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		autoCfg.Debug = true
	}

	client, err := daemon.EnsureDaemonRunning(autoCfg)
	if err != nil {
		fail(fmt.Sprintf("daemon: %v", err))
	}
	defer client.Close()

	resp, err := client.Do(pc)
	if err != nil {
		fail(fmt.Sprintf("%s: %v", pc.Action, err))
	}
	if !resp.Success {
		fail(resp.Error)
	}

	printData(cmd, resp.Data)
}

// printData renders a success payload: raw JSON with --json or when stdout
// is not a terminal, key/value lines otherwise.
func printData(cmd *cobra.Command, data map[string]any) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut || !term.IsTerminal(int(os.Stdout.Fd())) {
		raw, err := json.Marshal(data)
		if err != nil {
			fail(fmt.Sprintf("render response: %v", err))
		}
		fmt.Println(string(raw))
		return
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			fmt.Printf("%s: %s\n", k, v)
		default:
			raw, _ := json.Marshal(v)
			fmt.Printf("%s: %s\n", k, raw)
		}
	}
}

func socketPath(cmd *cobra.Command) string {
	if path, _ := cmd.Root().PersistentFlags().GetString("socket"); path != "" {
		return path
	}
	cfg, err := config.Load()
	if err == nil && cfg.SocketPath != "" {
		return cfg.SocketPath
	}
	return daemon.DefaultSocketPath()
}

func parseViewport(s string) (int, int, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid viewport %q, expected WIDTHxHEIGHT", s)
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid viewport %q, expected WIDTHxHEIGHT", s)
	}
	return w, h, nil
}

// absPath resolves the screenshot path against the client's working
// directory, since the daemon runs elsewhere.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func fail(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}
