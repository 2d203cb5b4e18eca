// Package cli implements the command-line interface for tfsgit.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/tfsgit/internal/config"
	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/remote"
	"github.com/kilupskalvis/tfsgit/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Logger *slog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initConfigContext loads the config (no store)
func initConfigContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{Config: cfg, Logger: newLogger(logLevel, logFormat)}
}

// initContext loads the config and opens the store
func initContext() *cmdContext {
	ctx := initConfigContext()

	st, err := store.New(ctx.Config.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}
	ctx.Store = st
	return ctx
}

// remote builds the configured remote
func (c *cmdContext) remote() *remote.TfsRemote {
	r, err := remote.New(c.Config.RemoteOptions())
	if err != nil {
		c.Close()
		exitErr(err)
	}
	return r
}

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tfsgit",
	Short: "TFS to git bridge",
	Long: `tfsgit projects TFS version control changesets onto git trees and commits,
keeping authors, branch ancestry and path layout consistent across fetches.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (json, text)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(branchParentsCmd)
	rootCmd.AddCommand(whoisCmd)
	rootCmd.AddCommand(logCmd)
}

// newLogger builds the process logger
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// exitErr prints err with its remediation hints and exits
func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	hint := color.New(color.FgYellow)
	for _, h := range errpolicy.Hints(err) {
		hint.Fprintf(os.Stderr, "hint: %s\n", h)
	}
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
