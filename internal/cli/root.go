// Package cli implements the pythagorean command line client.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pythagorean.app/linkchat/internal/backend"
	"pythagorean.app/linkchat/internal/config"
	"pythagorean.app/linkchat/internal/core"
	"pythagorean.app/linkchat/internal/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	backend core.Backend
	opts    core.Options
}

type rootFlags struct {
	configPath string
	apiBase    string
	author     string
	timeout    time.Duration
	verbose    bool
	noColor    bool
}

// NewRootCmd builds the command tree. newBackend may be nil, in which case an
// HTTP client for the configured API base is used.
func NewRootCmd(newBackend func(config.Config, *zap.Logger) core.Backend) *cobra.Command {
	var flags rootFlags
	a := &app{}

	root := &cobra.Command{
		Use:   "pythagorean",
		Short: "Share documents as links and chat with them",
		Long: `pythagorean uploads documents to the document service and prints a link to
share. Whoever opens the link can ask questions about the documents, react to
answers and leave comments; the sender can review all of it.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			a.cfg = config.AppConfig
			if flags.configPath != "" {
				p, err := config.LoadProfile(flags.configPath)
				if err != nil {
					return err
				}
				a.cfg.Apply(p)
			}
			if flags.apiBase != "" {
				a.cfg.APIBase = flags.apiBase
			}
			if flags.author != "" {
				a.cfg.Author = flags.author
			}
			if flags.timeout > 0 {
				a.cfg.Timeout = flags.timeout
			}
			if flags.noColor {
				color.NoColor = true
			}

			a.log = logger.New(logger.Options{Level: logLevel(a.cfg, flags.verbose), File: a.cfg.LogFile, Stderr: true})
			if newBackend != nil {
				a.backend = newBackend(a.cfg, a.log)
			} else {
				a.backend = backend.NewClient(a.cfg.APIBase, a.cfg.Timeout, a.log)
			}
			a.opts = core.Options{Logger: a.log, ShareBaseURL: a.cfg.ShareBaseURL}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML profile with api_base, author and timeout_seconds")
	pf.StringVar(&flags.apiBase, "api", "", "document service base URL (overrides PYTHAGOREAN_API_BASE)")
	pf.StringVar(&flags.author, "author", "", "name shown on your comments")
	pf.DurationVar(&flags.timeout, "timeout", 0, "per-request timeout")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newSendCmd(a), newChatCmd(a), newActivityCmd(a))
	return root
}

// logLevel honours LOG_LEVEL unless -v asks for debug output.
func logLevel(cfg config.Config, verbose bool) string {
	if verbose {
		return "DEBUG"
	}
	if cfg.LogLevel == "" {
		return "WARN"
	}
	return cfg.LogLevel
}

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	faint   = color.New(color.Faint)
)

func printErr(w io.Writer, err error) {
	failure.Fprintf(w, "Error: %v\n", err)
	if isNotFound(err) {
		faint.Fprintln(w, "Check the link, or ask the sender for a new one.")
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd(nil)
	if err := root.ExecuteContext(ctx); err != nil {
		printErr(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}
