package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/modoterra/ptail/internal/buildinfo"
	"github.com/modoterra/ptail/internal/settings"
	"github.com/modoterra/ptail/pkg/render"
)

// options holds the parsed command line.
type options struct {
	pids       []int
	name       string
	units      []string
	containers []string
	compose    string
	services   []string
	project    string

	logFilter string
	highlight string
	grep      string
	filters   []string
	user      string
	config    string

	fromTop   bool
	fullColor bool
	color     colorFlag
	noColor   bool
	json      bool
	tui       bool

	wait    time.Duration
	refresh time.Duration
	resolve time.Duration
	workers int

	logLevel string
}

var opts options

var (
	env    settings.Settings
	envErr error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ptail",
	Short: "Follow the log files held open by running processes",
	Long: "ptail finds the text log files a set of processes currently has open and\n" +
		"follows all of them as one merged, labeled stream.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return envErr
	},
	RunE: runTail,
}

func init() {
	env, envErr = settings.Load()

	pf := rootCmd.PersistentFlags()
	pf.IntSliceVarP(&opts.pids, "pid", "p", nil, "target process id (repeatable)")
	pf.StringVarP(&opts.name, "name", "N", "", "case-insensitive regex matched against process names and command lines")
	pf.StringArrayVar(&opts.units, "unit", nil, "target the main process of a systemd unit (repeatable)")
	pf.StringArrayVar(&opts.containers, "container", nil, "target the init process of a docker container (repeatable)")
	pf.StringVar(&opts.compose, "compose", "", "target the containers of a compose file")
	pf.StringArrayVar(&opts.services, "service", nil, "compose service to target (repeatable, default all)")
	pf.StringVar(&opts.project, "project", "", "compose project name")
	pf.StringVarP(&opts.logFilter, "log-filter", "L", "", "regex a log path must match (default \\.(log|trc|out))")
	pf.StringVarP(&opts.user, "user", "u", env.User, "inspect processes as this user through sudo")
	pf.StringVarP(&opts.config, "config", "c", env.Config, "log configuration file (default ptail.yaml if present)")
	pf.DurationVarP(&opts.refresh, "refresh-interval", "r", env.RefreshInterval, "time between log discovery passes")
	pf.DurationVar(&opts.resolve, "resolve-interval", env.ResolveInterval, "time between target process resolutions")
	pf.StringVarP(&opts.logLevel, "log-level", "l", env.LogLevel, "diagnostic level: debug, info, warn, error")

	f := rootCmd.Flags()
	f.StringVarP(&opts.highlight, "highlight", "H", "", "highlight matches of this regex")
	f.StringVarP(&opts.grep, "grep", "G", "", "only show lines matching this regex")
	f.StringArrayVarP(&opts.filters, "filter", "F", nil, "only show lines whose field matches, as name=regex (repeatable, or comma separated)")
	f.BoolVarP(&opts.fromTop, "from-top", "b", false, "start newly discovered logs from the beginning")
	f.BoolVarP(&opts.fullColor, "full-color", "C", false, "color whole lines, not just labels")
	f.Var(&opts.color, "color", "colorize output: auto, always, never")
	f.BoolVar(&opts.noColor, "no-color", false, "same as --color=never")
	f.BoolVar(&opts.json, "json", false, "write JSON lines")
	f.BoolVar(&opts.tui, "tui", false, "full-screen viewer")
	f.DurationVarP(&opts.wait, "wait", "w", env.Interval, "time between reads")
	f.IntVar(&opts.workers, "workers", env.Workers, "logs read in parallel")

	rootCmd.MarkFlagsMutuallyExclusive("grep", "filter")
	rootCmd.MarkFlagsMutuallyExclusive("json", "tui")

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

// --- Show ---

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List the target processes and the logs they hold open",
	RunE:  runShow,
}

// --- Helpers ---

func newLogger(w io.Writer) (*slog.Logger, error) {
	level, err := settings.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// colorFlag is the --color value.
type colorFlag render.ColorMode

var _ pflag.Value = (*colorFlag)(nil)

func (c *colorFlag) String() string {
	switch render.ColorMode(*c) {
	case render.ColorAlways:
		return "always"
	case render.ColorNever:
		return "never"
	}
	return "auto"
}

func (c *colorFlag) Set(s string) error {
	switch s {
	case "auto":
		*c = colorFlag(render.ColorAuto)
	case "always":
		*c = colorFlag(render.ColorAlways)
	case "never":
		*c = colorFlag(render.ColorNever)
	default:
		return fmt.Errorf("%q: must be auto, always or never", s)
	}
	return nil
}

func (c *colorFlag) Type() string { return "mode" }
