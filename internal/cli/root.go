// Package cli implements the cycles command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/cycles/internal/engine"
	"github.com/mesh-intelligence/cycles/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// skipConfig marks commands that run without config.yaml or a store.
const skipConfig = "skip-config"

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir   string
	dataDir     string
	owner       string
	plan        string
	logLevel    string
	metricsFile string
	jsonMode    bool
}

// app carries the state of one CLI invocation.
type app struct {
	flags rootFlags
	now   func() time.Time

	cfg      *viper.Viper
	logger   *slog.Logger
	store    types.Store
	svc      *engine.Service
	registry *prometheus.Registry
}

func newApp() *app {
	return &app{now: time.Now}
}

// usageError marks bad arguments and flags.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// NewRootCmd creates the top-level "cycles" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cycles",
		Short: "Cycle accounting and historical snapshots",
		Long: "Cycles partitions an owner's timeline into repeating cycles, freezes each\n" +
			"cycle's statistics into a snapshot, and backfills past cycles as tagged\n" +
			"activities are recorded.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: .cycles)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: .cycles-db)")
	pf.StringVar(&a.flags.owner, "owner", "", "owner ID (default: config owner, then $USER)")
	pf.StringVar(&a.flags.plan, "plan", "", "plan ID (default: the owner's primary plan)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write engine counters to this file in Prometheus text format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newPlanCmd(a),
		newCycleCmd(a),
		newCloseCmd(a),
		newSnapshotCmd(a),
		newGrowthCmd(a),
		newSuggestCmd(a),
		newActivityCmd(a),
		newBookCmd(a),
		newContactCmd(a),
		newStatsCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(newApp(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns its exit code. Errors are printed
// to stderr.
func run(a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if merr := a.writeMetrics(); err == nil {
		err = merr
	}
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps an error to the process exit code. Bad input and missing
// configuration are user errors; everything else is a system fault.
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &ue),
		errors.Is(err, types.ErrConfigurationMissing),
		errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrInvalidCategory),
		errors.Is(err, types.ErrInvalidBookCat),
		errors.Is(err, types.ErrInvalidOwner),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrDuplicateTitle),
		errors.Is(err, types.ErrPlanInUse),
		errors.Is(err, types.ErrBackendEmpty),
		errors.Is(err, types.ErrBackendUnknown),
		errors.Is(err, types.ErrDSNEmpty):
		return exitUserError
	}
	return exitSysError
}

// checkArgs wraps a cobra positional-argument check so that violations exit
// as user errors.
func checkArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := check(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// newLogger builds the stderr text logger at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, usageError{fmt.Errorf("log level %q: %w", level, err)}
		}
	} else {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// writeMetrics writes the engine counters to --metrics-file for a
// textfile collector. Commands that never attached the store write nothing.
func (a *app) writeMetrics() error {
	if a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.flags.metricsFile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
