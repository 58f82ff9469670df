package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bwdedup/internal/config"
	"github.com/roach88/bwdedup/internal/ledger"
)

// HistoryOptions holds flags for the history command and its subcommands.
type HistoryOptions struct {
	*RootOptions
	Config string
	Ledger string
	Limit  int

	// LedgerOptions are passed to ledger.Open (for testing).
	LedgerOptions []ledger.Option
}

// RunList is the output of history.
type RunList struct {
	Runs []ledger.Run `json:"runs"`
}

// String renders one line per run, newest first.
func (l RunList) String() string {
	if len(l.Runs) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	for i, run := range l.Runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		mode := ""
		if run.DryRun {
			mode = " (dry run)"
		}
		fmt.Fprintf(&b, "%s  %s  %s  %d -> %d (removed %d)%s",
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.InputPath,
			run.Report.Total,
			run.Report.Kept,
			run.Report.Removed,
			mode)
	}
	return b.String()
}

// RunDetail is the output of history show.
type RunDetail struct {
	ledger.Run
}

// String renders a run with its duplicate groups.
func (d RunDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:     %s\n", d.ID)
	fmt.Fprintf(&b, "Started: %s\n", d.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Input:   %s\n", d.InputPath)
	if d.DryRun {
		b.WriteString("Output:  (dry run)\n")
	} else {
		fmt.Fprintf(&b, "Output:  %s\n", d.OutputPath)
	}
	fmt.Fprintf(&b, "Policy:  %s\n", d.Policy.Describe())
	fmt.Fprintf(&b, "Items:   %d -> %d (removed %d)", d.Report.Total, d.Report.Kept, d.Report.Removed)
	for _, g := range d.Report.Groups {
		fmt.Fprintf(&b, "\n  %s  kept %d, discarded %v", g.Fingerprint.Short(), g.Kept, g.Discarded)
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return newHistoryCommand(&HistoryOptions{RootOptions: rootOpts})
}

func newHistoryCommand(opts *HistoryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded in a ledger database, newest first.

The ledger is taken from --ledger, or from output.ledger in the config file.

Examples:
  bwdedup history --ledger runs.db
  bwdedup history --ledger runs.db --limit 5
  bwdedup history show 01920000-0000-7000-8000-000000000000 --ledger runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (TOML, default ./"+config.DefaultPath+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Ledger, "ledger", "", "ledger database")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	cmd.AddCommand(newHistoryShowCommand(opts))

	return cmd
}

func newHistoryShowCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one recorded run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(opts, args[0], cmd)
		},
	}
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	l, err := openHistoryLedger(opts, f)
	if err != nil {
		return err
	}
	defer l.Close()

	runs, err := l.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLedger, "failed to list runs", err)
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	return f.Success(RunList{Runs: runs})
}

func runHistoryShow(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	l, err := openHistoryLedger(opts, f)
	if err != nil {
		return err
	}
	defer l.Close()

	run, err := l.ReadRun(cmd.Context(), id)
	if errors.Is(err, ledger.ErrRunNotFound) {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %s not found", id), err)
	}
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLedger, "failed to read run", err)
	}
	return f.Success(RunDetail{Run: run})
}

// openHistoryLedger resolves the ledger path from flags or config and opens
// it. Errors are already reported through f.
func openHistoryLedger(opts *HistoryOptions, f *OutputFormatter) (*ledger.Ledger, error) {
	path := opts.Ledger
	if path == "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
		}
		path = cfg.Output.Ledger
	}
	if path == "" {
		return nil, f.fail(ExitCommandError, ErrCodeLedger, "no ledger configured (use --ledger or output.ledger)", nil)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeNotFound, "ledger not found", err)
	}

	l, err := ledger.Open(path, opts.LedgerOptions...)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
	}
	return l, nil
}
