package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/bwdedup/internal/config"
	"github.com/roach88/bwdedup/internal/dedup"
	"github.com/roach88/bwdedup/internal/export"
	"github.com/roach88/bwdedup/internal/ledger"
	"github.com/roach88/bwdedup/internal/policy"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	PolicyFlags

	Input  string
	Output string
	Force  bool
	DryRun bool
	Pretty bool
	Report string
	Ledger string

	// LedgerOptions are passed to ledger.Open (for testing).
	LedgerOptions []ledger.Option
}

// RunSummary is the JSON payload of a successful run.
type RunSummary struct {
	Input  string       `json:"input"`
	Output string       `json:"output"`
	DryRun bool         `json:"dry_run"`
	Report dedup.Report `json:"report"`
}

// String renders the text form printed after a run.
func (s RunSummary) String() string {
	removed := color.New(color.FgYellow).SprintFunc()
	if s.Report.Removed == 0 {
		removed = color.New(color.FgGreen).SprintFunc()
	}
	line := fmt.Sprintf("Items: %d -> %d (removed %s)", s.Report.Total, s.Report.Kept, removed(s.Report.Removed))
	if s.DryRun {
		return line
	}
	return line + "\nWrote " + s.Output
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deduplicate an export",
		Long: `Deduplicate a Bitwarden JSON export.

Settings come from config.toml in the working directory (or --config), and
any flag given on the command line overrides the file. The output defaults
to <input>.dedup.json and is never overwritten without --force.

Examples:
  bwdedup run -i vault.json
  bwdedup run -i vault.json --keep newest --pretty --force
  bwdedup run -i vault.json --full-item --ignore-key id,revisionDate --dry-run
  bwdedup run -i vault.json --report report.json --ledger runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedup(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Bitwarden JSON export (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default <input>.dedup.json)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite the output file if it exists")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be removed without writing output")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "write indented JSON")
	cmd.Flags().StringVar(&opts.Report, "report", "", "write the duplicate report as JSON to this file")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "record the run in this SQLite database")
	addPolicyFlags(cmd, &opts.PolicyFlags)

	return cmd
}

func runDedup(opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmd.Context()

	output := opts.Output
	if output == "" {
		output = export.DefaultOutputPath(opts.Input)
	}
	writer := export.Writer{Force: opts.Force, DryRun: opts.DryRun}
	if err := writer.Check(output); err != nil {
		if errors.Is(err, export.ErrOutputExists) {
			return f.fail(ExitCommandError, ErrCodeOutputExists, "output file exists", err)
		}
		return f.fail(ExitCommandError, ErrCodeWriteFailed, "cannot check output file", err)
	}

	cfg, err := resolveConfig(cmd, &opts.PolicyFlags)
	if err != nil {
		return configFailure(f, err)
	}
	applyOutputFlags(cmd, opts, &cfg)

	// The report is written on dry runs too, but never over an existing
	// file without --force.
	reportWriter := export.Writer{Force: opts.Force}
	if cfg.Output.Report != "" {
		if err := reportWriter.Check(cfg.Output.Report); err != nil {
			if errors.Is(err, export.ErrOutputExists) {
				return f.fail(ExitCommandError, ErrCodeOutputExists, "report file exists", err)
			}
			return f.fail(ExitCommandError, ErrCodeWriteFailed, "cannot check report file", err)
		}
	}

	p, err := cfg.Policy()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodePolicy, "invalid policy", err)
	}
	logger.Debug("policy resolved", "policy", p.Describe(), "workers", p.Workers)
	f.VerboseLog("Policy: %s", p.Describe())

	exp, err := export.Load(opts.Input)
	if err != nil {
		return inputFailure(f, err)
	}
	logger.Debug("export loaded", "path", opts.Input, "items", exp.Len())

	engine, err := dedup.NewEngine(p)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodePolicy, "invalid policy", err)
	}
	result, err := engine.Run(ctx, exp.Values())
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGeneric, "dedup failed", err)
	}
	logger.Debug("dedup finished",
		"total", result.Report.Total,
		"kept", result.Report.Kept,
		"groups", len(result.Report.Groups))
	for _, g := range result.Report.Groups {
		f.VerboseLog("Group %s: kept %d, discarded %v", g.Fingerprint.Short(), g.Kept, g.Discarded)
	}

	data, err := exp.WithItems(result.Kept).Marshal(cfg.Output.Pretty)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGeneric, "failed to encode output", err)
	}
	if err := writer.Write(output, data); err != nil {
		return f.fail(ExitCommandError, ErrCodeWriteFailed, "failed to write output", err)
	}

	if cfg.Output.Report != "" {
		if err := writeReport(reportWriter, cfg.Output.Report, result.Report); err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFailed, "failed to write report", err)
		}
		logger.Debug("report written", "path", cfg.Output.Report)
	}

	summary := RunSummary{
		Input:  opts.Input,
		Output: output,
		DryRun: opts.DryRun,
		Report: result.Report,
	}

	runID := ""
	if cfg.Output.Ledger != "" {
		runID, err = recordRun(cmd, opts, cfg.Output.Ledger, p, summary, logger)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeLedger, "failed to record run", err)
		}
	}

	return f.SuccessWithRun(summary, runID)
}

// applyOutputFlags lets explicitly set output flags override the file.
func applyOutputFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("pretty") {
		cfg.Output.Pretty = opts.Pretty
	}
	if changed("report") {
		cfg.Output.Report = opts.Report
	}
	if changed("ledger") {
		cfg.Output.Ledger = opts.Ledger
	}
}

func writeReport(w export.Writer, path string, report dedup.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return w.Write(path, append(data, '\n'))
}

func recordRun(cmd *cobra.Command, opts *RunOptions, path string, p policy.Policy, summary RunSummary, logger *slog.Logger) (string, error) {
	l, err := ledger.Open(path, opts.LedgerOptions...)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	run, err := l.RecordRun(cmd.Context(), ledger.RunRecord{
		InputPath:  summary.Input,
		OutputPath: summary.Output,
		DryRun:     summary.DryRun,
		Policy:     p,
		Report:     summary.Report,
	})
	if err != nil {
		return "", err
	}
	logger.Debug("run recorded", "ledger", path, "run_id", run.ID)
	return run.ID, nil
}

// configFailure maps a config or flag error to its error code.
func configFailure(f *OutputFormatter, err error) error {
	if errors.Is(err, policy.ErrInvalidPolicy) {
		return f.fail(ExitCommandError, ErrCodePolicy, "invalid policy", err)
	}
	return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
}

// inputFailure maps an export load error to its error code.
func inputFailure(f *OutputFormatter, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return f.fail(ExitCommandError, ErrCodeInput, "cannot read input file", err)
	}
	return f.fail(ExitCommandError, ErrCodeParse, "input is not a valid export", err)
}
