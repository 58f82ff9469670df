package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bwdedup/internal/dedup"
	"github.com/roach88/bwdedup/internal/export"
	"github.com/roach88/bwdedup/internal/fingerprint"
)

// FingerprintOptions holds flags for the fingerprint command.
type FingerprintOptions struct {
	*RootOptions
	PolicyFlags

	Input   string
	Explain bool
}

// ItemFingerprint is one item's line of fingerprint output.
type ItemFingerprint struct {
	Index       int    `json:"index"`
	Fingerprint string `json:"fingerprint"`
	GroupSize   int    `json:"group_size"`
	Material    string `json:"material,omitempty"`
}

// FingerprintResult is the output of the fingerprint command.
type FingerprintResult struct {
	Mode   fingerprint.Mode  `json:"mode"`
	Policy string            `json:"policy"`
	Items  []ItemFingerprint `json:"items"`
}

// String renders the text table.
func (r FingerprintResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy: %s\n", r.Policy)
	for _, item := range r.Items {
		line := fmt.Sprintf("%5d  %s", item.Index, item.Fingerprint)
		if item.GroupSize > 1 {
			line += fmt.Sprintf("  x%d", item.GroupSize)
		}
		b.WriteString(line)
		if item.Material != "" {
			b.WriteString("\n       " + item.Material)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FingerprintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print item fingerprints",
		Long: `Print the fingerprint of every item in an export under the resolved policy.

Items sharing a fingerprint are duplicates; the size of their group is
shown after the fingerprint. Nothing is written. Use --explain to see the
canonical material each fingerprint was computed from.

Examples:
  bwdedup fingerprint -i vault.json
  bwdedup fingerprint -i vault.json --policy-key name,username --explain
  bwdedup fingerprint -i vault.json --full-item --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Bitwarden JSON export (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "show the canonical material of each item")
	addPolicyFlags(cmd, &opts.PolicyFlags)

	return cmd
}

func runFingerprint(opts *FingerprintOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := resolveConfig(cmd, &opts.PolicyFlags)
	if err != nil {
		return configFailure(f, err)
	}
	p, err := cfg.Policy()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodePolicy, "invalid policy", err)
	}

	exp, err := export.Load(opts.Input)
	if err != nil {
		return inputFailure(f, err)
	}
	items := exp.Values()

	engine, err := dedup.NewEngine(p)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodePolicy, "invalid policy", err)
	}
	fps, err := engine.Fingerprints(cmd.Context(), items)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeGeneric, "fingerprinting failed", err)
	}
	logger.Debug("fingerprints computed", "items", len(fps), "policy", p.Describe())

	sizes := make(map[fingerprint.Fingerprint]int, len(fps))
	for _, fp := range fps {
		sizes[fp]++
	}

	result := FingerprintResult{
		Mode:   fingerprint.NewComputer(p).Mode(),
		Policy: p.Describe(),
		Items:  make([]ItemFingerprint, len(fps)),
	}
	for i, fp := range fps {
		entry := ItemFingerprint{
			Index:       i,
			Fingerprint: fp.Short(),
			GroupSize:   sizes[fp],
		}
		if f.IsJSON() {
			entry.Fingerprint = fp.String()
		}
		if opts.Explain {
			material, err := engine.Explain(items[i])
			if err != nil {
				return f.fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("cannot explain item %d", i), err)
			}
			entry.Material = material
		}
		result.Items[i] = entry
	}

	return f.Success(result)
}
