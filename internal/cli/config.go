package cli

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/bwdedup/internal/config"
	"github.com/roach88/bwdedup/internal/policy"
)

// ConfigCheck is the output of config check.
type ConfigCheck struct {
	Config config.Config `json:"config"`
	Policy policy.Policy `json:"policy"`
}

// String renders the resolved policy.
func (c ConfigCheck) String() string {
	var b strings.Builder
	b.WriteString("Config OK\n")
	fmt.Fprintf(&b, "Policy: %s", c.Policy.Describe())
	if c.Config.Output.Ledger != "" {
		fmt.Fprintf(&b, "\nLedger: %s", c.Config.Output.Ledger)
	}
	if c.Config.Output.Report != "" {
		fmt.Fprintf(&b, "\nReport: %s", c.Config.Output.Report)
	}
	return b.String()
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the TOML configuration.

Examples:
  bwdedup config check
  bwdedup config check --config ./bwdedup.toml --keep newest
  bwdedup config default > config.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newConfigCheckCommand(rootOpts))
	cmd.AddCommand(newConfigDefaultCommand(rootOpts))

	return cmd
}

func newConfigCheckCommand(rootOpts *RootOptions) *cobra.Command {
	pf := &PolicyFlags{}

	cmd := &cobra.Command{
		Use:           "check",
		Short:         "Validate the config file and print the resolved policy",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			cfg, err := resolveConfig(cmd, pf)
			if err != nil {
				return configFailure(f, err)
			}
			p, err := cfg.Policy()
			if err != nil {
				return f.fail(ExitCommandError, ErrCodePolicy, "invalid policy", err)
			}
			return f.Success(ConfigCheck{Config: cfg, Policy: p})
		},
	}
	addPolicyFlags(cmd, pf)

	return cmd
}

func newConfigDefaultCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "default",
		Short:         "Print the default configuration as TOML",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			cfg := config.Default()
			if f.IsJSON() {
				return f.Success(cfg)
			}

			data, err := toml.Marshal(cfg)
			if err != nil {
				return f.fail(ExitFailure, ErrCodeGeneric, "failed to encode config", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
