package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bwdedup/internal/config"
	"github.com/roach88/bwdedup/internal/fingerprint"
	"github.com/roach88/bwdedup/internal/policy"
)

// PolicyFlags are the flags that shape the equivalence policy. They are
// shared by every command that fingerprints items.
type PolicyFlags struct {
	Config           string
	Keep             string
	PolicyKeys       []string
	FullItem         bool
	IgnoreKeys       []string
	IgnorePaths      []string
	TimestampKeys    []string
	TrimStrings      bool
	LowercaseStrings bool
	SortURIs         bool
	UnicodeNFC       bool
	Workers          int
}

func addPolicyFlags(cmd *cobra.Command, pf *PolicyFlags) {
	flags := cmd.Flags()
	flags.StringVar(&pf.Config, "config", "", "config file (TOML, default ./"+config.DefaultPath+" if present)")
	flags.StringVar(&pf.Keep, "keep", string(policy.KeepFirst), "keep strategy (first|last|newest|oldest)")
	flags.StringSliceVar(&pf.PolicyKeys, "policy-key", nil, "fields that identify an item ("+strings.Join(fingerprint.DerivedKeys, ",")+" or dotted paths)")
	flags.BoolVar(&pf.FullItem, "full-item", false, "hash the whole item instead of policy keys")
	flags.StringSliceVar(&pf.IgnoreKeys, "ignore-key", nil, "key names to ignore at any depth")
	flags.StringSliceVar(&pf.IgnorePaths, "ignore-path", nil, "dotted paths to ignore, relative to each item")
	flags.StringSliceVar(&pf.TimestampKeys, "timestamp-key", nil, "fields holding the revision time, tried in order")
	flags.BoolVar(&pf.TrimStrings, "trim-strings", false, "trim whitespace from strings before hashing")
	flags.BoolVar(&pf.LowercaseStrings, "lowercase-strings", false, "lowercase strings before hashing")
	flags.BoolVar(&pf.SortURIs, "sort-uris", true, "sort login.uris entries before hashing")
	flags.BoolVar(&pf.UnicodeNFC, "unicode-nfc", false, "apply Unicode NFC to strings before hashing")
	flags.IntVar(&pf.Workers, "workers", 1, "parallel fingerprint workers")
	cmd.MarkFlagsMutuallyExclusive("policy-key", "full-item")
}

// resolveConfig loads the config file and applies every flag the user set
// explicitly. Unset flags never override the file.
func resolveConfig(cmd *cobra.Command, pf *PolicyFlags) (config.Config, error) {
	cfg, err := config.Load(pf.Config)
	if err != nil {
		return config.Config{}, err
	}

	changed := cmd.Flags().Changed
	if changed("keep") {
		keep, err := policy.ParseKeep(pf.Keep)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Dedup.Keep = string(keep)
	}
	if changed("policy-key") {
		cfg.Dedup.PolicyKeys = pf.PolicyKeys
	}
	if changed("full-item") && pf.FullItem {
		cfg.Dedup.PolicyKeys = []string{}
	}
	if changed("ignore-key") {
		cfg.Ignore.Keys = pf.IgnoreKeys
	}
	if changed("ignore-path") {
		cfg.Ignore.Paths = pf.IgnorePaths
	}
	if changed("timestamp-key") {
		cfg.Dedup.TimestampKeys = pf.TimestampKeys
	}
	if changed("trim-strings") {
		cfg.Normalize.TrimStrings = pf.TrimStrings
	}
	if changed("lowercase-strings") {
		cfg.Normalize.LowercaseStrings = pf.LowercaseStrings
	}
	if changed("sort-uris") {
		cfg.Normalize.SortURIs = pf.SortURIs
	}
	if changed("unicode-nfc") {
		cfg.Normalize.UnicodeNFC = pf.UnicodeNFC
	}
	if changed("workers") {
		cfg.Dedup.Workers = pf.Workers
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
