package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bwdedup/internal/policy"
)

// Scenario is one conformance case: a policy, some items and the expected
// outcome.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Policy overrides fields of policy.Default().
	Policy PolicySpec `yaml:"policy,omitempty"`

	// Items are the vault items, in input order.
	Items []any `yaml:"items"`

	Expect Expect `yaml:"expect"`
}

// PolicySpec holds policy overrides. Nil fields keep the default, so an
// explicit empty policy_keys list can select full-item mode.
type PolicySpec struct {
	Keep             string    `yaml:"keep,omitempty"`
	PolicyKeys       *[]string `yaml:"policy_keys,omitempty"`
	IgnoreKeys       *[]string `yaml:"ignore_keys,omitempty"`
	IgnorePaths      []string  `yaml:"ignore_paths,omitempty"`
	TrimStrings      *bool     `yaml:"trim_strings,omitempty"`
	LowercaseStrings *bool     `yaml:"lowercase_strings,omitempty"`
	SortURIs         *bool     `yaml:"sort_uris,omitempty"`
	UnicodeNFC       *bool     `yaml:"unicode_nfc,omitempty"`
	TimestampKeys    []string  `yaml:"timestamp_keys,omitempty"`
}

// Expect is the expected outcome of a scenario.
type Expect struct {
	// Kept lists the surviving original indices, ascending.
	Kept []int `yaml:"kept"`

	// Groups, when present, must match the report's duplicate groups exactly.
	Groups []ExpectGroup `yaml:"groups,omitempty"`

	// Error is a substring of the expected policy error.
	Error string `yaml:"error,omitempty"`
}

// ExpectGroup is one expected duplicate group.
type ExpectGroup struct {
	Kept      int   `yaml:"kept"`
	Discarded []int `yaml:"discarded"`
}

// Resolve applies the overrides to policy.Default(). The result is not
// validated; that is the engine's job.
func (s PolicySpec) Resolve() policy.Policy {
	p := policy.Default()
	if s.Keep != "" {
		p.Keep = policy.Keep(s.Keep)
	}
	if s.PolicyKeys != nil {
		p.PolicyKeys = *s.PolicyKeys
	}
	if s.IgnoreKeys != nil {
		p.IgnoreKeys = *s.IgnoreKeys
	}
	if s.IgnorePaths != nil {
		p.IgnorePaths = s.IgnorePaths
	}
	if s.TrimStrings != nil {
		p.TrimStrings = *s.TrimStrings
	}
	if s.LowercaseStrings != nil {
		p.LowercaseStrings = *s.LowercaseStrings
	}
	if s.SortURIs != nil {
		p.SortURIs = *s.SortURIs
	}
	if s.UnicodeNFC != nil {
		p.NormalizeUnicode = *s.UnicodeNFC
	}
	if s.TimestampKeys != nil {
		p.TimestampKeys = s.TimestampKeys
	}
	return p
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and consistent.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Items == nil {
		return fmt.Errorf("items list is required (use [] for no items)")
	}

	for i, item := range s.Items {
		if _, ok := item.(map[string]any); !ok {
			return fmt.Errorf("items[%d]: must be a mapping, got %T", i, item)
		}
	}

	switch {
	case s.Expect.Error != "" && s.Expect.Kept != nil:
		return fmt.Errorf("expect: kept and error are mutually exclusive")
	case s.Expect.Error != "" && s.Expect.Groups != nil:
		return fmt.Errorf("expect: groups and error are mutually exclusive")
	case s.Expect.Error == "" && s.Expect.Kept == nil:
		return fmt.Errorf("expect: kept is required unless error is set")
	}

	for i, g := range s.Expect.Groups {
		if len(g.Discarded) == 0 {
			return fmt.Errorf("expect.groups[%d]: discarded must be non-empty", i)
		}
	}

	return nil
}
