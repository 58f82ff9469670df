// Package policy defines the equivalence policy consumed by the dedup core.
//
// A Policy is resolved once by the caller (config file plus flags) and is
// treated as immutable for the duration of a run.
package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPolicy is wrapped by every policy validation failure.
var ErrInvalidPolicy = errors.New("invalid policy")

// Keep selects the survivor among a group of duplicates.
type Keep string

const (
	// KeepFirst keeps the lowest original index.
	KeepFirst Keep = "first"
	// KeepLast keeps the highest original index.
	KeepLast Keep = "last"
	// KeepNewest keeps the item with the latest timestamp.
	KeepNewest Keep = "newest"
	// KeepOldest keeps the item with the earliest timestamp.
	KeepOldest Keep = "oldest"
)

// KeepStrategies lists every valid Keep value.
var KeepStrategies = []Keep{KeepFirst, KeepLast, KeepNewest, KeepOldest}

// Valid reports whether k is a known strategy.
func (k Keep) Valid() bool {
	for _, s := range KeepStrategies {
		if k == s {
			return true
		}
	}
	return false
}

// ParseKeep parses a keep strategy name (case-insensitive, surrounding
// whitespace ignored).
func ParseKeep(s string) (Keep, error) {
	k := Keep(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown keep strategy %q (want one of %v)", ErrInvalidPolicy, s, KeepStrategies)
	}
	return k, nil
}

// URIsPath is the only list whose element order can be normalised away.
const URIsPath = "login.uris"

// Policy is the equivalence configuration for one run.
type Policy struct {
	// Keep chooses the survivor of each duplicate group.
	Keep Keep `json:"keep"`

	// PolicyKeys are the ordered field names or dotted paths that make up
	// an item's identity. Empty means the whole item is hashed.
	PolicyKeys []string `json:"policy_keys"`

	// IgnoreKeys are bare key names dropped at any depth (case-sensitive).
	IgnoreKeys []string `json:"ignore_keys"`

	// IgnorePaths are dotted paths, relative to the item root, that are dropped.
	IgnorePaths []string `json:"ignore_paths"`

	TrimStrings      bool `json:"trim_strings"`
	LowercaseStrings bool `json:"lowercase_strings"`

	// NormalizeUnicode applies NFC to string leaves before trimming and lowercasing.
	NormalizeUnicode bool `json:"normalize_unicode"`

	// SortURIs orders login.uris entries before hashing.
	SortURIs bool `json:"sort_uris"`

	// TimestampKeys are tried in order to find an item's revision time for
	// the newest and oldest strategies.
	TimestampKeys []string `json:"timestamp_keys"`

	// Workers bounds parallel fingerprinting. 0 and 1 both mean sequential.
	Workers int `json:"workers"`
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		Keep:          KeepFirst,
		PolicyKeys:    []string{"domain", "username", "password"},
		IgnoreKeys:    []string{"id", "revisionDate", "creationDate", "passwordHistory"},
		IgnorePaths:   []string{},
		SortURIs:      true,
		TimestampKeys: []string{"revisionDate", "creationDate"},
		Workers:       1,
	}
}

// FullItemMode reports whether the whole canonicalized item is hashed.
func (p Policy) FullItemMode() bool {
	return len(p.PolicyKeys) == 0
}

// Validate checks the policy before any item is processed.
// All failures wrap ErrInvalidPolicy.
func (p Policy) Validate() error {
	if !p.Keep.Valid() {
		return fmt.Errorf("%w: unknown keep strategy %q (want one of %v)", ErrInvalidPolicy, p.Keep, KeepStrategies)
	}

	for i, key := range p.PolicyKeys {
		if strings.Trim(key, ". \t") == "" {
			return fmt.Errorf("%w: policy_keys[%d] is empty", ErrInvalidPolicy, i)
		}
	}

	for i, key := range p.IgnoreKeys {
		if key == "" {
			return fmt.Errorf("%w: ignore_keys[%d] is empty", ErrInvalidPolicy, i)
		}
	}

	for i, key := range p.TimestampKeys {
		if strings.Trim(key, ". \t") == "" {
			return fmt.Errorf("%w: timestamp_keys[%d] is empty", ErrInvalidPolicy, i)
		}
	}

	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidPolicy, p.Workers)
	}

	return nil
}

// Describe returns a one-line summary for logs and reports.
func (p Policy) Describe() string {
	mode := "full-item"
	if !p.FullItemMode() {
		mode = "policy-keys[" + strings.Join(p.PolicyKeys, ",") + "]"
	}
	return fmt.Sprintf("keep=%s mode=%s sort_uris=%t trim=%t lowercase=%t",
		p.Keep, mode, p.SortURIs, p.TrimStrings, p.LowercaseStrings)
}
