// Package config loads the TOML configuration file and turns it into a
// dedup policy.
//
// Precedence is defaults, then the file, then explicitly set CLI flags. The
// merged result is checked against an embedded CUE schema before use.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/bwdedup/internal/fingerprint"
	"github.com/roach88/bwdedup/internal/policy"
)

// DefaultPath is read from the working directory when no file is named.
const DefaultPath = "config.toml"

// ErrInvalidConfig is wrapped by every decode and schema failure.
var ErrInvalidConfig = errors.New("invalid config")

//go:embed schema.cue
var schemaSource []byte

// Config mirrors the TOML file layout.
type Config struct {
	Dedup     Dedup     `toml:"dedup" json:"dedup"`
	Ignore    Ignore    `toml:"ignore" json:"ignore"`
	Normalize Normalize `toml:"normalize" json:"normalize"`
	Output    Output    `toml:"output" json:"output"`
}

type Dedup struct {
	Keep          string   `toml:"keep" json:"keep"`
	PolicyKeys    []string `toml:"policy_keys" json:"policy_keys"`
	TimestampKeys []string `toml:"timestamp_keys" json:"timestamp_keys"`
	Workers       int      `toml:"workers" json:"workers"`
}

type Ignore struct {
	Keys  []string `toml:"keys" json:"keys"`
	Paths []string `toml:"paths" json:"paths"`
}

type Normalize struct {
	TrimStrings      bool `toml:"trim_strings" json:"trim_strings"`
	LowercaseStrings bool `toml:"lowercase_strings" json:"lowercase_strings"`
	SortURIs         bool `toml:"sort_uris" json:"sort_uris"`
	UnicodeNFC       bool `toml:"unicode_nfc" json:"unicode_nfc"`
}

// Output holds settings that do not affect equivalence.
type Output struct {
	Pretty bool   `toml:"pretty" json:"pretty"`
	Report string `toml:"report" json:"report"`
	Ledger string `toml:"ledger" json:"ledger"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	p := policy.Default()
	return Config{
		Dedup: Dedup{
			Keep:          string(p.Keep),
			PolicyKeys:    p.PolicyKeys,
			TimestampKeys: p.TimestampKeys,
			Workers:       p.Workers,
		},
		Ignore: Ignore{
			Keys:  p.IgnoreKeys,
			Paths: p.IgnorePaths,
		},
		Normalize: Normalize{
			TrimStrings:      p.TrimStrings,
			LowercaseStrings: p.LowercaseStrings,
			SortURIs:         p.SortURIs,
			UnicodeNFC:       p.NormalizeUnicode,
		},
	}
}

// Load reads the config file at path. An empty path means DefaultPath, and
// a missing default file yields Default(). A named file must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses TOML from r on top of Default(). Keys the file omits keep
// their default; unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate checks cfg against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data, err := json.Marshal(c.withEmptyLists())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	doc := ctx.CompileBytes(data, cue.Filename("config"))
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, cueerrors.Details(err, nil))
	}
	return nil
}

// withEmptyLists replaces nil slices so they encode as [] rather than null.
func (c Config) withEmptyLists() Config {
	for _, list := range []*[]string{
		&c.Dedup.PolicyKeys, &c.Dedup.TimestampKeys, &c.Ignore.Keys, &c.Ignore.Paths,
	} {
		if *list == nil {
			*list = []string{}
		}
	}
	return c
}

// Policy converts the configuration into a validated policy.
func (c Config) Policy() (policy.Policy, error) {
	keep, err := policy.ParseKeep(c.Dedup.Keep)
	if err != nil {
		return policy.Policy{}, err
	}

	p := policy.Policy{
		Keep:             keep,
		PolicyKeys:       c.Dedup.PolicyKeys,
		IgnoreKeys:       c.Ignore.Keys,
		IgnorePaths:      c.Ignore.Paths,
		TrimStrings:      c.Normalize.TrimStrings,
		LowercaseStrings: c.Normalize.LowercaseStrings,
		NormalizeUnicode: c.Normalize.UnicodeNFC,
		SortURIs:         c.Normalize.SortURIs,
		TimestampKeys:    c.Dedup.TimestampKeys,
		Workers:          c.Dedup.Workers,
	}
	if err := p.Validate(); err != nil {
		return policy.Policy{}, err
	}
	if err := fingerprint.CheckKeys(p); err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}
