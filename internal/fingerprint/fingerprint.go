// Package fingerprint computes the digest that decides whether two items are
// duplicates under a policy.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/bwdedup/internal/canon"
	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/value"
)

// Domain prefixes keep full-item and policy-key digests from ever colliding.
// The version suffix leaves room for a future encoding change.
const (
	DomainItem   = "bwdedup/item/v1"
	DomainPolicy = "bwdedup/policy/v1"
)

// Mode names which part of an item is hashed.
type Mode string

const (
	ModeFullItem   Mode = "full-item"
	ModePolicyKeys Mode = "policy-keys"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Fingerprint is a SHA-256 digest. Two items are duplicates iff their
// fingerprints are equal.
type Fingerprint [Size]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex characters, for human output.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// MarshalText implements encoding.TextMarshaler so reports carry hex.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	if len(s) != hex.EncodedLen(Size) {
		return f, fmt.Errorf("fingerprint: want %d hex characters, got %d", hex.EncodedLen(Size), len(s))
	}
	if _, err := hex.Decode(f[:], []byte(s)); err != nil {
		return f, fmt.Errorf("fingerprint: %w", err)
	}
	return f, nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) Fingerprint {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// Computer derives fingerprints for one policy. It is stateless after
// construction and safe for concurrent use.
type Computer struct {
	canon *canon.Canonicalizer
	keys  []key
}

// NewComputer prepares a Computer. The policy should already be validated.
func NewComputer(p policy.Policy) *Computer {
	c := &Computer{canon: canon.New(p)}
	for _, name := range p.PolicyKeys {
		c.keys = append(c.keys, parseKey(name))
	}
	return c
}

// Mode reports whether the computer hashes whole items or policy keys.
func (c *Computer) Mode() Mode {
	if len(c.keys) == 0 {
		return ModeFullItem
	}
	return ModePolicyKeys
}

// Compute returns the fingerprint of item.
func (c *Computer) Compute(item value.Value) (Fingerprint, error) {
	domain, data, err := c.material(item)
	if err != nil {
		return Fingerprint{}, err
	}
	return hashWithDomain(domain, data), nil
}

// Explain returns the canonical bytes that Compute hashes, without the
// domain prefix. Useful for seeing why two items did or did not collide.
func (c *Computer) Explain(item value.Value) (string, error) {
	_, data, err := c.material(item)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Computer) material(item value.Value) (string, []byte, error) {
	canonical := c.canon.Canonicalize(item)

	if c.Mode() == ModeFullItem {
		data, err := value.MarshalCanonical(canonical)
		if err != nil {
			return "", nil, fmt.Errorf("fingerprint: marshal item: %w", err)
		}
		return DomainItem, data, nil
	}

	tuple := make(value.Array, len(c.keys))
	for i, k := range c.keys {
		resolved := k.resolve(canonical)
		entry := value.Object{"key": value.String(k.name)}
		if value.IsAbsent(resolved) {
			entry["absent"] = value.Bool(true)
		} else {
			entry["value"] = resolved
		}
		tuple[i] = entry
	}

	data, err := value.MarshalCanonical(tuple)
	if err != nil {
		return "", nil, fmt.Errorf("fingerprint: marshal policy tuple: %w", err)
	}
	return DomainPolicy, data, nil
}
