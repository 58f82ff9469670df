// Package canon builds the normalised view of an item that fingerprints are
// computed from.
//
// Canonicalize never modifies its input. The returned tree is a projection
// used only for hashing and is never written out.
package canon

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/value"
)

// Canonicalizer applies one policy's normalisation rules.
// It holds no mutable state and is safe for concurrent use.
type Canonicalizer struct {
	ignoreKeys  map[string]struct{}
	ignorePaths map[string]struct{}
	trim        bool
	lower       bool
	nfc         bool
	sortURIs    bool
	urisPath    value.Path
}

// New creates a Canonicalizer for p. Blank ignore paths are skipped.
func New(p policy.Policy) *Canonicalizer {
	c := &Canonicalizer{
		ignoreKeys:  make(map[string]struct{}, len(p.IgnoreKeys)),
		ignorePaths: make(map[string]struct{}, len(p.IgnorePaths)),
		trim:        p.TrimStrings,
		lower:       p.LowercaseStrings,
		nfc:         p.NormalizeUnicode,
		sortURIs:    p.SortURIs,
		urisPath:    value.ParsePath(policy.URIsPath),
	}
	for _, k := range p.IgnoreKeys {
		c.ignoreKeys[k] = struct{}{}
	}
	for _, raw := range p.IgnorePaths {
		path := value.ParsePath(raw)
		if len(path) == 0 {
			continue
		}
		c.ignorePaths[path.String()] = struct{}{}
	}
	return c
}

// Canonicalize returns the normalised projection of item.
func (c *Canonicalizer) Canonicalize(item value.Value) value.Value {
	w := &walker{Canonicalizer: c}
	if c.lower {
		// cases.Caser carries state, so each walk gets its own.
		w.caser = cases.Lower(language.Und)
	}
	return w.walk(item, value.Path{}, true)
}

type walker struct {
	*Canonicalizer
	caser cases.Caser
}

// walk performs the single descent. path is the location of v relative to
// the item root; addressable is false once the walk has entered an array,
// since dotted paths cannot reach array elements.
func (w *walker) walk(v value.Value, path value.Path, addressable bool) value.Value {
	switch val := v.(type) {
	case value.Object:
		out := make(value.Object, len(val))
		for k, child := range val {
			if _, drop := w.ignoreKeys[k]; drop {
				continue
			}
			var childPath value.Path
			if addressable {
				childPath = path.Child(k)
				if _, drop := w.ignorePaths[childPath.String()]; drop {
					continue
				}
			}
			out[k] = w.walk(child, childPath, addressable)
		}
		return out

	case value.Array:
		out := make(value.Array, len(val))
		for i, elem := range val {
			out[i] = w.walk(elem, nil, false)
		}
		if w.sortURIs && addressable && path.Equal(w.urisPath) {
			sortURIEntries(out)
		}
		return out

	case value.String:
		return value.String(w.normalizeString(string(val)))

	default:
		return v
	}
}

// normalizeString applies NFC, then trim, then lowercase.
func (w *walker) normalizeString(s string) string {
	if w.nfc {
		s = norm.NFC.String(s)
	}
	if w.trim {
		s = strings.TrimSpace(s)
	}
	if w.lower {
		s = w.caser.String(s)
	}
	return s
}

// sortURIEntries orders already-normalised URI entries in place. The primary
// key is the entry's uri string; the canonical rendering of the whole entry
// breaks ties so that entries sharing a uri also compare deterministically.
func sortURIEntries(entries value.Array) {
	type keyed struct {
		primary   string
		secondary string
		entry     value.Value
	}

	keyedEntries := make([]keyed, len(entries))
	for i, entry := range entries {
		rendered := render(entry)
		keyedEntries[i] = keyed{
			primary:   uriSortKey(entry, rendered),
			secondary: rendered,
			entry:     entry,
		}
	}

	slices.SortStableFunc(keyedEntries, func(a, b keyed) int {
		if c := strings.Compare(a.primary, b.primary); c != 0 {
			return c
		}
		return strings.Compare(a.secondary, b.secondary)
	})

	for i, k := range keyedEntries {
		entries[i] = k.entry
	}
}

// uriSortKey returns the uri field of an entry object, the entry itself when
// it is a bare string, and the canonical rendering otherwise.
func uriSortKey(entry value.Value, rendered string) string {
	switch e := entry.(type) {
	case value.Object:
		if uri, ok := e["uri"].(value.String); ok {
			return string(uri)
		}
	case value.String:
		return string(e)
	}
	return rendered
}

// render returns the canonical JSON of v, or its kind when v cannot be
// marshaled (it contains Absent).
func render(v value.Value) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return value.Kind(v)
	}
	return string(data)
}
