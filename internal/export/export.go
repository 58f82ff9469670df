// Package export reads and writes Bitwarden JSON exports.
//
// Items are kept as their original JSON bytes so that survivors are written
// back exactly as they were read. Top-level fields other than "items" are
// carried through untouched, in their original order.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/bwdedup/internal/value"
)

// ItemsField is the top-level array that holds vault items.
const ItemsField = "items"

// ErrNoItems is returned when the document has no top-level items array.
var ErrNoItems = errors.New(`export has no top-level "items" array`)

type field struct {
	name string
	raw  json.RawMessage
}

// Export is a parsed vault export.
type Export struct {
	fields []field
	items  []json.RawMessage
	values []value.Value
}

// Load reads and parses the export at path.
func Load(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	exp, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// Parse reads one export document from r.
func Parse(r io.Reader) (*Export, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parse export: top level must be an object")
	}

	exp := &Export{}
	seenItems := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse export: %w", err)
		}
		name := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse export: field %q: %w", name, err)
		}

		if name == ItemsField {
			if seenItems {
				return nil, fmt.Errorf("parse export: duplicate %q field", ItemsField)
			}
			if err := exp.setItems(raw); err != nil {
				return nil, err
			}
			seenItems = true
		}
		exp.fields = append(exp.fields, field{name: name, raw: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse export: unexpected data after document")
	}
	if !seenItems {
		return nil, ErrNoItems
	}
	return exp, nil
}

func (e *Export) setItems(raw json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return ErrNoItems
	}

	values := make([]value.Value, len(items))
	for i, item := range items {
		v, err := value.Decode(item)
		if err != nil {
			return fmt.Errorf("parse export: item %d: %w", i, err)
		}
		values[i] = v
	}

	e.items = items
	e.values = values
	return nil
}

// Len returns the number of items.
func (e *Export) Len() int {
	return len(e.items)
}

// Values returns the decoded items, in order. The slice is shared.
func (e *Export) Values() []value.Value {
	return e.values
}

// WithItems returns a copy of e holding only the items at indices, in the
// order given. Other top-level fields are shared.
func (e *Export) WithItems(indices []int) *Export {
	out := &Export{
		fields: e.fields,
		items:  make([]json.RawMessage, len(indices)),
		values: make([]value.Value, len(indices)),
	}
	for i, idx := range indices {
		out.items[i] = e.items[idx]
		out.values[i] = e.values[idx]
	}
	return out
}

// Marshal renders the export. Pretty output uses two-space indentation;
// otherwise the document is compacted. Neither changes string contents.
func (e *Export) Marshal(pretty bool) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteByte('{')
	for i, f := range e.fields {
		if i > 0 {
			doc.WriteByte(',')
		}
		name, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		doc.Write(name)
		doc.WriteByte(':')
		if f.name == ItemsField {
			e.writeItems(&doc)
		} else {
			doc.Write(f.raw)
		}
	}
	doc.WriteByte('}')

	var out bytes.Buffer
	var err error
	if pretty {
		err = json.Indent(&out, doc.Bytes(), "", "  ")
	} else {
		err = json.Compact(&out, doc.Bytes())
	}
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func (e *Export) writeItems(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, item := range e.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
}
