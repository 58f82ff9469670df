package value

import "strings"

// Path is a parsed dotted field path such as "login.uris".
// Segments only address object keys; numeric segments are plain keys,
// never array indices.
type Path []string

// ParsePath splits a dotted path into segments. Empty segments are dropped,
// so "login..uris" and ".login.uris" both parse to [login uris].
func ParsePath(s string) Path {
	parts := strings.Split(s, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			path = append(path, part)
		}
	}
	return path
}

// String renders the path in dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Equal reports whether p and other have the same segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Child returns a new path with key appended. p is never modified.
func (p Path) Child(key string) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = key
	return child
}

// Lookup returns the value at path within v.
// The boolean is false when any segment is missing or when traversal hits a
// non-object (arrays included). A present null returns (Null{}, true).
// An empty path addresses v itself.
func Lookup(v Value, path Path) (Value, bool) {
	current := v
	for _, segment := range path {
		obj, ok := current.(Object)
		if !ok {
			return nil, false
		}
		next, ok := obj[segment]
		if !ok {
			return nil, false
		}
		current = next
	}
	if IsAbsent(current) {
		return nil, false
	}
	return current, true
}

// Resolve is Lookup with the explicit Absent sentinel in place of the boolean.
func Resolve(v Value, path Path) Value {
	found, ok := Lookup(v, path)
	if !ok {
		return Absent{}
	}
	return found
}
