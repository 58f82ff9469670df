package testutil

import (
	"testing"

	"github.com/roach88/bwdedup/internal/value"
)

// MustDecode decodes a JSON literal into a value tree, failing the test on error.
func MustDecode(t testing.TB, js string) value.Value {
	t.Helper()
	v, err := value.Decode([]byte(js))
	if err != nil {
		t.Fatalf("decode %q: %v", js, err)
	}
	return v
}

// Items decodes each JSON literal into an item, in order.
func Items(t testing.TB, js ...string) []value.Value {
	t.Helper()
	items := make([]value.Value, len(js))
	for i, s := range js {
		items[i] = MustDecode(t, s)
	}
	return items
}

// Login builds a minimal login item with the given URIs.
func Login(name, username, password string, uris ...string) value.Object {
	entries := make(value.Array, len(uris))
	for i, uri := range uris {
		entries[i] = value.Object{"uri": value.String(uri), "match": value.Null{}}
	}
	return value.Object{
		"type": value.Int(1),
		"name": value.String(name),
		"login": value.Object{
			"username": value.String(username),
			"password": value.String(password),
			"uris":     entries,
		},
	}
}

// With returns a copy of obj with the dotted path set to v. Intermediate
// objects are created or copied as needed; obj itself is never modified.
func With(obj value.Object, path string, v value.Value) value.Object {
	return setPath(obj, value.ParsePath(path), v)
}

// Without returns a copy of obj with the dotted path removed.
func Without(obj value.Object, path string) value.Object {
	return setPath(obj, value.ParsePath(path), nil)
}

func setPath(obj value.Object, path value.Path, v value.Value) value.Object {
	out := make(value.Object, len(obj)+1)
	for k, child := range obj {
		out[k] = child
	}
	if len(path) == 0 {
		return out
	}
	if len(path) == 1 {
		if v == nil {
			delete(out, path[0])
		} else {
			out[path[0]] = v
		}
		return out
	}
	child, _ := out[path[0]].(value.Object)
	if child == nil {
		child = value.Object{}
	}
	out[path[0]] = setPath(child, path[1:], v)
	return out
}
