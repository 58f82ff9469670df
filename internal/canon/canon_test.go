package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/testutil"
	"github.com/roach88/bwdedup/internal/value"
)

func fullItemPolicy() policy.Policy {
	p := policy.Default()
	p.PolicyKeys = nil
	p.IgnoreKeys = nil
	return p
}

func canonicalJSON(t *testing.T, c *Canonicalizer, item value.Value) string {
	t.Helper()
	data, err := value.MarshalCanonical(c.Canonicalize(item))
	require.NoError(t, err)
	return string(data)
}

func TestIgnoreKeysAtAnyDepth(t *testing.T) {
	p := fullItemPolicy()
	p.IgnoreKeys = []string{"id"}
	c := New(p)

	item := testutil.MustDecode(t, `{
		"id": "root",
		"name": "x",
		"login": {"id": "nested", "uris": [{"id": "in-array", "uri": "a"}]},
		"fields": [[{"id": "deep"}]]
	}`)

	assert.Equal(t,
		`{"fields":[[{}]],"login":{"uris":[{"uri":"a"}]},"name":"x"}`,
		canonicalJSON(t, c, item))
}

func TestIgnoreKeysCaseSensitive(t *testing.T) {
	p := fullItemPolicy()
	p.IgnoreKeys = []string{"id"}
	c := New(p)

	item := testutil.MustDecode(t, `{"ID": 1, "id": 2}`)
	assert.Equal(t, `{"ID":1}`, canonicalJSON(t, c, item))
}

func TestIgnorePathsKeepEmptyParent(t *testing.T) {
	p := fullItemPolicy()
	p.IgnorePaths = []string{"login.totp", "", "missing.path"}
	c := New(p)

	item := testutil.MustDecode(t, `{"login": {"totp": "123"}, "name": "x"}`)
	assert.Equal(t, `{"login":{},"name":"x"}`, canonicalJSON(t, c, item))
}

func TestIgnorePathsOnlyMatchFromRoot(t *testing.T) {
	p := fullItemPolicy()
	p.IgnorePaths = []string{"uri"}
	c := New(p)

	item := testutil.MustDecode(t, `{"uri": "root", "login": {"uri": "nested", "uris": [{"uri": "x"}]}}`)
	assert.Equal(t,
		`{"login":{"uri":"nested","uris":[{"uri":"x"}]}}`,
		canonicalJSON(t, c, item))
}

func TestIgnoreKeyAndPathOverlap(t *testing.T) {
	p := fullItemPolicy()
	p.IgnoreKeys = []string{"notes"}
	p.IgnorePaths = []string{"notes", "login.notes"}
	c := New(p)

	item := testutil.MustDecode(t, `{"notes": "a", "login": {"notes": "b", "username": "u"}}`)
	assert.Equal(t, `{"login":{"username":"u"}}`, canonicalJSON(t, c, item))
}

func TestStringNormalization(t *testing.T) {
	tests := []struct {
		name     string
		trim     bool
		lower    bool
		input    string
		expected string
	}{
		{"untouched", false, false, "  MiXeD  ", "  MiXeD  "},
		{"trim only", true, false, "  MiXeD\t\n", "MiXeD"},
		{"lower only", false, true, "  MiXeD  ", "  mixed  "},
		{"trim then lower", true, true, " \u00c9COLE ", "\u00e9cole"},
		{"unicode whitespace", true, false, "\u00a0 x\u2003", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fullItemPolicy()
			p.TrimStrings = tt.trim
			p.LowercaseStrings = tt.lower
			c := New(p)

			out := c.Canonicalize(value.Object{"s": value.String(tt.input)})
			assert.Equal(t, value.Object{"s": value.String(tt.expected)}, out)
		})
	}
}

func TestKeysAreNotNormalized(t *testing.T) {
	p := fullItemPolicy()
	p.LowercaseStrings = true
	c := New(p)

	out := c.Canonicalize(value.Object{"Name": value.String("X")})
	assert.Equal(t, value.Object{"Name": value.String("x")}, out)
}

func TestNormalizeUnicodeNFC(t *testing.T) {
	p := fullItemPolicy()
	p.NormalizeUnicode = true
	c := New(p)

	decomposed := value.Object{"s": value.String("e\u0301")}
	composed := value.Object{"s": value.String("\u00e9")}
	assert.Equal(t, c.Canonicalize(composed), c.Canonicalize(decomposed))

	off := New(fullItemPolicy())
	assert.NotEqual(t, off.Canonicalize(composed), off.Canonicalize(decomposed))
}

func TestSortURIs(t *testing.T) {
	item := testutil.MustDecode(t, `{"login": {"uris": [
		{"uri": "https://b.example", "match": null},
		"https://c.example",
		{"uri": "https://a.example", "match": 1},
		{"uri": "https://a.example", "match": 0}
	]}}`)

	c := New(fullItemPolicy())
	assert.Equal(t,
		`{"login":{"uris":[{"match":0,"uri":"https://a.example"},{"match":1,"uri":"https://a.example"},{"match":null,"uri":"https://b.example"},"https://c.example"]}}`,
		canonicalJSON(t, c, item))
}

func TestSortURIsDisabledKeepsOrder(t *testing.T) {
	p := fullItemPolicy()
	p.SortURIs = false
	c := New(p)

	item := testutil.MustDecode(t, `{"login": {"uris": [{"uri": "b"}, {"uri": "a"}]}}`)
	assert.Equal(t, `{"login":{"uris":[{"uri":"b"},{"uri":"a"}]}}`, canonicalJSON(t, c, item))
}

func TestSortURIsOnlyAtLoginURIs(t *testing.T) {
	c := New(fullItemPolicy())

	item := testutil.MustDecode(t, `{"uris": ["b", "a"], "login": {"other": ["b", "a"]}}`)
	assert.Equal(t, `{"login":{"other":["b","a"]},"uris":["b","a"]}`, canonicalJSON(t, c, item))
}

func TestSortURIsUsesNormalizedKey(t *testing.T) {
	p := fullItemPolicy()
	p.LowercaseStrings = true
	c := New(p)

	a := testutil.MustDecode(t, `{"login": {"uris": [{"uri": "B.example"}, {"uri": "a.example"}]}}`)
	b := testutil.MustDecode(t, `{"login": {"uris": [{"uri": "a.example"}, {"uri": "b.example"}]}}`)
	assert.Equal(t, canonicalJSON(t, c, a), canonicalJSON(t, c, b))
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	p := fullItemPolicy()
	p.IgnoreKeys = []string{"id"}
	p.TrimStrings = true
	p.LowercaseStrings = true
	c := New(p)

	original := `{"id": "1", "name": " Name ", "login": {"uris": [{"uri": "b"}, {"uri": "a"}]}}`
	item := testutil.MustDecode(t, original)
	_ = c.Canonicalize(item)

	assert.True(t, value.Equal(testutil.MustDecode(t, original), item))
}
