package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/bwdedup/internal/fingerprint"
	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/testutil"
	"github.com/roach88/bwdedup/internal/value"
)

func ref(index int, ts string) ItemRef {
	if ts == "" {
		return ItemRef{Index: index}
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return ItemRef{Index: index, Timestamp: parsed, HasTimestamp: true}
}

func TestSelectKeeperSingleton(t *testing.T) {
	for _, keep := range policy.KeepStrategies {
		assert.Equal(t, 4, SelectKeeper([]ItemRef{ref(4, "")}, keep).Index)
	}
}

func TestSelectKeeperMixed(t *testing.T) {
	members := []ItemRef{
		ref(0, "2024-01-01T00:00:00Z"),
		ref(3, ""),
		ref(5, "2024-03-01T00:00:00Z"),
		ref(7, ""),
		ref(9, "2024-03-01T00:00:00Z"),
	}

	assert.Equal(t, 0, SelectKeeper(members, policy.KeepFirst).Index)
	assert.Equal(t, 9, SelectKeeper(members, policy.KeepLast).Index)
	assert.Equal(t, 9, SelectKeeper(members, policy.KeepNewest).Index)
	assert.Equal(t, 3, SelectKeeper(members, policy.KeepOldest).Index)
}

func TestTimestampOf(t *testing.T) {
	keys := []value.Path{value.ParsePath("revisionDate"), value.ParsePath("meta.created")}

	tests := []struct {
		name string
		item string
		ok   bool
	}{
		{"first key", `{"revisionDate": "2024-01-01T10:00:00Z"}`, true},
		{"fractional seconds", `{"revisionDate": "2024-01-01T10:00:00.5+01:00"}`, true},
		{"nested fallback", `{"meta": {"created": "2024-01-01T10:00:00Z"}}`, true},
		{"not a string", `{"revisionDate": 1}`, false},
		{"unparseable", `{"revisionDate": "yesterday"}`, false},
		{"missing", `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := timestampOf(testutil.MustDecode(t, tt.item), keys)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestGroupItemsFirstOccurrenceOrder(t *testing.T) {
	fa := fingerprint.Fingerprint{1}
	fb := fingerprint.Fingerprint{2}
	fps := []fingerprint.Fingerprint{fb, fa, fb, fa, fb}
	refs := []ItemRef{ref(0, ""), ref(1, ""), ref(2, ""), ref(3, ""), ref(4, "")}

	groups := GroupItems(fps, refs)

	assert.Len(t, groups, 2)
	assert.Equal(t, fb, groups[0].Fingerprint)
	assert.Equal(t, []ItemRef{refs[0], refs[2], refs[4]}, groups[0].Members)
	assert.Equal(t, fa, groups[1].Fingerprint)
	assert.True(t, groups[1].Duplicate())
}
