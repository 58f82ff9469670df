package dedup

import (
	"context"
	"encoding/json"
	"fmt"
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
	return p
}

func mustRun(t *testing.T, items []value.Value, p policy.Policy) *Result {
	t.Helper()
	res, err := Run(items, p)
	require.NoError(t, err)
	return res
}

// threeDuplicates returns one group of three items with t0 < t1 < t2.
func threeDuplicates(t *testing.T) []value.Value {
	return testutil.Items(t,
		`{"id": "a", "name": "x", "revisionDate": "2024-01-01T00:00:00Z"}`,
		`{"id": "b", "name": "x", "revisionDate": "2024-02-01T00:00:00Z"}`,
		`{"id": "c", "name": "x", "revisionDate": "2024-03-01T00:00:00.123Z"}`,
	)
}

func TestKeepStrategies(t *testing.T) {
	tests := []struct {
		keep     policy.Keep
		expected int
	}{
		{policy.KeepFirst, 0},
		{policy.KeepLast, 2},
		{policy.KeepNewest, 2},
		{policy.KeepOldest, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.keep), func(t *testing.T) {
			p := fullItemPolicy()
			p.Keep = tt.keep

			res := mustRun(t, threeDuplicates(t), p)
			assert.Equal(t, []int{tt.expected}, res.Kept)
			require.Len(t, res.Report.Groups, 1)
			assert.Equal(t, tt.expected, res.Report.Groups[0].Kept)
		})
	}
}

func TestTimestampsOutOfIndexOrder(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "x", "revisionDate": "2024-06-01T00:00:00Z"}`,
		`{"name": "x", "revisionDate": "2023-01-01T00:00:00Z"}`,
		`{"name": "x", "revisionDate": "2024-01-01T00:00:00+02:00"}`,
	)

	p := fullItemPolicy()
	p.Keep = policy.KeepNewest
	assert.Equal(t, []int{0}, mustRun(t, items, p).Kept)

	p.Keep = policy.KeepOldest
	assert.Equal(t, []int{1}, mustRun(t, items, p).Kept)
}

func TestAbsentTimestampTieBreak(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "x"}`,
		`{"name": "x", "revisionDate": "2024-01-01T00:00:00Z"}`,
	)

	p := fullItemPolicy()
	p.Keep = policy.KeepNewest
	assert.Equal(t, []int{1}, mustRun(t, items, p).Kept)

	p.Keep = policy.KeepOldest
	assert.Equal(t, []int{0}, mustRun(t, items, p).Kept)
}

func TestEqualTimestampsTieBreak(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "x", "revisionDate": "2024-01-01T00:00:00Z"}`,
		`{"name": "x", "revisionDate": "2024-01-01T00:00:00Z"}`,
		`{"name": "x"}`,
		`{"name": "x"}`,
	)

	p := fullItemPolicy()
	p.Keep = policy.KeepNewest
	assert.Equal(t, []int{1}, mustRun(t, items, p).Kept)

	p.Keep = policy.KeepOldest
	assert.Equal(t, []int{2}, mustRun(t, items, p).Kept)
}

func TestTimestampFallbackAndUnparseable(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "x", "revisionDate": "not a date", "creationDate": "2024-05-01T00:00:00Z"}`,
		`{"name": "x", "creationDate": "2024-04-01T00:00:00Z"}`,
		`{"name": "x", "revisionDate": 12345}`,
	)

	p := fullItemPolicy()
	p.Keep = policy.KeepNewest
	assert.Equal(t, []int{0}, mustRun(t, items, p).Kept)

	p.Keep = policy.KeepOldest
	assert.Equal(t, []int{2}, mustRun(t, items, p).Kept)
}

func TestOrderPreservation(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "a"}`,
		`{"name": "b"}`,
		`{"name": "a"}`,
		`{"name": "c"}`,
		`{"name": "b"}`,
	)

	p := fullItemPolicy()
	p.Keep = policy.KeepLast
	res := mustRun(t, items, p)

	assert.Equal(t, []int{2, 3, 4}, res.Kept)
	require.Len(t, res.Items, 3)
	for i, idx := range res.Kept {
		assert.True(t, value.Equal(items[idx], res.Items[i]))
	}
}

func TestReportDiscardedIsMembersMinusKept(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "a"}`,
		`{"name": "b"}`,
		`{"name": "a"}`,
		`{"name": "a"}`,
		`{"name": "b"}`,
		`{"name": "c"}`,
	)

	p := fullItemPolicy()
	p.Keep = policy.KeepLast
	res := mustRun(t, items, p)

	require.Len(t, res.Report.Groups, 2)
	assert.Equal(t, 3, res.Report.Groups[0].Kept)
	assert.Equal(t, []int{0, 2}, res.Report.Groups[0].Discarded)
	assert.Equal(t, 4, res.Report.Groups[1].Kept)
	assert.Equal(t, []int{1}, res.Report.Groups[1].Discarded)

	assert.Equal(t, 6, res.Report.Total)
	assert.Equal(t, 3, res.Report.Kept)
	assert.Equal(t, 3, res.Report.Removed)
	assert.Equal(t, res.Fingerprints[0], res.Report.Groups[0].Fingerprint)
}

func TestIdempotence(t *testing.T) {
	items := testutil.Items(t,
		`{"name": "a", "login": {"uris": [{"uri": "b"}, {"uri": "a"}]}}`,
		`{"name": "a", "login": {"uris": [{"uri": "a"}, {"uri": "b"}]}}`,
		`{"name": "b"}`,
	)

	p := fullItemPolicy()
	first := mustRun(t, items, p)
	second := mustRun(t, first.Items, p)

	assert.Len(t, second.Items, len(first.Items))
	assert.Empty(t, second.Report.Groups)
	assert.Equal(t, 0, second.Report.Removed)
}

func TestDeterminismAcrossWorkers(t *testing.T) {
	var items []value.Value
	for i := range 200 {
		items = append(items, testutil.Login(
			fmt.Sprintf("site %d", i%37), "user", "pw",
			fmt.Sprintf("https://site%d.example", i%37)))
	}

	sequential := fullItemPolicy()
	parallel := fullItemPolicy()
	parallel.Workers = 8

	a := mustRun(t, items, sequential)
	b := mustRun(t, items, parallel)

	assert.Equal(t, a.Kept, b.Kept)
	assert.Equal(t, a.Fingerprints, b.Fingerprints)
	assert.Equal(t, a.Report, b.Report)
	assert.Len(t, a.Kept, 37)
}

func TestPolicyKeyVsFullItemDivergence(t *testing.T) {
	a := testutil.With(testutil.Login("GitHub", "octo", "pw", "https://github.com"), "notes", value.String("work"))
	b := testutil.With(testutil.Login("GitHub", "octo", "pw", "https://github.com/login"), "notes", value.String("home"))
	items := []value.Value{a, b}

	keyed := mustRun(t, items, policy.Default())
	assert.Equal(t, []int{0}, keyed.Kept)

	full := mustRun(t, items, fullItemPolicy())
	assert.Equal(t, []int{0, 1}, full.Kept)
}

func TestInvalidPolicyRejectedBeforeProcessing(t *testing.T) {
	p := policy.Default()
	p.Keep = "middle"

	res, err := Run(testutil.Items(t, `{"name": "x"}`), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
	assert.Nil(t, res)
}

func TestIgnoredPolicyKeyRejected(t *testing.T) {
	p := policy.Default()
	p.PolicyKeys = []string{"id"}

	res, err := Run(testutil.Items(t, `{"id": "a", "name": "x"}`, `{"id": "b", "name": "y"}`), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
	assert.Nil(t, res)
}

func TestDistinctIPv6HostsKept(t *testing.T) {
	items := []value.Value{
		testutil.Login("a", "admin", "pw", "https://[2001:db8::1]/"),
		testutil.Login("b", "admin", "pw", "https://[2001:db8::2]/"),
	}

	res := mustRun(t, items, policy.Default())
	assert.Equal(t, []int{0, 1}, res.Kept)
	assert.Empty(t, res.Report.Groups)
}

func TestEmptyInput(t *testing.T) {
	res := mustRun(t, nil, policy.Default())
	assert.Empty(t, res.Kept)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.Report.Total)
	assert.NotNil(t, res.Report.Groups)
}

func TestCancelledContext(t *testing.T) {
	e, err := NewEngine(fullItemPolicy())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Run(ctx, testutil.Items(t, `{"name": "x"}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportJSON(t *testing.T) {
	res := mustRun(t, testutil.Items(t, `{"name": "x"}`, `{"name": "x"}`), fullItemPolicy())

	data, err := json.Marshal(res.Report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"mode": "full-item",
		"keep": "first",
		"total": 2,
		"kept": 1,
		"removed": 1,
		"groups": [{"fingerprint": "`+res.Fingerprints[0].String()+`", "kept": 0, "discarded": [1]}]
	}`, string(data))
}
