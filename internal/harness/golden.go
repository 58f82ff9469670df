package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bwdedup/internal/dedup"
	"github.com/roach88/bwdedup/internal/value"
)

// Snapshot builds the golden form of a run: the report without
// fingerprints, so golden files stay readable and stable across digest
// changes.
func Snapshot(name string, outcome *dedup.Result) value.Object {
	groups := make(value.Array, len(outcome.Report.Groups))
	for i, g := range outcome.Report.Groups {
		groups[i] = value.Object{
			"kept":      value.Int(g.Kept),
			"discarded": intArray(g.Discarded),
		}
	}

	return value.Object{
		"scenario_name": value.String(name),
		"mode":          value.String(outcome.Report.Mode),
		"keep":          value.String(outcome.Report.Keep),
		"total":         value.Int(outcome.Report.Total),
		"removed":       value.Int(outcome.Report.Removed),
		"kept":          intArray(outcome.Kept),
		"groups":        groups,
	}
}

func intArray(ints []int) value.Array {
	out := make(value.Array, len(ints))
	for i, n := range ints {
		out[i] = value.Int(n)
	}
	return out
}

// RunWithGolden runs scenario and compares its snapshot with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if result.Outcome == nil {
		return result, nil
	}

	data, err := value.MarshalCanonical(Snapshot(scenario.Name, result.Outcome))
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
