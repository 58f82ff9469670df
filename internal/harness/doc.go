// Package harness runs dedup conformance scenarios.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	policy:                  # overrides on the default policy
//	  keep: newest
//	  policy_keys: []        # empty list selects full-item mode
//	  ignore_keys: [id]
//	  trim_strings: true
//	items:
//	  - {name: "a", revisionDate: "2024-01-01T00:00:00Z"}
//	  - {name: "a"}
//	expect:
//	  kept: [0]
//	  groups:
//	    - kept: 0
//	      discarded: [1]
//
// A scenario that expects the policy to be rejected sets expect.error to a
// substring of the error message instead of kept.
//
// # Built-in Checks
//
// Besides the expectations, every successful run is checked for:
//
//   - determinism: a parallel run gives the same result
//   - idempotence: deduplicating the survivors removes nothing
//   - order: kept indices are strictly ascending
//
// RunWithGolden additionally snapshots the report, minus fingerprints, under
// testdata/golden.
package harness
