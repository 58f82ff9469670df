package dedup

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/bwdedup/internal/fingerprint"
	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/value"
)

// ReportEntry describes one duplicate group. Discarded is in input order.
type ReportEntry struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Kept        int                     `json:"kept"`
	Discarded   []int                   `json:"discarded"`
}

// Report summarises a run. Groups holds only groups with duplicates, ordered
// by first occurrence.
type Report struct {
	Mode    fingerprint.Mode `json:"mode"`
	Keep    policy.Keep      `json:"keep"`
	Total   int              `json:"total"`
	Kept    int              `json:"kept"`
	Removed int              `json:"removed"`
	Groups  []ReportEntry    `json:"groups"`
}

// Result is the outcome of a run.
type Result struct {
	// Kept holds the surviving original indices, ascending.
	Kept []int
	// Items holds the surviving items in original order.
	Items []value.Value
	// Fingerprints holds one fingerprint per input item.
	Fingerprints []fingerprint.Fingerprint
	Report       Report
}

// Engine runs the dedup pipeline for one validated policy.
type Engine struct {
	policy     policy.Policy
	computer   *fingerprint.Computer
	timestamps []value.Path
}

// NewEngine validates p and prepares an Engine. A malformed policy is
// rejected here, before any item is seen.
func NewEngine(p policy.Policy) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := fingerprint.CheckKeys(p); err != nil {
		return nil, err
	}

	e := &Engine{
		policy:   p,
		computer: fingerprint.NewComputer(p),
	}
	for _, key := range p.TimestampKeys {
		e.timestamps = append(e.timestamps, value.ParsePath(key))
	}
	return e, nil
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() policy.Policy {
	return e.policy
}

// Run is a convenience wrapper around NewEngine and Engine.Run.
func Run(items []value.Value, p policy.Policy) (*Result, error) {
	e, err := NewEngine(p)
	if err != nil {
		return nil, err
	}
	return e.Run(context.Background(), items)
}

// Run deduplicates items. It either returns a complete result or an error;
// there is no partial success.
func (e *Engine) Run(ctx context.Context, items []value.Value) (*Result, error) {
	fps, err := e.Fingerprints(ctx, items)
	if err != nil {
		return nil, err
	}

	refs := make([]ItemRef, len(items))
	for i, item := range items {
		ts, ok := timestampOf(item, e.timestamps)
		refs[i] = ItemRef{Index: i, Timestamp: ts, HasTimestamp: ok}
	}

	groups := GroupItems(fps, refs)

	report := Report{
		Mode:   e.computer.Mode(),
		Keep:   e.policy.Keep,
		Total:  len(items),
		Groups: []ReportEntry{},
	}
	kept := make([]int, 0, len(groups))

	for _, g := range groups {
		keeper := SelectKeeper(g.Members, e.policy.Keep)
		kept = append(kept, keeper.Index)
		if !g.Duplicate() {
			continue
		}

		entry := ReportEntry{
			Fingerprint: g.Fingerprint,
			Kept:        keeper.Index,
			Discarded:   make([]int, 0, len(g.Members)-1),
		}
		for _, m := range g.Members {
			if m.Index != keeper.Index {
				entry.Discarded = append(entry.Discarded, m.Index)
			}
		}
		report.Groups = append(report.Groups, entry)
	}

	slices.Sort(kept)
	out := make([]value.Value, len(kept))
	for i, idx := range kept {
		out[i] = items[idx]
	}

	report.Kept = len(kept)
	report.Removed = report.Total - report.Kept

	return &Result{
		Kept:         kept,
		Items:        out,
		Fingerprints: fps,
		Report:       report,
	}, nil
}

// Fingerprints computes one fingerprint per item. With more than one worker
// the items are spread over an errgroup; results are index-addressed so the
// output order never depends on scheduling.
func (e *Engine) Fingerprints(ctx context.Context, items []value.Value) ([]fingerprint.Fingerprint, error) {
	fps := make([]fingerprint.Fingerprint, len(items))

	if e.policy.Workers <= 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fp, err := e.computer.Compute(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			fps[i] = fp
		}
		return fps, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.policy.Workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fp, err := e.computer.Compute(item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			fps[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fps, nil
}

// Explain returns the canonical material hashed for item.
func (e *Engine) Explain(item value.Value) (string, error) {
	return e.computer.Explain(item)
}
