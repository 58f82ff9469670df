package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/bwdedup/internal/dedup"
	"github.com/roach88/bwdedup/internal/value"
)

// parallelWorkers is the worker count used for the determinism check.
const parallelWorkers = 4

// Harness runs scenarios.
type Harness struct {
	logger *slog.Logger
}

// New creates a Harness that logs to logger. A nil logger discards.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{logger: logger}
}

// Run executes a scenario with a discarding logger.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(context.Background(), scenario)
}

// Run executes scenario and evaluates its expectations and the built-in
// checks. An error is returned only when the scenario itself is unusable;
// failed expectations are reported through Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	items, err := scenarioItems(scenario)
	if err != nil {
		return nil, err
	}

	p := scenario.Policy.Resolve()
	h.logger.Debug("running scenario",
		"name", scenario.Name,
		"items", len(items),
		"policy", p.Describe())

	result := NewResult()

	engine, err := dedup.NewEngine(p)
	if err != nil {
		result.PolicyError = err.Error()
		checkPolicyError(result, scenario.Expect, err)
		return result, nil
	}
	if scenario.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected policy error containing %q, got none", scenario.Expect.Error))
		return result, nil
	}

	outcome, err := engine.Run(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	result.Outcome = outcome

	checkExpectations(result, scenario.Expect, outcome)
	checkOrder(result, outcome)
	if err := h.checkDeterminism(ctx, result, engine, items, outcome); err != nil {
		return nil, err
	}
	if err := h.checkIdempotence(ctx, result, engine, outcome); err != nil {
		return nil, err
	}

	h.logger.Debug("scenario finished",
		"name", scenario.Name,
		"pass", result.Pass,
		"kept", outcome.Kept)

	return result, nil
}

func scenarioItems(s *Scenario) ([]value.Value, error) {
	items := make([]value.Value, len(s.Items))
	for i, raw := range s.Items {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: items[%d]: %w", s.Name, i, err)
		}
		items[i] = v
	}
	return items, nil
}

func checkPolicyError(result *Result, expect Expect, err error) {
	if expect.Error == "" {
		result.AddError(fmt.Sprintf("unexpected policy error: %v", err))
		return
	}
	if !strings.Contains(err.Error(), expect.Error) {
		result.AddError(fmt.Sprintf("policy error %q does not contain %q", err.Error(), expect.Error))
	}
}

func checkExpectations(result *Result, expect Expect, outcome *dedup.Result) {
	if !slices.Equal(expect.Kept, outcome.Kept) {
		result.AddError(fmt.Sprintf("kept: expected %v, got %v", expect.Kept, outcome.Kept))
	}

	if expect.Groups == nil {
		return
	}
	got := outcome.Report.Groups
	if len(expect.Groups) != len(got) {
		result.AddError(fmt.Sprintf("groups: expected %d, got %d", len(expect.Groups), len(got)))
		return
	}
	for i, want := range expect.Groups {
		if want.Kept != got[i].Kept || !slices.Equal(want.Discarded, got[i].Discarded) {
			result.AddError(fmt.Sprintf("groups[%d]: expected kept %d discarded %v, got kept %d discarded %v",
				i, want.Kept, want.Discarded, got[i].Kept, got[i].Discarded))
		}
	}
}

func checkOrder(result *Result, outcome *dedup.Result) {
	for i := 1; i < len(outcome.Kept); i++ {
		if outcome.Kept[i] <= outcome.Kept[i-1] {
			result.AddError(fmt.Sprintf("order: kept indices not ascending: %v", outcome.Kept))
			return
		}
	}
}

func (h *Harness) checkDeterminism(ctx context.Context, result *Result, engine *dedup.Engine, items []value.Value, outcome *dedup.Result) error {
	p := engine.Policy()
	p.Workers = parallelWorkers
	parallel, err := dedup.NewEngine(p)
	if err != nil {
		return err
	}
	again, err := parallel.Run(ctx, items)
	if err != nil {
		return err
	}
	if !slices.Equal(again.Kept, outcome.Kept) || !slices.Equal(again.Fingerprints, outcome.Fingerprints) {
		result.AddError(fmt.Sprintf("determinism: parallel run kept %v, sequential kept %v", again.Kept, outcome.Kept))
	}
	return nil
}

func (h *Harness) checkIdempotence(ctx context.Context, result *Result, engine *dedup.Engine, outcome *dedup.Result) error {
	again, err := engine.Run(ctx, outcome.Items)
	if err != nil {
		return err
	}
	if again.Report.Removed != 0 {
		result.AddError(fmt.Sprintf("idempotence: second pass removed %d items", again.Report.Removed))
	}
	return nil
}
