package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"harborplan/internal/eval"
	"harborplan/internal/model"
	"harborplan/internal/opt"
)

var d0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func snapshot() ([]model.Boat, []model.Slot) {
	boats := []model.Boat{
		{ID: 1, Name: "Aurora", Width: 3, Arrival: d0, Departure: d0.Add(72 * time.Hour)},
		{ID: 2, Name: "Brise", Width: 2, Arrival: d0.Add(24 * time.Hour), Departure: d0.Add(96 * time.Hour)},
		{ID: 3, Name: "Calypso", Width: 5, Arrival: d0, Departure: d0.Add(24 * time.Hour)},
	}
	slots := []model.Slot{
		{ID: 1, Name: "A1", MaxWidth: 3},
		{ID: 2, Name: "A2", MaxWidth: 4},
	}
	return boats, slots
}

// stub is a strategy with scripted behaviour.
type stub struct {
	name  string
	place func(ctx context.Context) ([]model.Stay, error)
}

func (s stub) Name() string        { return s.name }
func (s stub) Description() string { return "stub " + s.name }
func (s stub) Place(ctx context.Context, _ []model.Boat, _ []model.Slot) ([]model.Stay, error) {
	return s.place(ctx)
}

func newPlanner(t *testing.T, reg *opt.Registry, cfg Config) *Planner {
	t.Helper()
	p, err := New(reg, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestOptimizeAllStrategies(t *testing.T) {
	boats, slots := snapshot()
	p := newPlanner(t, opt.Default(7), Config{})
	res, err := p.Optimize(context.Background(), boats, slots, nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(res.Ranking) != len(opt.Default(7).Names()) || len(res.Excluded) != 0 {
		t.Fatalf("ranking %d excluded %d", len(res.Ranking), len(res.Excluded))
	}
	if res.RunID == "" || res.Boats != 3 || res.Slots != 2 {
		t.Fatalf("unexpected header: %+v", res)
	}
	if res.Best.Strategy != res.Ranking[0].Strategy || res.Best.Rank != 1 {
		t.Fatalf("best is not rank 1: %s vs %s", res.Best.Strategy, res.Ranking[0].Strategy)
	}
	for i := 1; i < len(res.Ranking); i++ {
		if res.Ranking[i-1].Score < res.Ranking[i].Score {
			t.Fatalf("ranking not sorted at %d", i)
		}
	}
	// Boat 3 fits nowhere, the other two fit on separate slots.
	if res.Best.Metrics.BoatsPlaced != 2 {
		t.Fatalf("best placed %d", res.Best.Metrics.BoatsPlaced)
	}
	if res.Report.Summary.BestStrategy != res.Best.Strategy || len(res.Report.Top) != eval.DefaultTopN {
		t.Fatalf("report: %+v", res.Report.Summary)
	}
}

func TestOptimizeSubsetAndUnknown(t *testing.T) {
	boats, slots := snapshot()
	p := newPlanner(t, opt.Default(1), Config{})
	res, err := p.Optimize(context.Background(), boats, slots, []string{"best_fit", "largest_first", "best_fit"})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(res.Ranking) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Ranking))
	}
	if _, err := p.Optimize(context.Background(), boats, slots, []string{"best_fit", "nope"}); !errors.Is(err, opt.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestOptimizeRejectsInvalidSnapshot(t *testing.T) {
	boats, slots := snapshot()
	boats[0].Width = -1
	p := newPlanner(t, opt.Default(1), Config{})
	if _, err := p.Optimize(context.Background(), boats, slots, nil); !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestTimeoutExcludesSlowStrategy(t *testing.T) {
	boats, slots := snapshot()
	release := make(chan struct{})
	defer close(release)
	reg := opt.NewRegistry(
		opt.LargestFirst(),
		stub{name: "stuck", place: func(context.Context) ([]model.Stay, error) {
			<-release // ignores ctx on purpose
			return nil, nil
		}},
	)
	p := newPlanner(t, reg, Config{StrategyTimeout: 50 * time.Millisecond})
	start := time.Now()
	res, err := p.Optimize(context.Background(), boats, slots, nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("run waited for the stuck strategy")
	}
	if len(res.Excluded) != 1 || res.Excluded[0].Strategy != "stuck" || res.Excluded[0].Reason != ReasonTimeout {
		t.Fatalf("excluded: %+v", res.Excluded)
	}
	if len(res.Ranking) != 1 || res.Best.Strategy != "largest_first" {
		t.Fatalf("ranking: %+v", res.Ranking)
	}
	if len(res.Report.Excluded) != 1 || res.Report.Excluded[0] != "stuck" {
		t.Fatalf("report excluded: %v", res.Report.Excluded)
	}
}

func TestErrorAndPanicAreExcluded(t *testing.T) {
	boats, slots := snapshot()
	reg := opt.NewRegistry(
		stub{name: "broken", place: func(context.Context) ([]model.Stay, error) { return nil, errors.New("boom") }},
		stub{name: "panicky", place: func(context.Context) ([]model.Stay, error) { panic("kaboom") }},
		opt.BestFit(),
	)
	p := newPlanner(t, reg, Config{})
	res, err := p.Optimize(context.Background(), boats, slots, nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(res.Excluded) != 2 {
		t.Fatalf("excluded: %+v", res.Excluded)
	}
	for _, ex := range res.Excluded {
		if ex.Reason != ReasonError || ex.Detail == "" {
			t.Fatalf("exclusion: %+v", ex)
		}
	}
	if res.Best.Strategy != "best_fit" {
		t.Fatalf("best = %s", res.Best.Strategy)
	}
}

func TestNoStrategyCompleted(t *testing.T) {
	boats, slots := snapshot()
	reg := opt.NewRegistry(stub{name: "broken", place: func(context.Context) ([]model.Stay, error) { return nil, errors.New("boom") }})
	p := newPlanner(t, reg, Config{})
	if _, err := p.Optimize(context.Background(), boats, slots, nil); !errors.Is(err, ErrNoStrategyCompleted) {
		t.Fatalf("expected ErrNoStrategyCompleted, got %v", err)
	}
}

func TestEmptySnapshotCompletes(t *testing.T) {
	p := newPlanner(t, opt.Default(1), Config{})
	res, err := p.Optimize(context.Background(), nil, nil, []string{"best_fit"})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Best.Metrics.PlacementRate != 0 || len(res.Best.Stays) != 0 {
		t.Fatalf("empty snapshot: %+v", res.Best)
	}
}

func TestCancelledRun(t *testing.T) {
	boats, slots := snapshot()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPlanner(t, opt.Default(1), Config{})
	if _, err := p.Optimize(ctx, boats, slots, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeSource struct {
	boats []model.Boat
	slots []model.Slot
	err   error
}

func (f fakeSource) ListBoats(context.Context) ([]model.Boat, error) { return f.boats, f.err }
func (f fakeSource) ListSlots(context.Context) ([]model.Slot, error) { return f.slots, nil }

func TestRunLoadsFromSource(t *testing.T) {
	boats, slots := snapshot()
	p := newPlanner(t, opt.Default(1), Config{})
	res, err := p.Run(context.Background(), fakeSource{boats: boats, slots: slots}, []string{"largest_first"})
	if err != nil || res.Boats != 3 {
		t.Fatalf("Run: %+v %v", res, err)
	}
	loadErr := errors.New("db down")
	if _, err := p.Run(context.Background(), fakeSource{err: loadErr}, nil); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	// Unknown names are rejected before the source is read.
	if _, err := p.Run(context.Background(), fakeSource{err: loadErr}, []string{"nope"}); !errors.Is(err, opt.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestWeightsOverrideAndEvents(t *testing.T) {
	boats, slots := snapshot()
	p := newPlanner(t, opt.Default(1), Config{})
	var mu sync.Mutex
	var events []Event
	p.SetObserver(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	w := eval.Weights{Placement: 100}
	res, err := p.Execute(context.Background(), boats, slots, Options{Strategies: []string{"best_fit", "smallest_first"}, Weights: &w, RunID: "run-1", TopN: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RunID != "run-1" || res.Report.Weights.Placement != 1 || len(res.Report.Top) != 1 {
		t.Fatalf("overrides ignored: %+v", res.Report)
	}
	if res.Best.Score != res.Best.Metrics.PlacementRate {
		t.Fatalf("score %v != placement %v", res.Best.Score, res.Best.Metrics.PlacementRate)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 4 || events[0].Type != EventRunStarted || !events[3].Terminal() || events[3].Type != EventRunCompleted {
		t.Fatalf("events: %+v", events)
	}
	for _, e := range events {
		if e.RunID != "run-1" {
			t.Fatalf("event for wrong run: %+v", e)
		}
	}
	bad := eval.Weights{Placement: 2}
	if _, err := p.Execute(context.Background(), boats, slots, Options{Weights: &bad}); !errors.Is(err, eval.ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}
}
