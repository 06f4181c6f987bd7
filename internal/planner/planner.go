// Package planner runs placement strategies concurrently over one snapshot and
// hands the completed results to the evaluator.
package planner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"harborplan/internal/eval"
	"harborplan/internal/metrics"
	"harborplan/internal/model"
	"harborplan/internal/opt"
)

// ErrNoStrategyCompleted means every requested strategy was excluded. It is
// distinct from a completed run that placed no boats.
var ErrNoStrategyCompleted = errors.New("no strategy completed")

const DefaultStrategyTimeout = 30 * time.Second

// Exclusion reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonError     = "error"
	ReasonCancelled = "cancelled"
)

type Config struct {
	Weights         eval.Weights
	StrategyTimeout time.Duration
	MaxParallel     int
	TopN            int
}

func DefaultConfig() Config {
	return Config{
		Weights:         eval.DefaultWeights(),
		StrategyTimeout: DefaultStrategyTimeout,
		MaxParallel:     runtime.GOMAXPROCS(0),
		TopN:            eval.DefaultTopN,
	}
}

// Source supplies the boat and slot snapshot for a run.
type Source interface {
	ListBoats(ctx context.Context) ([]model.Boat, error)
	ListSlots(ctx context.Context) ([]model.Slot, error)
}

// Options override the planner configuration for a single run.
type Options struct {
	Strategies []string
	Weights    *eval.Weights
	Timeout    time.Duration
	TopN       int
	// RunID is generated when empty.
	RunID string
}

type Exclusion struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

type Result struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Boats      int           `json:"boats"`
	Slots      int           `json:"slots"`
	Best       eval.Result   `json:"best"`
	Ranking    []eval.Result `json:"ranking"`
	Excluded   []Exclusion   `json:"excluded"`
	Report     eval.Report   `json:"report"`
}

type Planner struct {
	registry  *opt.Registry
	evaluator *eval.Evaluator
	cfg       Config
	log       zerolog.Logger
	observer  func(Event)
}

func New(reg *opt.Registry, cfg Config, logger zerolog.Logger) (*Planner, error) {
	def := DefaultConfig()
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = def.StrategyTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.Weights == (eval.Weights{}) {
		cfg.Weights = def.Weights
	}
	ev, err := eval.NewEvaluator(cfg.Weights)
	if err != nil {
		return nil, err
	}
	cfg.Weights = ev.Weights()
	return &Planner{registry: reg, evaluator: ev, cfg: cfg, log: logger}, nil
}

// SetObserver installs a callback for run events. It is called from the
// strategy goroutines and must be safe for concurrent use.
func (p *Planner) SetObserver(fn func(Event)) { p.observer = fn }

func (p *Planner) Registry() *opt.Registry { return p.registry }
func (p *Planner) Config() Config          { return p.cfg }

// Optimize runs the named strategies (all when names is empty) over the
// snapshot and ranks the completed ones.
func (p *Planner) Optimize(ctx context.Context, boats []model.Boat, slots []model.Slot, names []string) (*Result, error) {
	return p.Execute(ctx, boats, slots, Options{Strategies: names})
}

// Run loads the snapshot from src and optimizes it. Load errors abort the run.
func (p *Planner) Run(ctx context.Context, src Source, names []string) (*Result, error) {
	return p.RunWith(ctx, src, Options{Strategies: names})
}

func (p *Planner) RunWith(ctx context.Context, src Source, opts Options) (*Result, error) {
	strategies, ev, err := p.prepare(opts)
	if err != nil {
		return nil, err
	}
	boats, err := src.ListBoats(ctx)
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues("load_failed").Inc()
		return nil, fmt.Errorf("load boats: %w", err)
	}
	slots, err := src.ListSlots(ctx)
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues("load_failed").Inc()
		return nil, fmt.Errorf("load slots: %w", err)
	}
	if err := model.ValidateSnapshot(boats, slots); err != nil {
		return nil, err
	}
	return p.execute(ctx, strategies, ev, boats, slots, opts)
}

func (p *Planner) Execute(ctx context.Context, boats []model.Boat, slots []model.Slot, opts Options) (*Result, error) {
	strategies, ev, err := p.prepare(opts)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateSnapshot(boats, slots); err != nil {
		return nil, err
	}
	return p.execute(ctx, strategies, ev, boats, slots, opts)
}

func (p *Planner) prepare(opts Options) ([]opt.Strategy, *eval.Evaluator, error) {
	strategies, err := p.registry.Resolve(opts.Strategies)
	if err != nil {
		return nil, nil, err
	}
	if len(strategies) == 0 {
		return nil, nil, fmt.Errorf("%w: no strategies registered", opt.ErrUnknownStrategy)
	}
	ev := p.evaluator
	if opts.Weights != nil {
		if ev, err = eval.NewEvaluator(*opts.Weights); err != nil {
			return nil, nil, err
		}
	}
	return strategies, ev, nil
}

func (p *Planner) execute(ctx context.Context, strategies []opt.Strategy, ev *eval.Evaluator, boats []model.Boat, slots []model.Slot, opts Options) (*Result, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	timeout := p.cfg.StrategyTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	topN := p.cfg.TopN
	if opts.TopN > 0 {
		topN = opts.TopN
	}
	log := p.log.With().Str("run", runID).Logger()
	res := &Result{RunID: runID, StartedAt: time.Now().UTC(), Boats: len(boats), Slots: len(slots)}
	log.Info().Int("strategies", len(strategies)).Int("boats", len(boats)).Int("slots", len(slots)).Dur("timeout", timeout).Msg("optimization started")
	p.emit(Event{RunID: runID, Type: EventRunStarted, Data: map[string]any{"strategies": len(strategies), "boats": len(boats), "slots": len(slots)}})

	outcomes := make([]*eval.Outcome, len(strategies))
	exclusions := make([]*Exclusion, len(strategies))
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxParallel)
	for i, s := range strategies {
		g.Go(func() error {
			o, ex := p.runOne(ctx, log, s, boats, slots, timeout)
			if ex != nil {
				exclusions[i] = ex
				p.emit(Event{RunID: runID, Type: EventStrategyExcluded, Strategy: s.Name(), Data: map[string]any{"reason": ex.Reason, "detail": ex.Detail}})
				return nil
			}
			outcomes[i] = o
			p.emit(Event{RunID: runID, Type: EventStrategyCompleted, Strategy: s.Name(), Data: map[string]any{"placed": len(o.Stays), "elapsedMs": o.Elapsed.Milliseconds()}})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		metrics.OptimizeRuns.WithLabelValues("cancelled").Inc()
		p.emit(Event{RunID: runID, Type: EventRunFailed, Data: map[string]any{"error": err.Error()}})
		return nil, err
	}

	completed := make([]eval.Outcome, 0, len(strategies))
	res.Excluded = []Exclusion{}
	excludedNames := []string{}
	for i := range strategies {
		if outcomes[i] != nil {
			completed = append(completed, *outcomes[i])
		}
		if exclusions[i] != nil {
			res.Excluded = append(res.Excluded, *exclusions[i])
			excludedNames = append(excludedNames, exclusions[i].Strategy)
		}
	}
	if len(completed) == 0 {
		metrics.OptimizeRuns.WithLabelValues("failed").Inc()
		log.Error().Int("excluded", len(res.Excluded)).Msg("no strategy completed")
		p.emit(Event{RunID: runID, Type: EventRunFailed, Data: map[string]any{"error": ErrNoStrategyCompleted.Error()}})
		return nil, fmt.Errorf("%w: %d of %d strategies excluded", ErrNoStrategyCompleted, len(res.Excluded), len(strategies))
	}

	best, ranking, err := ev.Best(completed, boats, slots)
	if err != nil {
		return nil, err
	}
	res.FinishedAt = time.Now().UTC()
	res.Best = best
	res.Ranking = ranking
	res.Report = ev.Report(ranking, len(boats), len(slots), topN, res.FinishedAt)
	res.Report.Excluded = excludedNames
	for _, r := range ranking {
		metrics.PlacementRate.WithLabelValues(r.Strategy).Set(r.Metrics.PlacementRate)
	}
	metrics.OptimizeRuns.WithLabelValues("completed").Inc()
	log.Info().Str("best", best.Strategy).Float64("score", best.Score).Int("excluded", len(res.Excluded)).Msg("optimization completed")
	p.emit(Event{RunID: runID, Type: EventRunCompleted, Strategy: best.Strategy, Data: map[string]any{"score": best.Score, "excluded": excludedNames}})
	return res, nil
}

type placement struct {
	stays []model.Stay
	err   error
}

// runOne runs a single strategy under its own deadline. The strategy runs in
// its own goroutine so a strategy that ignores ctx cannot hold up the run.
func (p *Planner) runOne(ctx context.Context, log zerolog.Logger, s opt.Strategy, boats []model.Boat, slots []model.Slot, timeout time.Duration) (*eval.Outcome, *Exclusion) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	name := s.Name()
	start := time.Now()
	done := make(chan placement, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- placement{err: fmt.Errorf("strategy panicked: %v", r)}
			}
		}()
		stays, err := s.Place(sctx, boats, slots)
		done <- placement{stays: stays, err: err}
	}()

	var pl placement
	select {
	case pl = <-done:
	case <-sctx.Done():
		pl = placement{err: sctx.Err()}
	}
	elapsed := time.Since(start)
	metrics.StrategyDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if pl.err != nil {
		ex := &Exclusion{Strategy: name, Reason: ReasonError, Detail: pl.err.Error()}
		switch {
		case errors.Is(pl.err, context.DeadlineExceeded):
			ex.Reason = ReasonTimeout
			ex.Detail = fmt.Sprintf("exceeded %s", timeout)
		case errors.Is(pl.err, context.Canceled):
			ex.Reason = ReasonCancelled
		}
		metrics.StrategyRuns.WithLabelValues(name, ex.Reason).Inc()
		log.Warn().Str("strategy", name).Str("reason", ex.Reason).Dur("elapsed", elapsed).Msg("strategy excluded")
		return nil, ex
	}
	metrics.StrategyRuns.WithLabelValues(name, "completed").Inc()
	log.Debug().Str("strategy", name).Int("placed", len(pl.stays)).Dur("elapsed", elapsed).Msg("strategy completed")
	return &eval.Outcome{Strategy: name, Description: s.Description(), Stays: pl.stays, Elapsed: elapsed}, nil
}

func (p *Planner) emit(evt Event) {
	if p.observer == nil {
		return
	}
	evt.At = time.Now().UTC()
	p.observer(evt)
}
