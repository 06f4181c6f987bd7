package eval

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"harborplan/internal/model"
)

var (
	ErrInvalidWeights = errors.New("invalid weights")
	ErrNoResults      = errors.New("no strategy results to evaluate")
)

const weightTolerance = 1e-6

// Weights of the composite score. They sum to 1 after Normalize.
type Weights struct {
	Placement        float64 `json:"placement" yaml:"placement" toml:"placement"`
	WidthUtilization float64 `json:"widthUtilization" yaml:"width_utilization" toml:"width_utilization"`
	TempSlots        float64 `json:"tempSlots" yaml:"temp_slots" toml:"temp_slots"`
}

func DefaultWeights() Weights {
	return Weights{Placement: 0.5, WidthUtilization: 0.3, TempSlots: 0.2}
}

// Normalize accepts weights on a 1.0 or a 100 scale and returns them on the
// 1.0 scale.
func (w Weights) Normalize() (Weights, error) {
	for _, v := range []float64{w.Placement, w.WidthUtilization, w.TempSlots} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, fmt.Errorf("%w: negative or non-finite weight", ErrInvalidWeights)
		}
	}
	sum := w.Placement + w.WidthUtilization + w.TempSlots
	switch {
	case math.Abs(sum-1) <= weightTolerance:
		return w, nil
	case math.Abs(sum-100) <= 100*weightTolerance:
		return Weights{Placement: w.Placement / 100, WidthUtilization: w.WidthUtilization / 100, TempSlots: w.TempSlots / 100}, nil
	}
	return Weights{}, fmt.Errorf("%w: weights sum to %g, want 1 or 100", ErrInvalidWeights, sum)
}

func (w Weights) Score(m Metrics) float64 {
	return w.Placement*m.PlacementRate + w.WidthUtilization*m.AverageWidthUtilization + w.TempSlots*m.TempSlotsUsage
}

// Outcome is what one completed strategy run produced.
type Outcome struct {
	Strategy    string        `json:"strategy"`
	Description string        `json:"description,omitempty"`
	Stays       []model.Stay  `json:"stays"`
	Elapsed     time.Duration `json:"elapsedNs"`
}

// Result is an evaluated outcome.
type Result struct {
	Outcome
	Unplaced []int64 `json:"unplaced"`
	Metrics  Metrics `json:"metrics"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

type Evaluator struct {
	weights Weights
}

func NewEvaluator(w Weights) (*Evaluator, error) {
	nw, err := w.Normalize()
	if err != nil {
		return nil, err
	}
	return &Evaluator{weights: nw}, nil
}

func (e *Evaluator) Weights() Weights { return e.weights }

func (e *Evaluator) Score(o Outcome, boats []model.Boat, slots []model.Slot) Result {
	m := Evaluate(o.Stays, boats, slots)
	placed := make(map[int64]struct{}, len(o.Stays))
	for _, st := range o.Stays {
		placed[st.BoatID] = struct{}{}
	}
	unplaced := []int64{}
	for _, b := range boats {
		if _, ok := placed[b.ID]; !ok {
			unplaced = append(unplaced, b.ID)
		}
	}
	return Result{Outcome: o, Unplaced: unplaced, Metrics: m, Score: e.weights.Score(m)}
}

// Rank evaluates every outcome and orders them by score, placement rate and
// width utilization (all descending), then by name.
func (e *Evaluator) Rank(outcomes []Outcome, boats []model.Boat, slots []model.Slot) []Result {
	out := make([]Result, len(outcomes))
	for i, o := range outcomes {
		out[i] = e.Score(o, boats, slots)
	}
	SortResults(out)
	return out
}

// SortResults orders results in place and assigns ranks starting at 1.
func SortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metrics.PlacementRate != b.Metrics.PlacementRate {
			return a.Metrics.PlacementRate > b.Metrics.PlacementRate
		}
		if a.Metrics.AverageWidthUtilization != b.Metrics.AverageWidthUtilization {
			return a.Metrics.AverageWidthUtilization > b.Metrics.AverageWidthUtilization
		}
		return a.Strategy < b.Strategy
	})
	for i := range rs {
		rs[i].Rank = i + 1
	}
}

// Best returns the top result and the full ranking.
func (e *Evaluator) Best(outcomes []Outcome, boats []model.Boat, slots []model.Slot) (Result, []Result, error) {
	if len(outcomes) == 0 {
		return Result{}, nil, ErrNoResults
	}
	ranking := e.Rank(outcomes, boats, slots)
	return ranking[0], ranking, nil
}
