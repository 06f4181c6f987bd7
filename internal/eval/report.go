package eval

import "time"

const DefaultTopN = 3

type ReportSummary struct {
	StrategiesEvaluated int       `json:"total_strategies_evaluated"`
	TotalBoats          int       `json:"total_boats"`
	TotalSlots          int       `json:"total_slots"`
	GeneratedAt         time.Time `json:"date_generated"`
	BestStrategy        string    `json:"best_strategy,omitempty"`
	BestScore           float64   `json:"best_score"`
}

type ComparisonRow struct {
	Strategy         string  `json:"strategy_name"`
	Rank             int     `json:"rank"`
	Score            float64 `json:"score"`
	PlacementRate    float64 `json:"placement_rate"`
	WidthUtilization float64 `json:"width_utilization"`
	OccupancyRate    float64 `json:"occupancy_rate"`
	ExecutionSeconds float64 `json:"execution_time"`
}

// Report is the comparative view handed to the narrative analysis collaborator.
type Report struct {
	Summary    ReportSummary   `json:"summary"`
	Weights    Weights         `json:"weights"`
	Comparison []ComparisonRow `json:"metrics_comparison"`
	Top        []Result        `json:"top_strategies"`
	Excluded   []string        `json:"excluded,omitempty"`
}

// Report builds a comparative report from a ranking produced by Rank.
func (e *Evaluator) Report(ranking []Result, boats, slots, topN int, now time.Time) Report {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if topN > len(ranking) {
		topN = len(ranking)
	}
	r := Report{
		Summary: ReportSummary{
			StrategiesEvaluated: len(ranking),
			TotalBoats:          boats,
			TotalSlots:          slots,
			GeneratedAt:         now.UTC(),
		},
		Weights:    e.weights,
		Comparison: make([]ComparisonRow, 0, len(ranking)),
		Top:        append([]Result(nil), ranking[:topN]...),
	}
	if len(ranking) > 0 {
		r.Summary.BestStrategy = ranking[0].Strategy
		r.Summary.BestScore = ranking[0].Score
	}
	for _, res := range ranking {
		r.Comparison = append(r.Comparison, ComparisonRow{
			Strategy:         res.Strategy,
			Rank:             res.Rank,
			Score:            res.Score,
			PlacementRate:    res.Metrics.PlacementRate,
			WidthUtilization: res.Metrics.AverageWidthUtilization,
			OccupancyRate:    res.Metrics.OccupancyRate,
			ExecutionSeconds: res.Elapsed.Seconds(),
		})
	}
	return r
}
