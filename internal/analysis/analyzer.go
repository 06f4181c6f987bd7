// Package analysis hands comparative reports to a narrative analysis service
// and falls back to a deterministic summary when none is configured.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"harborplan/internal/eval"
)

var ErrAnalyzer = errors.New("analyzer failed")

type Recommendation struct {
	Source          string   `json:"source"`
	Summary         string   `json:"summary"`
	BestStrategy    string   `json:"bestStrategy,omitempty"`
	Recommendations []string `json:"recommendations"`
	Error           string   `json:"error,omitempty"`
}

type Analyzer interface {
	Analyze(ctx context.Context, report eval.Report) (Recommendation, error)
}

// HTTPAnalyzer POSTs the report as JSON and expects {summary, recommendations}.
type HTTPAnalyzer struct {
	URL    string
	Client *http.Client
}

func NewHTTPAnalyzer(url string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAnalyzer{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, report eval.Report) (Recommendation, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return Recommendation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return Recommendation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrAnalyzer, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Recommendation{}, fmt.Errorf("%w: HTTP %d", ErrAnalyzer, resp.StatusCode)
	}
	var out Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Recommendation{}, fmt.Errorf("%w: decode: %v", ErrAnalyzer, err)
	}
	out.Source = "http"
	if out.BestStrategy == "" {
		out.BestStrategy = report.Summary.BestStrategy
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	return out, nil
}

// Fallback summarizes the report without any external service.
type Fallback struct{}

func (Fallback) Analyze(_ context.Context, report eval.Report) (Recommendation, error) {
	rec := Recommendation{Source: "fallback", BestStrategy: report.Summary.BestStrategy, Recommendations: []string{}}
	if len(report.Top) == 0 {
		rec.Summary = "No strategy results to analyze."
		return rec, nil
	}
	best := report.Top[0]
	m := best.Metrics
	rec.Summary = fmt.Sprintf("%s placed %d of %d boats (%.0f%%) with score %.3f.",
		best.Strategy, m.BoatsPlaced, m.TotalBoats, m.PlacementRate*100, best.Score)
	if unplaced := m.TotalBoats - m.BoatsPlaced; unplaced > 0 {
		rec.Recommendations = append(rec.Recommendations,
			fmt.Sprintf("%d boats could not be placed; review slot widths and reservation windows.", unplaced))
	}
	if m.AverageWidthUtilization > 0 && m.AverageWidthUtilization < 0.7 {
		rec.Recommendations = append(rec.Recommendations,
			fmt.Sprintf("Average width utilization is %.0f%%; narrower slots would fit this fleet better.", m.AverageWidthUtilization*100))
	}
	if len(report.Top) > 1 {
		names := make([]string, 0, len(report.Top)-1)
		for _, r := range report.Top[1:] {
			names = append(names, r.Strategy)
		}
		rec.Recommendations = append(rec.Recommendations, "Runners-up: "+strings.Join(names, ", ")+".")
	}
	if len(report.Excluded) > 0 {
		rec.Recommendations = append(rec.Recommendations,
			"Excluded from ranking: "+strings.Join(report.Excluded, ", ")+".")
	}
	return rec, nil
}

// withFallback tries primary and answers from Fallback when it fails.
type withFallback struct {
	primary Analyzer
	log     zerolog.Logger
}

func (w withFallback) Analyze(ctx context.Context, report eval.Report) (Recommendation, error) {
	rec, err := w.primary.Analyze(ctx, report)
	if err == nil {
		return rec, nil
	}
	w.log.Warn().Err(err).Msg("narrative analysis unavailable, using fallback")
	rec, _ = Fallback{}.Analyze(ctx, report)
	rec.Error = err.Error()
	return rec, nil
}

// New returns the HTTP analyzer backed by Fallback, or Fallback alone when url
// is empty.
func New(url string, timeout time.Duration, logger zerolog.Logger) Analyzer {
	if strings.TrimSpace(url) == "" {
		return Fallback{}
	}
	return withFallback{primary: NewHTTPAnalyzer(url, timeout), log: logger}
}
