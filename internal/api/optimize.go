package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"harborplan/internal/analysis"
	"harborplan/internal/eval"
	"harborplan/internal/planner"
	"harborplan/internal/store"
	"harborplan/internal/webhooks"
)

type optimizeRequest struct {
	Strategies []string      `json:"strategies"`
	Weights    *eval.Weights `json:"weights"`
	TimeoutMs  int           `json:"timeoutMs"`
	TopN       int           `json:"topN"`
	Async      bool          `json:"async"`
}

type runResponse struct {
	*planner.Result
	Recommendation *analysis.Recommendation `json:"recommendation,omitempty"`
}

// OptimizeHandler handles POST /v1/optimize. Synchronous runs answer with the
// ranking; async runs answer 202 with a job to poll or stream.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	opts := s.runOptions(req)

	if !req.Async {
		resp, err := s.optimize(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// reject bad names and weights before accepting the job
	if _, err := s.Planner.Registry().Resolve(opts.Strategies); err != nil {
		writeError(w, r, err)
		return
	}
	if opts.Weights != nil {
		if _, err := opts.Weights.Normalize(); err != nil {
			writeError(w, r, err)
			return
		}
	}
	job := s.jobs.create(opts.RunID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		resp, err := s.optimize(s.baseCtx, opts)
		if evt, ok := s.jobs.finish(opts.RunID, resp, err); ok {
			s.Broker.Publish(opts.RunID, evt)
		}
	}()
	w.Header().Set("Location", "/v1/optimize/"+job.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  job.ID,
		"status": job.Status,
		"links": map[string]string{
			"self":   "/v1/optimize/" + job.ID,
			"events": "/v1/optimize/" + job.ID + "/events",
		},
	})
}

func (s *Server) runOptions(req optimizeRequest) planner.Options {
	names := req.Strategies
	if len(names) == 0 {
		names = s.cfg.Strategies
	}
	return planner.Options{
		Strategies: names,
		Weights:    req.Weights,
		Timeout:    time.Duration(req.TimeoutMs) * time.Millisecond,
		TopN:       req.TopN,
		RunID:      uuid.NewString(),
	}
}

// optimize runs the planner over the stored snapshot and performs the
// post-run hand-offs: plan metrics, the plan.evaluated webhook and the
// narrative recommendation.
func (s *Server) optimize(ctx context.Context, opts planner.Options) (*runResponse, error) {
	res, err := s.Planner.RunWith(ctx, s.Store, opts)
	if err != nil {
		s.emitRunFailed(opts.RunID, err)
		return nil, err
	}
	resp := &runResponse{Result: res}
	now := time.Now().UTC()
	metrics := make(map[string]map[string]any, len(res.Ranking))
	for _, r := range res.Ranking {
		metrics[r.Strategy] = r.Metrics.Map()
		if err := s.Store.SavePlanMetrics(ctx, store.PlanMetricsFrom(res.RunID, r, now)); err != nil {
			s.log.Error().Err(err).Str("run", res.RunID).Str("strategy", r.Strategy).Msg("save plan metrics")
		}
	}
	if _, err := s.Pub.Emit(ctx, webhooks.EventPlanEvaluated, map[string]any{
		"runId":    res.RunID,
		"best":     res.Best.Strategy,
		"score":    res.Best.Score,
		"excluded": res.Excluded,
		"report":   res.Report,
		"metrics":  metrics,
	}); err != nil {
		s.log.Warn().Err(err).Str("run", res.RunID).Msg("emit plan.evaluated")
	}
	rec, err := s.Analyzer.Analyze(ctx, res.Report)
	if err != nil {
		s.log.Warn().Err(err).Str("run", res.RunID).Msg("narrative analysis")
	} else {
		resp.Recommendation = &rec
	}
	return resp, nil
}

func (s *Server) emitRunFailed(runID string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	// the caller's context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, _ := errorStatus(err)
	if _, perr := s.Pub.Emit(ctx, webhooks.EventRunFailed, map[string]any{"runId": runID, "error": err.Error(), "status": status}); perr != nil {
		s.log.Warn().Err(perr).Str("run", runID).Msg("emit run.failed")
	}
}

func (s *Server) JobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.get(chi.URLParam(r, "jobId"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "Job not found", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
