package api

import (
	"net/http"
	"time"

	"harborplan/internal/buildinfo"
)

// DebugInfo reports build metadata and a secret-free view of the config.
func (s *Server) DebugInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"environment":        s.cfg.Environment,
			"addr":               s.cfg.Addr(),
			"dbBackend":          s.cfg.DBBackend,
			"strategies":         s.Planner.Registry().Names(),
			"defaultStrategies":  s.cfg.Strategies,
			"weights":            s.Planner.Config().Weights,
			"strategyTimeout":    s.Planner.Config().StrategyTimeout.String(),
			"maxParallel":        s.Planner.Config().MaxParallel,
			"rateRps":            s.cfg.RateRPS,
			"rateBurst":          s.cfg.RateBurst,
			"webhookMaxAttempts": s.cfg.WebhookMaxAttempts,
			"hasRedis":           s.cfg.RedisURL != "",
			"hasAnalyzer":        s.cfg.AnalyzerURL != "",
			"authEnabled":        s.cfg.APIToken != "",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
