package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"harborplan/internal/model"
	"harborplan/internal/store"
	"harborplan/internal/webhooks"
)

var knownEvents = map[string]struct{}{
	webhooks.EventPlanEvaluated: {},
	webhooks.EventRunFailed:     {},
	webhooks.EventSolutionSaved: {},
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid id", "id must be a positive integer", r.URL.Path)
		return 0, false
	}
	return id, true
}

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// pageParams reads offset and limit. limit defaults to defaultPageLimit and
// must lie in [1, maxPageLimit].
func pageParams(w http.ResponseWriter, r *http.Request) (store.Page, bool) {
	p := store.Page{Limit: defaultPageLimit}
	q := r.URL.Query()
	for key, dst := range map[string]*int{"offset": &p.Offset, "limit": &p.Limit} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid "+key, key+" must be a non-negative integer", r.URL.Path)
			return store.Page{}, false
		}
		*dst = n
	}
	if p.Limit < 1 || p.Limit > maxPageLimit {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be between 1 and "+strconv.Itoa(maxPageLimit), r.URL.Path)
		return store.Page{}, false
	}
	return p, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

// Boats

func (s *Server) ListBoatsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListBoats(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List boats failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) CreateBoatHandler(w http.ResponseWriter, r *http.Request) {
	var b model.Boat
	if !decodeBody(w, r, &b) {
		return
	}
	if err := b.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.Store.CreateBoat(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) GetBoatHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := s.Store.GetBoat(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateBoatHandler applies the fields present in the body to the stored boat
// and validates the result.
func (s *Server) UpdateBoatHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := s.Store.GetBoat(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !decodeBody(w, r, &b) {
		return
	}
	b.ID = id
	if err := b.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.Store.UpdateBoat(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) DeleteBoatHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Store.DeleteBoat(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Slots

func (s *Server) ListSlotsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListSlots(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List slots failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) CreateSlotHandler(w http.ResponseWriter, r *http.Request) {
	var sl model.Slot
	if !decodeBody(w, r, &sl) {
		return
	}
	if err := sl.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.Store.CreateSlot(r.Context(), sl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) GetSlotHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sl, err := s.Store.GetSlot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sl)
}

// UpdateSlotHandler applies the fields present in the body to the stored
// slot. A null window bound clears it.
func (s *Server) UpdateSlotHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sl, err := s.Store.GetSlot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !decodeBody(w, r, &sl) {
		return
	}
	sl.ID = id
	if err := sl.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.Store.UpdateSlot(r.Context(), sl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) DeleteSlotHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Store.DeleteSlot(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) StrategiesHandler(w http.ResponseWriter, r *http.Request) {
	type item struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Default     bool   `json:"default"`
	}
	defaults := map[string]bool{}
	for _, n := range s.cfg.Strategies {
		defaults[n] = true
	}
	all := s.Planner.Registry().All()
	items := make([]item, 0, len(all))
	for _, st := range all {
		items = append(items, item{Name: st.Name(), Description: st.Description(), Default: len(defaults) == 0 || defaults[st.Name()]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Solutions

type saveSolutionRequest struct {
	Strategy string       `json:"strategy"`
	Stays    []model.Stay `json:"stays"`
}

// SaveSolutionHandler replaces every stay saved under the strategy name.
func (s *Server) SaveSolutionHandler(w http.ResponseWriter, r *http.Request) {
	var req saveSolutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Strategy = strings.TrimSpace(req.Strategy)
	if req.Strategy == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid solution", "strategy is required", r.URL.Path)
		return
	}
	n, err := s.Store.SaveSolution(r.Context(), req.Strategy, req.Stays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.Pub.Emit(r.Context(), webhooks.EventSolutionSaved, map[string]any{"strategy": req.Strategy, "saved": n}); err != nil {
		s.log.Warn().Err(err).Msg("emit solution.saved")
	}
	writeJSON(w, http.StatusCreated, map[string]any{"strategy": req.Strategy, "saved": n})
}

func (s *Server) StaysHandler(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	items, err := s.Store.ListStays(r.Context(), r.URL.Query().Get("strategy"), page)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List stays failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "offset": page.Offset, "limit": page.Limit})
}

func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.Store.ListPlanMetrics(r.Context(), q.Get("runId"), q.Get("strategy"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plan metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Subscriptions

type subscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateSubscriptionRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
		return
	}
	sub, err := s.Store.CreateSubscription(r.Context(), model.Subscription{URL: req.URL, Events: req.Events, Secret: req.Secret})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListSubscriptions(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
		return
	}
	for i := range items {
		items[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteSubscription(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin

func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.DeliveryPending, store.DeliveryRetry, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid status", status, r.URL.Path)
		return
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), status, queryInt(r, "limit", 100))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.RetryWebhookDelivery(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// Health

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
