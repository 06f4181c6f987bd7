package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"harborplan/internal/metrics"
	"harborplan/internal/store"
)

const defaultMaxAttempts = 8

// Worker polls due deliveries, POSTs them and reschedules failures with
// exponential backoff until MaxAttempts is reached.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	log         zerolog.Logger
}

func NewWorker(s store.Store, maxAttempts int, logger zerolog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		log:         logger.With().Str("component", "webhook-worker").Logger(),
	}
}

// Run processes deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		w.log.Error().Err(err).Msg("fetch due deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, "failed").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
		if !success {
			lastErr = "HTTP " + strconv.Itoa(code)
		}
	}
	status := "delivered"
	switch {
	case success:
		_ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "failed"
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
		w.log.Warn().Str("delivery", it.ID).Str("event", it.EventType).Int("attempts", it.Attempts+1).Str("error", lastErr).Msg("webhook delivery failed permanently")
	default:
		status = "retry"
		next := time.Now().Add(nextBackoff(it.Attempts))
		_ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
		w.log.Debug().Str("delivery", it.ID).Time("next", next).Str("error", lastErr).Msg("webhook delivery rescheduled")
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
