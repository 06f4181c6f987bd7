package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"harborplan/internal/store"
)

// Event types published by the server.
const (
	EventPlanEvaluated = "plan.evaluated"
	EventRunFailed     = "run.failed"
	EventSolutionSaved = "solution.saved"
)

type Publisher struct {
	Store store.Store
	log   zerolog.Logger
}

func NewPublisher(s store.Store, logger zerolog.Logger) *Publisher {
	return &Publisher{Store: s, log: logger.With().Str("component", "webhooks").Logger()}
}

// Emit enqueues one delivery per subscription to eventType and returns how
// many were queued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return 0, err
	}
	payload := map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, s := range subs {
		id, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
		if err != nil {
			p.log.Error().Err(err).Str("event", eventType).Str("subscription", s.ID).Msg("enqueue webhook")
			continue
		}
		if id != "" {
			queued++
		}
	}
	return queued, nil
}
