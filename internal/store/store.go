package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"harborplan/internal/eval"
	"harborplan/internal/model"
	"harborplan/internal/opt"
)

// Store is the persistence interface used by the API server and the CLI.
// Boat and slot lists are ordered by id.
type Store interface {
	// Boats
	CreateBoat(ctx context.Context, b model.Boat) (model.Boat, error)
	GetBoat(ctx context.Context, id int64) (model.Boat, error)
	ListBoats(ctx context.Context) ([]model.Boat, error)
	// UpdateBoat replaces the stored boat with b.ID. Saved stays of the boat are
	// dropped when its width or stay interval changes.
	UpdateBoat(ctx context.Context, b model.Boat) (model.Boat, error)
	DeleteBoat(ctx context.Context, id int64) error

	// Slots
	CreateSlot(ctx context.Context, s model.Slot) (model.Slot, error)
	GetSlot(ctx context.Context, id int64) (model.Slot, error)
	ListSlots(ctx context.Context) ([]model.Slot, error)
	// UpdateSlot replaces the stored slot with s.ID. Saved stays on the slot are
	// dropped when its width, reservation or window changes.
	UpdateSlot(ctx context.Context, s model.Slot) (model.Slot, error)
	DeleteSlot(ctx context.Context, id int64) error

	// Solutions
	SaveSolution(ctx context.Context, strategy string, stays []model.Stay) (int, error)
	ListStays(ctx context.Context, strategy string, page Page) ([]model.Stay, error)

	// Metrics
	SavePlanMetrics(ctx context.Context, pm PlanMetrics) error
	ListPlanMetrics(ctx context.Context, runID, strategy string) ([]PlanMetrics, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)
	RetryWebhookDelivery(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrInvalidSolution = errors.New("invalid solution")
)

// Page selects a window of a list. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

func paginate[T any](items []T, p Page) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return items[:0]
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

// boatMoved reports whether an update can invalidate the boat's saved stays.
func boatMoved(old, cur model.Boat) bool {
	return old.Width != cur.Width || !old.Arrival.Equal(cur.Arrival) || !old.Departure.Equal(cur.Departure)
}

func slotChanged(old, cur model.Slot) bool {
	return old.MaxWidth != cur.MaxWidth || old.Reserved != cur.Reserved ||
		!sameTime(old.AvailableFrom, cur.AvailableFrom) || !sameTime(old.AvailableUntil, cur.AvailableUntil)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// PlanMetrics is the persisted evaluation of one strategy in one run.
type PlanMetrics struct {
	RunID     string       `json:"runId"`
	Strategy  string       `json:"strategy"`
	Rank      int          `json:"rank"`
	Score     float64      `json:"score"`
	ElapsedMs int64        `json:"elapsedMs"`
	Metrics   eval.Metrics `json:"metrics"`
	CreatedAt time.Time    `json:"createdAt"`
}

// PlanMetricsFrom flattens an evaluated result for storage.
func PlanMetricsFrom(runID string, r eval.Result, at time.Time) PlanMetrics {
	return PlanMetrics{
		RunID:     runID,
		Strategy:  r.Strategy,
		Rank:      r.Rank,
		Score:     r.Score,
		ElapsedMs: r.Elapsed.Milliseconds(),
		Metrics:   r.Metrics,
		CreatedAt: at.UTC(),
	}
}

// validateSolution replays stays against the stored boats and slots with the
// same feasibility rules the strategies use. Start and End default to the
// boat's stay and must match it when given.
func validateSolution(strategy string, stays []model.Stay, boats map[int64]model.Boat, slots map[int64]model.Slot) ([]model.Stay, error) {
	if strings.TrimSpace(strategy) == "" {
		return nil, fmt.Errorf("%w: strategy is required", ErrInvalidSolution)
	}
	ledger := opt.NewLedger(strategy, len(stays))
	for i, st := range stays {
		b, ok := boats[st.BoatID]
		if !ok {
			return nil, fmt.Errorf("%w: stay %d: unknown boat %d", ErrInvalidSolution, i, st.BoatID)
		}
		s, ok := slots[st.SlotID]
		if !ok {
			return nil, fmt.Errorf("%w: stay %d: unknown slot %d", ErrInvalidSolution, i, st.SlotID)
		}
		if (!st.Start.IsZero() && !st.Start.Equal(b.Arrival)) || (!st.End.IsZero() && !st.End.Equal(b.Departure)) {
			return nil, fmt.Errorf("%w: stay %d: interval differs from boat %d's stay", ErrInvalidSolution, i, b.ID)
		}
		if ledger.Placed(b.ID) {
			return nil, fmt.Errorf("%w: boat %d placed more than once", ErrInvalidSolution, b.ID)
		}
		if !ledger.Fits(s, b) {
			return nil, fmt.Errorf("%w: boat %d does not fit slot %d", ErrInvalidSolution, b.ID, s.ID)
		}
		ledger.Place(b, s, st.Detail)
	}
	return ledger.Stays(), nil
}
