package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"harborplan/internal/model"
)

// Memory is an in-memory store used when no database backend is configured.
type Memory struct {
	mu       sync.Mutex
	boats    map[int64]model.Boat
	slots    map[int64]model.Slot
	nextBoat int64
	nextSlot int64
	stays    map[string][]model.Stay // strategy -> saved solution
	planMx   []PlanMetrics
	subs     []model.Subscription
	// Webhooks queue state
	deliveries map[string]*WebhookDelivery
	order      []string            // delivery ids in enqueue order
	dedup      map[string]struct{} // eventType|url|dedupKey
}

func NewMemory() *Memory {
	return &Memory{
		boats:      map[int64]model.Boat{},
		slots:      map[int64]model.Slot{},
		stays:      map[string][]model.Stay{},
		deliveries: map[string]*WebhookDelivery{},
		dedup:      map[string]struct{}{},
	}
}

func (m *Memory) CreateBoat(ctx context.Context, b model.Boat) (model.Boat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		b.ID = m.nextBoat + 1
	}
	if _, dup := m.boats[b.ID]; dup {
		return model.Boat{}, fmt.Errorf("%w: boat %d", ErrConflict, b.ID)
	}
	if b.ID > m.nextBoat {
		m.nextBoat = b.ID
	}
	b.Arrival, b.Departure = b.Arrival.UTC(), b.Departure.UTC()
	m.boats[b.ID] = b
	return b, nil
}

func (m *Memory) GetBoat(ctx context.Context, id int64) (model.Boat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boats[id]
	if !ok {
		return model.Boat{}, ErrNotFound
	}
	return b, nil
}

func (m *Memory) ListBoats(ctx context.Context) ([]model.Boat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Boat, 0, len(m.boats))
	for _, b := range m.boats {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateBoat(ctx context.Context, b model.Boat) (model.Boat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.boats[b.ID]
	if !ok {
		return model.Boat{}, ErrNotFound
	}
	b.Arrival, b.Departure = b.Arrival.UTC(), b.Departure.UTC()
	m.boats[b.ID] = b
	if boatMoved(old, b) {
		m.dropStays(func(st model.Stay) bool { return st.BoatID == b.ID })
	}
	return b, nil
}

func (m *Memory) DeleteBoat(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boats[id]; !ok {
		return ErrNotFound
	}
	delete(m.boats, id)
	m.dropStays(func(st model.Stay) bool { return st.BoatID == id })
	return nil
}

func (m *Memory) CreateSlot(ctx context.Context, s model.Slot) (model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextSlot + 1
	}
	if _, dup := m.slots[s.ID]; dup {
		return model.Slot{}, fmt.Errorf("%w: slot %d", ErrConflict, s.ID)
	}
	if s.ID > m.nextSlot {
		m.nextSlot = s.ID
	}
	m.slots[s.ID] = s
	return s, nil
}

func (m *Memory) GetSlot(ctx context.Context, id int64) (model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return model.Slot{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSlots(ctx context.Context) ([]model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Slot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateSlot(ctx context.Context, s model.Slot) (model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.slots[s.ID]
	if !ok {
		return model.Slot{}, ErrNotFound
	}
	m.slots[s.ID] = s
	if slotChanged(old, s) {
		m.dropStays(func(st model.Stay) bool { return st.SlotID == s.ID })
	}
	return s, nil
}

func (m *Memory) DeleteSlot(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return ErrNotFound
	}
	delete(m.slots, id)
	m.dropStays(func(st model.Stay) bool { return st.SlotID == id })
	return nil
}

// dropStays removes matching stays from every saved solution. Caller holds mu.
func (m *Memory) dropStays(match func(model.Stay) bool) {
	for name, list := range m.stays {
		m.stays[name] = slices.DeleteFunc(list, match)
	}
}

// SaveSolution replaces the stays saved under strategy. Nothing changes when
// validation fails.
func (m *Memory) SaveSolution(ctx context.Context, strategy string, stays []model.Stay) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	valid, err := validateSolution(strategy, stays, m.boats, m.slots)
	if err != nil {
		return 0, err
	}
	m.stays[strategy] = append([]model.Stay(nil), valid...)
	return len(valid), nil
}

// ListStays returns the stays saved under strategy, or every saved stay when
// strategy is empty, ordered by strategy name.
func (m *Memory) ListStays(ctx context.Context, strategy string, page Page) ([]model.Stay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Stay{}
	if strategy != "" {
		return paginate(append(out, m.stays[strategy]...), page), nil
	}
	names := make([]string, 0, len(m.stays))
	for n := range m.stays {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		out = append(out, m.stays[n]...)
	}
	return paginate(out, page), nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, pm PlanMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.planMx {
		if m.planMx[i].RunID == pm.RunID && m.planMx[i].Strategy == pm.Strategy {
			m.planMx[i] = pm
			return nil
		}
	}
	m.planMx = append(m.planMx, pm)
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, runID, strategy string) ([]PlanMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []PlanMetrics{}
	for _, pm := range m.planMx {
		if (runID == "" || pm.RunID == runID) && (strategy == "" || pm.Strategy == strategy) {
			out = append(out, pm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = uuid.New().String()
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		if slices.Contains(s.Events, eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription{}, m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.subs)
	m.subs = slices.DeleteFunc(m.subs, func(s model.Subscription) bool { return s.ID == id })
	if len(m.subs) == n {
		return ErrNotFound
	}
	return nil
}

// EnqueueWebhook returns an empty id when an identical delivery is already queued.
func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventType + "|" + url + "|" + computeDedupKey(payload)
	if _, dup := m.dedup[key]; dup {
		return "", nil
	}
	m.dedup[key] = struct{}{}
	now := time.Now().UTC()
	id := uuid.New().String()
	m.deliveries[id] = &WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: now, CreatedAt: now}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now().UTC()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []WebhookDelivery{}
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.deliveries[m.order[i]]
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = DeliveryRetry
	d.NextAttemptAt = time.Now().UTC()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }
