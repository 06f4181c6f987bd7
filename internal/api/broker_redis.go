package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"harborplan/internal/planner"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every instance
// behind a load balancer sees every run's events.
type RedisBroker struct {
	rdb  *redis.Client
	log  zerolog.Logger
	mu   sync.Mutex
	subs map[chan planner.Event]*redis.PubSub
}

func NewRedisBroker(ctx context.Context, url string, logger zerolog.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBroker{rdb: rdb, log: logger, subs: map[chan planner.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(runID string) chan planner.Event {
	ch := make(chan planner.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	// wait for the subscription confirmation so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn().Err(err).Str("run", runID).Msg("redis subscribe")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt planner.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; the reader goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(runID string, ch chan planner.Event) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(runID string, evt planner.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(runID), data).Err(); err != nil {
		b.log.Warn().Err(err).Str("run", runID).Msg("redis publish")
	}
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func (b *RedisBroker) chanName(runID string) string { return "harbor:run:" + runID }
