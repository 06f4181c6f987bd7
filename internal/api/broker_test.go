package api

import (
	"errors"
	"testing"
	"time"

	"harborplan/internal/planner"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "r1"
	ch := b.Subscribe(rid)

	evt := planner.Event{RunID: rid, Type: planner.EventStrategyCompleted, Strategy: "best_fit", Data: map[string]any{"placed": 3}}
	b.Publish(rid, evt)
	b.Publish("other", planner.Event{RunID: "other", Type: planner.EventRunStarted})

	select {
	case got := <-ch:
		if got.Type != evt.Type || got.Strategy != "best_fit" {
			t.Fatalf("got %+v, want %+v", got, evt)
		}
		if got.Data["placed"].(int) != 3 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-ch:
		t.Fatalf("received event for another run: %+v", got)
	default:
	}

	b.Unsubscribe(rid, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// second unsubscribe and publish after unsubscribe are no-ops
	b.Unsubscribe(rid, ch)
	b.Publish(rid, evt)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r")
	for i := 0; i < 100; i++ {
		b.Publish("r", planner.Event{RunID: "r", Type: planner.EventStrategyCompleted})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected a full buffer, got %d/%d", len(ch), cap(ch))
	}
	b.Unsubscribe("r", ch)
}

func TestJobRegistryHoldsTerminalEvent(t *testing.T) {
	r := newJobRegistry()
	r.create("run1")
	if !r.record(planner.Event{RunID: "run1", Type: planner.EventRunStarted}) {
		t.Fatal("run.started should publish immediately")
	}
	if j, _ := r.get("run1"); j.Status != JobRunning {
		t.Fatalf("status = %s, want running", j.Status)
	}
	if r.record(planner.Event{RunID: "run1", Type: planner.EventRunCompleted, Strategy: "best_fit"}) {
		t.Fatal("terminal event must be held until finish")
	}
	evt, ok := r.finish("run1", &runResponse{Result: &planner.Result{RunID: "run1"}}, nil)
	if !ok || evt.Type != planner.EventRunCompleted || evt.Strategy != "best_fit" {
		t.Fatalf("finish returned %+v %v", evt, ok)
	}
	hist, status, _ := r.history("run1")
	if status != JobCompleted || len(hist) != 2 || !hist[1].Terminal() {
		t.Fatalf("history %+v status %s", hist, status)
	}
	// events of unknown runs publish without being stored
	if !r.record(planner.Event{RunID: "elsewhere", Type: planner.EventRunCompleted}) {
		t.Fatal("unknown run should publish")
	}
}

func TestJobRegistryCreateReturnsSnapshot(t *testing.T) {
	r := newJobRegistry()
	job := r.create("run3")
	r.record(planner.Event{RunID: "run3", Type: planner.EventRunStarted})
	if job.Status != JobPending {
		t.Fatalf("snapshot changed after record: %s", job.Status)
	}
	if j, _ := r.get("run3"); j.Status != JobRunning {
		t.Fatalf("stored status = %s, want running", j.Status)
	}
}

func TestJobRegistrySyntheticFailure(t *testing.T) {
	r := newJobRegistry()
	r.create("run2")
	evt, ok := r.finish("run2", nil, errors.New("load boats: boom"))
	if !ok || evt.Type != planner.EventRunFailed || evt.Data["error"] != "load boats: boom" {
		t.Fatalf("finish returned %+v %v", evt, ok)
	}
	j, _ := r.get("run2")
	if j.Status != JobFailed || j.Error == "" {
		t.Fatalf("job: %+v", j)
	}
	if _, ok := r.finish("unknown", nil, nil); ok {
		t.Fatal("unknown job must not produce an event")
	}
}

func TestClientLimiter(t *testing.T) {
	if newClientLimiter(0, 5) != nil {
		t.Fatal("non-positive rps must disable limiting")
	}
	l := newClientLimiter(1, 2)
	now := time.Now()
	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("a", now); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, wait := l.allow("a", now)
	if ok || wait <= 0 {
		t.Fatalf("third request should wait, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.allow("b", now); !ok {
		t.Fatal("other clients keep their own bucket")
	}
	if ok, _ := l.allow("a", now.Add(time.Second)); !ok {
		t.Fatal("bucket should refill")
	}
}
