package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"harborplan/internal/model"
	"harborplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
	Next    *time.Time
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3, zerolog.Nop())
	w.HTTP = srv.Client()
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", EventPlanEvaluated, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if gotType != EventPlanEvaluated || !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("bad signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2, zerolog.Nop())
	w.HTTP = srv.Client()
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "", EventPlanEvaluated, srv.URL, "", []byte(`{}`))

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 || rs.marks[0].Next == nil {
		t.Fatalf("expected a scheduled retry, got %+v", rs.marks)
	}
	if err := rs.RetryWebhookDelivery(context.Background(), id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	w.processOnce(context.Background())
	if len(rs.fails) != 1 || rs.fails[0].LastErr != "HTTP 500" {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff")
	}
	if nextBackoff(50) != 1024*time.Second || nextBackoff(-1) != time.Second {
		t.Fatalf("backoff not clamped")
	}
}

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	p := NewPublisher(mem, zerolog.Nop())
	if n, err := p.Emit(ctx, EventPlanEvaluated, map[string]any{"best": "best_fit"}); err != nil || n != 0 {
		t.Fatalf("no subscribers: %d %v", n, err)
	}
	_, _ = mem.CreateSubscription(ctx, model.Subscription{URL: "http://a.local", Events: []string{EventPlanEvaluated}})
	_, _ = mem.CreateSubscription(ctx, model.Subscription{URL: "http://b.local", Events: []string{EventRunFailed}})
	n, err := p.Emit(ctx, EventPlanEvaluated, map[string]any{"best": "best_fit"})
	if err != nil || n != 1 {
		t.Fatalf("Emit: %d %v", n, err)
	}
	due, _ := mem.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a.local" {
		t.Fatalf("due: %+v", due)
	}
	var body map[string]any
	if err := json.Unmarshal(due[0].Payload, &body); err != nil || body["type"] != EventPlanEvaluated {
		t.Fatalf("payload: %s", due[0].Payload)
	}
}

func TestSignature(t *testing.T) {
	sig := SignHMAC("k", []byte("body"))
	if len(sig) != 64 || !VerifyHMAC("k", []byte("body"), sig) || VerifyHMAC("other", []byte("body"), sig) || VerifyHMAC("k", []byte("body"), "zz") {
		t.Fatalf("signature round trip failed")
	}
}
