package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"harborplan/internal/planner"
)

var streamHeartbeat = 15 * time.Second

// streamRun replays what the run has recorded so far, then forwards live
// events until a terminal event arrives, ctx ends or send fails.
func (s *Server) streamRun(ctx context.Context, runID string, send func(planner.Event) error, heartbeat func() error) error {
	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)

	// each (type, strategy) pair occurs once per run
	seen := map[string]struct{}{}
	hist, _, _ := s.jobs.history(runID)
	for _, e := range hist {
		seen[e.Type+"/"+e.Strategy] = struct{}{}
		if err := send(e); err != nil {
			return err
		}
		if e.Terminal() {
			return nil
		}
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			key := evt.Type + "/" + evt.Strategy
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if err := send(evt); err != nil {
				return err
			}
			if evt.Terminal() {
				return nil
			}
		case <-ticker.C:
			if heartbeat != nil {
				if err := heartbeat(); err != nil {
					return err
				}
			}
		}
	}
}

// JobEventsHandler streams a job's run events as server-sent events.
func (s *Server) JobEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	if _, ok := s.jobs.get(id); !ok {
		writeProblem(w, http.StatusNotFound, "Job not found", "", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(evt planner.Event) error {
		b, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	heartbeat := func() error {
		_, err := fmt.Fprintf(w, "event: heartbeat\ndata: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
		return err
	}
	_ = s.streamRun(r.Context(), id, send, heartbeat)
}

// WebSocket protocol, modelled on graphql-transport-ws: connection_init /
// connection_ack, subscribe {runId} answered by next messages and a final
// complete, ping / pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	RunID string `json:"runId"`
}

// RunsWSHandler handles /v1/runs/ws.
func (s *Server) RunsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		payload, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
	}

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	subs := map[string]context.CancelFunc{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	acked := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			if acked {
				continue
			}
			acked = true
			_ = write(wsMessage{Type: "connection_ack"})
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !acked {
				fail(msg.ID, "connection_init required")
				continue
			}
			var pl wsSubscribe
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || pl.RunID == "" || msg.ID == "" {
				fail(msg.ID, "id and runId required")
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			if prev, ok := subs[msg.ID]; ok {
				prev()
			}
			sctx, scancel := context.WithCancel(ctx)
			subs[msg.ID] = scancel
			wg.Add(1)
			go func(id, runID string) {
				defer wg.Done()
				err := s.streamRun(sctx, runID, func(evt planner.Event) error {
					payload, err := json.Marshal(evt)
					if err != nil {
						return err
					}
					return write(wsMessage{Type: "next", ID: id, Payload: payload})
				}, nil)
				if err == nil {
					_ = write(wsMessage{Type: "complete", ID: id})
				}
			}(msg.ID, pl.RunID)
		case "complete":
			if c, ok := subs[msg.ID]; ok {
				c()
				delete(subs, msg.ID)
			}
		default:
			fail(msg.ID, "unknown message type "+msg.Type)
		}
	}
}
