// Package main runs a demo WebSocket client that starts an asynchronous
// optimization and prints its run events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	token := os.Getenv("HARBOR_API_TOKEN")

	// Start an async run over whatever boats and slots the server holds
	body := []byte(`{"async":true}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("optimize: HTTP %d", resp.StatusCode)
	}
	var job struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", job.JobID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"runId": job.JobID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		switch m.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "complete":
			log.Printf("WS <- complete")
			return
		default:
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}
}
