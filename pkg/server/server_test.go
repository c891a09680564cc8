package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lunabot/pkg/config"
	"lunabot/pkg/dispatch"
)

func testServer() *Server {
	return NewServer(config.DefaultConfig(), func() Status {
		return Status{
			Uptime:    "1h 30m",
			UptimeSec: 5400,
			Language:  "en",
			Stats:     dispatch.StatsSnapshot{Messages: 42, Commands: 7},
			Time:      time.Now(),
		}
	})
}

func TestHandleHealth(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Stats.Messages != 42 || got.Stats.Commands != 7 || got.Language != "en" {
		t.Fatalf("status = %+v", got)
	}
}

func TestWebsocketFeedFirstPush(t *testing.T) {
	s := testServer()
	srv := httptest.NewServer(http.HandlerFunc(s.handleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Status
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.UptimeSec != 5400 {
		t.Fatalf("snapshot = %+v", got)
	}
}
