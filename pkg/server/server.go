// Package server exposes the status HTTP endpoints: a health probe, a
// JSON status snapshot, and a websocket feed that pushes the snapshot
// periodically.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lunabot/pkg/config"
	"lunabot/pkg/dispatch"
	"lunabot/pkg/logger"
)

const wsPushInterval = 5 * time.Second

// Status is the payload served on /status and pushed over /ws.
type Status struct {
	Uptime    string                 `json:"uptime"`
	UptimeSec int64                  `json:"uptime_seconds"`
	Language  string                 `json:"language"`
	Stats     dispatch.StatsSnapshot `json:"stats"`
	Time      time.Time              `json:"time"`
}

// StatusFunc builds the current snapshot; the server never reaches into
// the dispatcher directly.
type StatusFunc func() Status

type Server struct {
	server   *http.Server
	cfg      *config.Config
	status   StatusFunc
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewServer(cfg *config.Config, status StatusFunc) *Server {
	return &Server{
		cfg:    cfg,
		status: status,
		upgrader: websocket.Upgrader{
			// Status feed is read-only; allow any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	logger.InfoCF("server", "Starting status server", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("server", "Status server failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	logger.InfoC("server", "Stopping status server")

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		logger.WarnCF("server", "Failed to encode status", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}

// handleWS upgrades the connection and pushes a status snapshot every few
// seconds until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("server", "Websocket upgrade failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	logger.DebugCF("server", "Websocket client connected", map[string]interface{}{
		"remote": conn.RemoteAddr().String(),
	})

	go s.pushLoop(conn)
}

func (s *Server) pushLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Discard inbound frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.status()); err != nil {
		return
	}
	for range ticker.C {
		if err := conn.WriteJSON(s.status()); err != nil {
			return
		}
	}
}
