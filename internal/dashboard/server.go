// Package dashboard provides the read-only observation stream for UI
// consumers.
//
// The server broadcasts sync progress snapshots, scheduler triggers, and
// storage reports to connected WebSocket clients, and answers a pending-count
// query over plain HTTP. Everything here is display-only: nothing a client
// does can influence the engine.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/orchestrator"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/scheduler"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

// MessageType defines the type of a broadcast message.
type MessageType string

const (
	// MessageTypeProgress is an in-pass sync progress snapshot.
	MessageTypeProgress MessageType = "progress"

	// MessageTypeTrigger is a scheduler trigger notification.
	MessageTypeTrigger MessageType = "trigger"

	// MessageTypeStorage is a storage lifecycle report.
	MessageTypeStorage MessageType = "storage"
)

// Message is one broadcast frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Server manages WebSocket connections and broadcasts engine observations.
type Server struct {
	addr     string
	store    *store.Store
	listener net.Listener
	server   *http.Server
	logger   *synclog.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server. The store is used only for the
// pending-count query.
func NewServer(port int, st *store.Store, logger *synclog.Logger) *Server {
	if logger == nil {
		logger = synclog.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      fmt.Sprintf("127.0.0.1:%d", port),
		store:     st,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins listening. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/pending", s.handlePending)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", "addr", s.listener.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// PublishProgress broadcasts a sync progress snapshot.
func (s *Server) PublishProgress(p orchestrator.Progress) {
	s.publish(MessageTypeProgress, p)
}

// PublishTrigger broadcasts a scheduler trigger.
func (s *Server) PublishTrigger(t scheduler.Trigger) {
	s.publish(MessageTypeTrigger, map[string]any{
		"reason":      t.Reason,
		"class":       t.Class.String(),
		"batch_limit": t.BatchLimit,
	})
}

// PublishStorage broadcasts storage metrics.
func (s *Server) PublishStorage(severity string, metrics *store.Metrics) {
	s.publish(MessageTypeStorage, map[string]any{
		"severity": severity,
		"metrics":  metrics,
	})
}

func (s *Server) publish(typ MessageType, data any) {
	blob, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal dashboard message", "type", string(typ), "error", err)
		return
	}
	msg := Message{Type: typ, Timestamp: time.Now(), Data: blob}

	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("dashboard broadcast channel full; dropping message", "type", string(typ))
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal broadcast frame", "error", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug("dashboard client connected", "clients", count)
	go s.readLoop(conn)
}

// readLoop keeps the connection alive; client messages are ignored because
// the stream is observation-only.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	s.clientsMu.Unlock()
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.PendingCounts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(counts)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
