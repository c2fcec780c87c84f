// Package dashboard provides a real-time WebSocket view of sync activity.
//
// The server broadcasts pass and bucket progress to connected WebSocket
// clients and serves the Prometheus metrics endpoint, enabling monitoring
// of a device's sync daemon without touching its stores.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MessageType discriminates the events a pass emits over the wire.
type MessageType string

const (
	// MessageTypePassStarted is sent once per pass, before any merging.
	MessageTypePassStarted MessageType = "pass_started"

	// MessageTypeBucketSynced is sent after each single-bucket merge,
	// for pulls and pushes alike.
	MessageTypeBucketSynced MessageType = "bucket_synced"

	// MessageTypePassComplete carries the pass summary.
	MessageTypePassComplete MessageType = "pass_complete"

	// MessageTypeError is sent when a pass aborts; the pass's earlier
	// bucket_synced messages remain valid, since merged events stay put.
	MessageTypeError MessageType = "error"
)

// Message is one broadcast frame. Data holds the type-specific payload
// already marshaled, so the broadcast loop never touches domain types.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Server fans pass progress out to WebSocket subscribers and serves the
// metrics endpoint. It has no view of the stores; everything it knows
// arrives through Broadcast.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on. ":0" picks an ephemeral port; GetAddr reports
	// the one chosen.
	Addr string

	// Logger for server activity (default: the process logger)
	Logger *log.Logger
}

// DefaultConfig returns the defaults used for unset Config fields.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8080",
		Logger: log.Default(),
	}
}

// NewServer creates a dashboard server. Nothing listens until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      config.Addr,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start binds the listener and begins serving. It returns immediately;
// the serve and broadcast loops run until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s (ws at /ws, metrics at /metrics)", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard serve error: %v", err)
		}
	}()

	return nil
}

// Stop closes every subscriber connection and shuts the listener down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast queues a message for every subscriber. It never blocks the
// caller: a sync pass must not stall because a dashboard reader is slow,
// so when the queue is full the message is dropped instead.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: dashboard queue full, dropping message")
	}
}

// broadcastLoop drains the queue, serializing each message once and
// writing it to every subscriber.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen on the snapshot, without the lock held.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Dropping subscriber after failed write: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades the connection and registers the subscriber.
// The dashboard is a local monitoring surface, so any origin may connect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Subscriber connected (%d active)", clientCount)

	go s.readLoop(conn)
}

// readLoop discards inbound frames; subscribers only listen. Its real job
// is noticing the disconnect so the subscriber gets unregistered.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient unregisters and closes a subscriber. Idempotent: the read
// loop and a failed broadcast write may both report the same connection.
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Subscriber disconnected (%d active)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth reports liveness and the subscriber count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot serves a plain index pointing at the endpoints.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>aw-sync Dashboard</title>
</head>
<body>
    <h1>aw-sync Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Metrics: <a href="/metrics">/metrics</a></p>
    <p>Connect a WebSocket client to receive real-time sync pass updates.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the bound address once Start has run, or the configured
// one before that.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
