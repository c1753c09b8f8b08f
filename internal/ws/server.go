package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roomrelay/backend/internal/broadcast"
	"roomrelay/backend/internal/hub"
	"roomrelay/backend/internal/metrics"
	"roomrelay/backend/internal/session"
)

// Options tune every connection accepted by a Server.
type Options struct {
	MaxMessageSize    int64
	RateLimitBurst    int
	RateLimitInterval time.Duration
	AllowedOrigins    []string
	SendBuffer        int
}

// Server upgrades HTTP requests to websockets and runs one session per
// connection.
type Server struct {
	router   *broadcast.Router
	hub      *hub.Hub
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewServer(router *broadcast.Router, h *hub.Hub, m *metrics.Metrics, log *slog.Logger, opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	s := &Server{
		router:  router,
		hub:     h,
		metrics: m,
		log:     log,
		opts:    opts,
		conns:   make(map[string]*websocket.Conn),
	}
	origins := newOriginPolicy(opts.AllowedOrigins, log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}
	return s
}

// ServeHTTP blocks for the lifetime of the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Websocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}

	connID := uuid.NewString()
	log := s.log.With("conn", connID, "addr", r.RemoteAddr)
	send := make(hub.Client, s.opts.SendBuffer)
	c := &client{
		conn:    conn,
		send:    send,
		session: session.New(connID, send, s.router, s.hub, s.log),
		hub:     s.hub,
		limiter: newRateLimiter(s.opts.RateLimitBurst, s.opts.RateLimitInterval, time.Now),
		log:     log,
	}

	s.track(connID, conn)
	s.metrics.ConnectionOpened()
	log.Info("Client connected")
	defer func() {
		s.untrack(connID)
		s.metrics.ConnectionClosed()
		log.Info("Client disconnected")
	}()

	go c.writePump()
	// The request context ends with ServeHTTP; sessions must finish their
	// cleanup even when the peer is already gone.
	c.readPump(context.WithoutCancel(r.Context()))
}

// Shutdown sends a close frame to every open connection. Their read pumps
// then end and disconnect the sessions.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	for id, conn := range s.conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			s.log.Debug("Unable to send close frame", "conn", id, "error", err)
		}
		_ = conn.Close()
	}
	s.log.Info("Websocket connections closed", "count", len(s.conns))
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(id string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = conn
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}
