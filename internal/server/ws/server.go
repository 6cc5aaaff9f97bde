// Package ws serves the change feed: a WebSocket per connected device that
// receives the replica changes made by the user's other devices.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/auth"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

const (
	EventsPath   = "/v1/events"
	writeTimeout = 5 * time.Second
)

// TokenVerifier checks a device access token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Subscriber hands out per-device event streams.
type Subscriber interface {
	Subscribe(userID, deviceID string) (<-chan models.ChangeEvent, func())
}

type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	verifier TokenVerifier
	hub      Subscriber
	logger   logging.Logger

	conns   map[*websocket.Conn]struct{}
	connsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(addr string, verifier TokenVerifier, hub Subscriber, logger logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		verifier: verifier,
		hub:      hub,
		logger:   logger.With("module", "ws"),
		conns:    make(map[*websocket.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler exposes the routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+EventsPath, s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info(s.ctx, "websocket server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(s.ctx, "websocket server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Run starts the server and stops it when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	s.cancel()

	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.conns, conn)
	}
	s.connsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info(context.Background(), "websocket server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verifier.Verify(accessToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	if !s.track(conn) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.untrack(conn)

	log := s.logger.With("user_id", claims.UserID, "device_id", claims.DeviceID)
	log.Debug(r.Context(), "device connected")

	events, unsubscribe := s.hub.Subscribe(claims.UserID, claims.DeviceID)
	defer unsubscribe()

	// clients only listen; CloseRead handles control frames and cancels on close
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			log.Debug(r.Context(), "device disconnected")
			return
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := s.write(ctx, conn, ev); err != nil {
				log.Warn(r.Context(), "event write failed", "error", err)
				return
			}
		}
	}
}

// accessToken reads the bearer token from the Authorization header. Clients
// that cannot set handshake headers may pass it as a query parameter.
func accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get(common.AccessTokenHeaderName)
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, ev models.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.connsMu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	s.connsMu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}
