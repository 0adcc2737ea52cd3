// Package gateway pushes domain events to connected clients over websockets.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/usecase"
)

// Authenticator verifies the handshake credentials of a connecting client.
type Authenticator interface {
	Authenticate(ctx context.Context, h domain.Handshake) (usecase.AuthResult, error)
}

type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
	SendQueue    int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	return c
}

type Server struct {
	cfg       Config
	auth      Authenticator
	access    ports.ProjectAccessChecker
	publisher ports.EventPublisher
	registry  *Registry
	log       *slog.Logger
	now       func() time.Time

	// base outlives individual requests; Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a gateway. publisher carries presence to the mirror
// channel and may be nil.
func NewServer(cfg Config, auth Authenticator, access ports.ProjectAccessChecker, publisher ports.EventPublisher, registry *Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg.withDefaults(),
		auth:      auth,
		access:    access,
		publisher: publisher,
		registry:  registry,
		log:       log,
		now:       time.Now,
		base:      base,
		cancel:    cancel,
	}
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/ws", s.serveWS)
	return r
}

// Shutdown disconnects every client and waits for their goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":          true,
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
	})
}

// serveWS authenticates before the upgrade. A rejected handshake gets a
// plain 401 and never sees a websocket frame.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	c := newConn(uuid.NewString(), s.registry, s.cfg.SendQueue, s.log)
	c.transition(StateConnecting, StateAuthenticating)

	result, err := s.auth.Authenticate(r.Context(), httpapi.HandshakeFromRequest(r, true))
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if !errors.Is(err, domain.ErrUnauthorized) {
			s.log.Error("gateway handshake failed", "remote", r.RemoteAddr, "err", err)
		} else {
			s.log.Info("gateway handshake rejected", "remote", r.RemoteAddr, "err", err)
		}
		httpapi.WriteError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "unauthorized")
		return
	}
	c.identity = result.Identity()

	ws := websocket.Server{
		// Origin checks belong to the fronting proxy; credentials are verified above.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			c.ws = ws
			s.serveConn(c)
		},
	}
	ws.ServeHTTP(w, r)
}

func (s *Server) serveConn(c *conn) {
	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()
	defer c.close()

	c.log = s.log.With("conn_id", c.id, "tenant_id", c.identity.TenantID, "user_id", c.identity.UserID)
	c.onClose = func(*conn) { s.announce(domain.EventPresenceOffline, c.identity) }
	if !c.transition(StateAuthenticating, StateAuthenticated) {
		return
	}

	s.registry.Join(c, domain.TenantRoom(c.identity.TenantID))
	s.registry.Join(c, domain.UserRoom(c.identity.UserID))

	go c.writeLoop(ctx, s.cfg.PingInterval, s.cfg.WriteTimeout)

	rooms := make([]string, 0, 2)
	for _, key := range s.registry.Rooms(c) {
		rooms = append(rooms, string(key))
	}
	c.sendControl(frameWelcome, "", welcomePayload{
		ConnectionID: c.id,
		UserID:       c.identity.UserID,
		TenantID:     c.identity.TenantID,
		Rooms:        rooms,
	})
	s.announce(domain.EventPresenceOnline, c.identity)
	c.log.Debug("gateway connection authenticated")

	s.readLoop(ctx, c)
}

// readLoop handles inbound frames. Every frame extends the read deadline;
// silence past ping interval plus pong wait ends the connection.
func (s *Server) readLoop(ctx context.Context, c *conn) {
	idle := s.cfg.PingInterval + s.cfg.PongWait
	for {
		if err := c.ws.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return
		}
		var raw []byte
		if err := websocket.Message.Receive(c.ws, &raw); err != nil {
			c.log.Debug("gateway connection closed", "err", err)
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("", domain.CodeValidationFailed, "invalid frame")
			continue
		}
		if len(frame.Payload) > maxFramePayloadBytes {
			c.sendError(frame.RequestID, domain.CodeValidationFailed, "payload too large")
			continue
		}

		switch frame.Type {
		case framePong:
		case frameJoin:
			s.handleJoin(ctx, c, frame)
		case frameLeave:
			s.handleLeave(c, frame)
		default:
			c.sendError(frame.RequestID, domain.CodeValidationFailed, "unsupported frame type")
		}
	}
}

func parseRoomPayload(c *conn, frame controlFrame) (string, bool) {
	var payload roomPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		c.sendError(frame.RequestID, domain.CodeValidationFailed, "invalid room payload")
		return "", false
	}
	projectID := strings.TrimSpace(payload.ProjectID)
	if err := domain.ValidateID(projectID); err != nil {
		c.sendError(frame.RequestID, domain.CodeValidationFailed, "projectId is required")
		return "", false
	}
	return projectID, true
}

// handleJoin asks the access checker on every request; nothing is cached.
func (s *Server) handleJoin(ctx context.Context, c *conn, frame controlFrame) {
	projectID, ok := parseRoomPayload(c, frame)
	if !ok {
		return
	}

	allowed, err := s.access.HasProjectAccess(ctx, c.identity.TenantID, c.identity.UserID, projectID)
	if err != nil {
		code, ok := domain.CodeOf(err)
		if !ok {
			c.log.Error("gateway access check failed", "project_id", projectID, "err", err)
			c.sendError(frame.RequestID, "UNAVAILABLE", "access check unavailable")
			return
		}
		c.sendError(frame.RequestID, code, "room join rejected")
		return
	}
	if !allowed {
		c.sendError(frame.RequestID, domain.CodeAccessDenied, "no access to project")
		return
	}

	key := domain.ProjectRoom(projectID)
	if !s.registry.Join(c, key) {
		return
	}
	c.sendControl(frameJoined, frame.RequestID, roomResult{Room: string(key)})
}

func (s *Server) handleLeave(c *conn, frame controlFrame) {
	projectID, ok := parseRoomPayload(c, frame)
	if !ok {
		return
	}
	key := domain.ProjectRoom(projectID)
	s.registry.Leave(c, key)
	c.sendControl(frameLeft, frame.RequestID, roomResult{Room: string(key)})
}

// announce publishes presence to the mirror channel so every instance,
// including this one, delivers it through its relay.
func (s *Server) announce(t domain.EventType, id domain.Identity) {
	if s.publisher == nil {
		return
	}
	event, err := domain.NewEvent(id.Actor(), t, domain.PresencePayload{UserID: id.UserID}, s.now())
	if err != nil {
		s.log.Warn("build presence event", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, domain.BroadcastChannel, event, domain.BestEffort); err != nil {
		s.log.Warn("publish presence", "event_type", t, "err", err)
	}
}
