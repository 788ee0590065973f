// Package ws is the websocket front door: it upgrades HTTP requests,
// registers the resulting connections, and feeds every inbound frame into
// the router's admission path.
package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"voicehub/admission"
	"voicehub/contract"
	"voicehub/runtime"
)

type Server struct {
	log            *slog.Logger
	router         *runtime.Router
	registry       contract.IRegistry
	coordinator    contract.ICoordinator
	limiter        *admission.RateLimiter
	readLimit      int64
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	router *runtime.Router,
	registry contract.IRegistry,
	coordinator contract.ICoordinator,
	limiter *admission.RateLimiter,
	readLimit int64,
	allowedOrigins []string,
) *Server {
	s := &Server{
		log:            log,
		router:         router,
		registry:       registry,
		coordinator:    coordinator,
		limiter:        limiter,
		readLimit:      readLimit,
		allowedOrigins: allowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts same-origin requests and any explicitly allowed
// origin. An empty allowlist means open access (local and test setups).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	return lo.Contains(s.allowedOrigins, origin)
}

// Handle upgrades one request. Identity comes from the X-User-ID header
// (or user_id query for browser clients); the session is bound at connect
// time via the session_id query parameter.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	sessionID := r.URL.Query().Get("session_id")
	if userID == "" || sessionID == "" {
		http.Error(w, "user_id and session_id are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "err", err)
		return
	}

	connID := uuid.NewString()
	client := newClient(connID, conn, s.log)
	s.registry.Register(connID, sessionID, userID, client)
	s.log.Info("Connection opened", "conn", connID, "session", sessionID, "user", userID)

	go client.writePump()
	s.readPump(r, conn, client, connID, sessionID, userID)
}

// readPump blocks on the socket until the client goes away, then tears
// the connection down: unregister first so no new events route here,
// release the user's rate windows once their last connection is gone,
// then mark the participant disconnected (their state survives for a
// reconnect).
func (s *Server) readPump(r *http.Request, conn *websocket.Conn, client *Client, connID, sessionID, userID string) {
	defer func() {
		client.close()
		s.registry.Unregister(connID)
		if s.limiter != nil && !s.registry.HasUser(userID) {
			s.limiter.Reset(userID)
		}
		if err := s.coordinator.Disconnect(r.Context(), sessionID, userID); err != nil {
			s.log.Debug("Disconnect without membership", "session", sessionID, "user", userID)
		}
		s.log.Info("Connection closed", "conn", connID)
	}()

	conn.SetReadLimit(s.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Unexpected close", "conn", connID, "err", err)
			}
			return
		}
		if err := s.router.Submit(r.Context(), connID, raw); err != nil {
			s.log.Warn("Submit refused frame", "conn", connID, "err", err)
			return
		}
	}
}
