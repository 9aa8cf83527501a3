package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/identity"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
	"github.com/Tanner253/ClubPengu-sub005/internal/router"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	outboundQueue    = 32
)

// Server upgrades HTTP connections and runs the per-session read/write loops
type Server struct {
	hub      *Hub
	router   *router.Router
	verifier identity.Verifier
	upgrader websocket.Upgrader
}

// NewServer creates a gateway server
func NewServer(hub *Hub, r *router.Router, verifier identity.Verifier) *Server {
	return &Server{
		hub:      hub,
		router:   r,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the WebSocket endpoint handler
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.serveSession(r.Context(), conn)
	}
}

// serveSession runs the hello handshake and then the session loops until the
// connection drops
func (s *Server) serveSession(ctx context.Context, conn *websocket.Conn) {
	sessionID, caller, ok := s.handshake(conn)
	if !ok {
		return
	}

	c := &client{
		sessionID: sessionID,
		wallet:    caller.WalletAddress,
		out:       make(chan []byte, outboundQueue),
	}
	s.hub.register(c)
	defer s.hub.unregister(sessionID)

	logger.InfoCtx(ctx, "session connected",
		zap.String("session_id", sessionID),
		zap.Bool("authenticated", caller.IsAuthenticated),
		zap.String("wallet", caller.WalletAddress),
	)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer goroutine drains the outbound queue
	go func() {
		for {
			select {
			case <-sessionCtx.Done():
				return
			case payload, open := <-c.out:
				if !open {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			cancel()
			break
		}
		if reply := s.router.Handle(sessionCtx, caller, sessionID, msg); reply != nil {
			select {
			case c.out <- reply:
			default:
				logger.WarnCtx(sessionCtx, "session outbound queue full, dropping reply",
					zap.String("session_id", sessionID))
			}
		}
	}

	logger.InfoCtx(ctx, "session disconnected", zap.String("session_id", sessionID))
}

// handshake expects a hello message first. A missing or invalid token yields
// an unauthenticated spectator session; identity never comes from any later
// request.
func (s *Server) handshake(conn *websocket.Conn) (string, domain.Identity, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", domain.Identity{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello"),
			time.Now().Add(time.Second))
		return "", domain.Identity{}, false
	}

	var hello protocol.HelloRequest
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", domain.Identity{}, false
	}

	var caller domain.Identity
	if hello.Token != "" {
		caller, err = s.verifier.Verify(hello.Token)
		if err != nil {
			logger.Warn("session token rejected", zap.Error(err))
			caller = domain.Identity{}
		}
	}

	sessionID := uuid.NewString()
	welcome := protocol.Welcome{
		Type:          protocol.TypeWelcome,
		SessionID:     sessionID,
		Authenticated: caller.IsAuthenticated,
		WalletAddress: caller.WalletAddress,
		Username:      caller.Username,
	}
	payload, err := json.Marshal(welcome)
	if err != nil {
		return "", domain.Identity{}, false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return "", domain.Identity{}, false
	}

	return sessionID, caller, true
}
