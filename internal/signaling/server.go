package signaling

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pairlink/signaling-broker/internal/broker"
	"github.com/pairlink/signaling-broker/internal/ratelimit"
)

// Config wires the runtime dependencies for the WebSocket boundary.
type Config struct {
	Broker *broker.Broker
	Logger *slog.Logger

	// IdleTimeout drops connections that produce neither frames nor pongs;
	// PingInterval is the server heartbeat cadence and must be shorter.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	// Inbound hardening.
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// Server owns the `GET /ws` endpoint. One goroutine per connection runs the
// read loop; a second one drives the heartbeat.
type Server struct {
	broker *broker.Broker
	log    *slog.Logger

	idleTimeout  time.Duration
	pingInterval time.Duration

	maxMessageBytes      int64
	maxMessagesPerSecond int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		broker: cfg.Broker,
		log:    logger,

		idleTimeout:  cfg.IdleTimeout,
		pingInterval: cfg.PingInterval,

		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,

		upgrader: websocket.Upgrader{
			// Origin checks are enforced by the httpserver origin middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = 120 * time.Second
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = 64 * 1024
	}
	if s.maxMessagesPerSecond <= 0 {
		s.maxMessagesPerSecond = 50
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := uuid.NewString()
	cl := &wsClient{conn: conn}

	stopPing := make(chan struct{})
	go s.pingLoop(conn, stopPing)

	s.broker.Connect(clientID, cl)

	reason := s.readLoop(conn, cl, clientID)

	close(stopPing)
	s.broker.Disconnect(clientID, reason)
	_ = conn.Close()
}

// readLoop pumps inbound frames into the broker until the connection dies.
// It returns the disconnect reason handed to the broker.
func (s *Server) readLoop(conn *websocket.Conn, cl *wsClient, clientID string) string {
	conn.SetReadLimit(s.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	limiter := ratelimit.NewTokenBucket(
		ratelimit.RealClock{},
		int64(s.maxMessagesPerSecond),
		int64(s.maxMessagesPerSecond),
	)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return disconnectReason(err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		if !limiter.Allow(1) {
			cl.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return "rate limit exceeded"
		}
		if msgType != websocket.TextMessage {
			// Protocol noise; the contract is JSON text frames only.
			s.log.Debug("dropping non-text frame", "user_id", clientID)
			continue
		}

		msg, err := parseClientMessage(data)
		if err != nil {
			s.log.Debug("dropping malformed message", "user_id", clientID, "err", err)
			continue
		}

		switch msg.Event {
		case eventSignal:
			s.broker.Signal(clientID, msg.RoomID, msg.Data, msg.From)
		case eventNextPartner:
			s.broker.NextPartner(clientID)
		case eventClientError:
			s.log.Warn("client reported error", "user_id", clientID, "message", msg.Message)
		default:
			s.log.Debug("dropping unknown event", "user_id", clientID, "event", msg.Event)
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// disconnectReason maps a read error to the reason string surfaced in
// peer-disconnected events. Close frames carry the client's own wording.
func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return closeErr.Text
		}
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return "client disconnected"
		}
		return "transport error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ping timeout"
	}
	return "transport error"
}
