package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/relay"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

type Server struct {
	upgrader websocket.Upgrader
	gw       *relay.Gateway

	pingEvery time.Duration
}

func NewServer(gw *relay.Gateway) *Server {
	return &Server{
		gw: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws?user_id=...&user_name=...
// Both query params are optional; presenting a user_id rebinds that identity
// to the new transport session.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	userName := strings.TrimSpace(q.Get("user_name"))

	wsc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newConn(wsc)
	sess := s.gw.Connect(c, userID, userName)
	slog.Info("session connected", "session", sess.ID, "user", sess.UserID)

	go s.pingLoop(c)
	s.readLoop(c, sess)

	s.gw.Disconnect(sess)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "session", sess.ID, "err", err)
	}
	slog.Info("session disconnected", "session", sess.ID, "user", sess.UserID)
}

func (s *Server) readLoop(c *conn, sess *domain.Session) {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(1 << 20)
	c.ws.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = c.Send(wire.Envelope{Type: wire.TypeError, Payload: wire.ErrorPayload{Message: "invalid json"}})
			continue
		}
		s.gw.Dispatch(sess, env)
	}
}

func (s *Server) pingLoop(c *conn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		case <-c.closed:
			return
		}
	}
}
