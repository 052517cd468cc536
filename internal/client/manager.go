// Package client is the connection side of the relay: a connection manager
// that walks an ordered endpoint list with timeout-driven failover, and an
// optimistic echo reconciler that merges locally-echoed messages with the
// server-confirmed ones.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/relay-service/internal/wire"
)

const defaultTimeout = 8 * time.Second

type Options struct {
	Timeout  time.Duration // per-attempt connect timeout, default 8s
	UserID   string        // stable identity to rebind, optional
	UserName string
	EventBuf int // event channel capacity, default 256
}

// Manager drives the failover state machine Idle -> Connecting(i) ->
// Connected | Exhausted over the ordered candidate list. A generation counter
// invalidates every callback of an attempt that a manual Retry or Disconnect
// has superseded, so two live transports can never coexist.
type Manager struct {
	endpoints []string
	timeout   time.Duration

	mu       sync.Mutex
	gen      int
	state    State
	conn     *websocket.Conn
	endpoint string
	welcome  wire.WelcomePayload
	userID   string
	userName string

	sendMu sync.Mutex // serializes writes on the active transport

	events chan Event
}

func NewManager(endpoints []string, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.EventBuf <= 0 {
		opts.EventBuf = 256
	}
	return &Manager{
		endpoints: endpoints,
		timeout:   opts.Timeout,
		userID:    opts.UserID,
		userName:  opts.UserName,
		events:    make(chan Event, opts.EventBuf),
	}
}

// Events is the stream of status changes and decoded server envelopes.
func (m *Manager) Events() <-chan Event { return m.events }

// Start begins connecting at candidate 0.
func (m *Manager) Start() {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	go m.run(gen)
}

// Retry tears down any current or in-flight attempt and restarts from
// candidate 0. Reconnection after an unexpected disconnect is never
// automatic; this is the only way back.
func (m *Manager) Retry() {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	conn := m.conn
	m.conn = nil
	m.state = StateIdle
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	go m.run(gen)
}

// Disconnect tears down the active transport, if any.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	conn := m.conn
	m.conn = nil
	wasConnected := m.state == StateConnected
	m.state = StateIdle
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasConnected {
		m.emit(StatusEvent{State: StateIdle})
	}
}

func (m *Manager) run(gen int) {
	for _, endpoint := range m.endpoints {
		if m.stale(gen) {
			return
		}
		m.setConnecting(gen, endpoint)

		conn, welcome, err := m.attempt(endpoint)
		if err != nil {
			// Timeout and explicit error drive failover identically.
			slog.Debug("connect attempt failed", "endpoint", endpoint, "err", err)
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			_ = conn.Close() // a manual retry won the race
			return
		}
		m.conn = conn
		m.state = StateConnected
		m.endpoint = endpoint
		m.welcome = welcome
		m.userID = welcome.User.ID // rebind the same identity next time
		m.userName = welcome.User.Name
		m.mu.Unlock()

		m.emit(StatusEvent{State: StateConnected, Endpoint: endpoint, Session: welcome})
		go m.readLoop(gen, conn)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateExhausted
	m.mu.Unlock()
	m.emit(StatusEvent{State: StateExhausted, Err: ErrNoReachableEndpoint})
}

// attempt opens one transport and waits for the server's welcome, all within
// the attempt timeout. The welcome carries the assigned session identity.
func (m *Manager) attempt(endpoint string) (*websocket.Conn, wire.WelcomePayload, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, wire.WelcomePayload{}, err
	}
	q := u.Query()
	m.mu.Lock()
	if m.userID != "" {
		q.Set("user_id", m.userID)
	}
	if m.userName != "" {
		q.Set("user_name", m.userName)
	}
	m.mu.Unlock()
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %s", ErrConnectTimeout, endpoint)
		}
		return nil, wire.WelcomePayload{}, err
	}

	conn.SetReadDeadline(time.Now().Add(m.timeout))
	var env wire.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		_ = conn.Close()
		return nil, wire.WelcomePayload{}, err
	}
	if env.Type != wire.TypeWelcome {
		_ = conn.Close()
		return nil, wire.WelcomePayload{}, errors.New("expected welcome, got " + env.Type)
	}
	var welcome wire.WelcomePayload
	if err := wire.Decode(env.Payload, &welcome); err != nil {
		_ = conn.Close()
		return nil, wire.WelcomePayload{}, err
	}
	conn.SetReadDeadline(time.Time{})

	return conn, welcome, nil
}

func (m *Manager) readLoop(gen int, conn *websocket.Conn) {
	var readErr error
	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			readErr = err
			break
		}
		if m.stale(gen) {
			return
		}
		m.emit(ServerEvent{Envelope: env})
	}

	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		m.mu.Unlock()
		return // superseded by retry/disconnect, which already reported
	}
	m.conn = nil
	m.state = StateIdle
	endpoint := m.endpoint
	m.mu.Unlock()

	_ = conn.Close()
	m.emit(StatusEvent{State: StateIdle, Endpoint: endpoint, Err: readErr})
}

func (m *Manager) setConnecting(gen int, endpoint string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.endpoint = endpoint
	m.mu.Unlock()
	m.emit(StatusEvent{State: StateConnecting, Endpoint: endpoint})
}

func (m *Manager) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

func (m *Manager) emit(ev Event) {
	m.events <- ev
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool { return m.State() == StateConnected }

func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.welcome.SessionID
}

func (m *Manager) User() wire.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.welcome.User
}

func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// --- commands ---

func (m *Manager) JoinRoom(roomID string) error {
	return m.send(wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: roomID}})
}

func (m *Manager) LeaveRoom(roomID string) error {
	return m.send(wire.Envelope{Type: wire.TypeLeaveRoom, Payload: wire.LeaveRoomPayload{RoomID: roomID}})
}

func (m *Manager) CreateRoom(roomID, name string) error {
	return m.send(wire.Envelope{Type: wire.TypeCreateRoom, Payload: wire.CreateRoomPayload{RoomID: roomID, RoomName: name}})
}

// SendChat issues one chat message; tag is the sender's correlation token,
// echoed back by the relay inside the broadcast.
func (m *Manager) SendChat(text, tag string) error {
	return m.send(wire.Envelope{Type: wire.TypeChatMessage, Payload: wire.ChatSendPayload{Text: text, Tag: tag}})
}

func (m *Manager) ClearChat() error {
	return m.send(wire.Envelope{Type: wire.TypeClearChat})
}

func (m *Manager) GetRooms() error {
	return m.send(wire.Envelope{Type: wire.TypeGetRooms})
}

func (m *Manager) GetRoomUsers(roomID string) error {
	return m.send(wire.Envelope{Type: wire.TypeGetRoomUsers, Payload: wire.JoinRoomPayload{RoomID: roomID}})
}

// Signal sends one opaque signaling envelope. to is a user id or "all".
func (m *Manager) Signal(eventType, to string, payload map[string]any) error {
	fwd := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fwd[k] = v
	}
	fwd["to"] = to
	return m.send(wire.Envelope{Type: eventType, Payload: fwd})
}

func (m *Manager) send(env wire.Envelope) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrConnectionDown
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(env)
}
