package client

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/relay-service/internal/registry"
	"github.com/cwrk-planet/relay-service/internal/relay"
	"github.com/cwrk-planet/relay-service/internal/transport/ws"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

// goodEndpoint runs a real relay server and returns its ws URL.
func goodEndpoint(t *testing.T) (string, *httptest.Server) {
	t.Helper()
	gw := relay.NewGateway(registry.New(100, 50))
	gw.SeedRooms(map[string]string{"general": "General"})
	srv := httptest.NewServer(http.HandlerFunc(ws.NewServer(gw).HandleWS))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv
}

// silentEndpoint accepts TCP connections and never answers the handshake, so
// only the attempt timeout can fail it.
func silentEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	return "ws://" + ln.Addr().String()
}

// deadEndpoint is an address that refuses connections outright.
func deadEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "ws://" + addr
}

func waitStatus(t *testing.T, events <-chan Event, want State) StatusEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if st, ok := ev.(StatusEvent); ok && st.State == want {
				return st
			}
		case <-deadline:
			t.Fatalf("no %s status before deadline", want)
		}
	}
}

func TestFailover_SkipsUnresponsiveEndpoint(t *testing.T) {
	e1 := silentEndpoint(t)
	e2, _ := goodEndpoint(t)

	m := NewManager([]string{e1, e2}, Options{Timeout: 300 * time.Millisecond})
	m.Start()

	st := waitStatus(t, m.Events(), StateConnected)
	require.Equal(t, e2, st.Endpoint, "connected to E2, not E1")
	require.NotEmpty(t, st.Session.SessionID)
	require.Equal(t, StateConnected, m.State())
	require.Equal(t, e2, m.Endpoint())
}

func TestFailover_ErrorAndTimeoutHandledIdentically(t *testing.T) {
	refused := deadEndpoint(t)
	silent := silentEndpoint(t)
	good, _ := goodEndpoint(t)

	m := NewManager([]string{refused, silent, good}, Options{Timeout: 300 * time.Millisecond})
	m.Start()

	st := waitStatus(t, m.Events(), StateConnected)
	require.Equal(t, good, st.Endpoint)
}

func TestExhausted_NoAutomaticRetry(t *testing.T) {
	m := NewManager([]string{deadEndpoint(t), deadEndpoint(t)}, Options{Timeout: 300 * time.Millisecond})
	m.Start()

	st := waitStatus(t, m.Events(), StateExhausted)
	require.ErrorIs(t, st.Err, ErrNoReachableEndpoint)

	// Still exhausted after a beat: nothing reconnects on its own.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, StateExhausted, m.State())
	require.ErrorIs(t, m.SendChat("hi", "t"), ErrConnectionDown)
}

func TestRetry_RestartsFromFirstCandidate(t *testing.T) {
	good, _ := goodEndpoint(t)
	m := NewManager([]string{deadEndpoint(t)}, Options{Timeout: 300 * time.Millisecond})
	m.Start()
	waitStatus(t, m.Events(), StateExhausted)

	// Swap in a reachable list the way a user-driven retry would see it.
	m.endpoints = []string{good}
	m.Retry()

	waitStatus(t, m.Events(), StateConnected)
}

func TestRetry_InvalidatesInFlightAttempt(t *testing.T) {
	silent := silentEndpoint(t)
	good, _ := goodEndpoint(t)

	m := NewManager([]string{silent, good}, Options{Timeout: 2 * time.Second})
	m.Start()
	time.Sleep(100 * time.Millisecond) // the first attempt is parked on E1
	m.Retry()

	waitStatus(t, m.Events(), StateConnected)

	// Exactly one live transport: the superseded attempt must never surface
	// a second Connected.
	select {
	case ev := <-m.Events():
		if st, ok := ev.(StatusEvent); ok {
			require.NotEqual(t, StateConnected, st.State, "stale attempt produced a second transport")
		}
	case <-time.After(2500 * time.Millisecond):
	}
	require.Equal(t, StateConnected, m.State())
}

func TestUnexpectedDisconnect_ReportedNotRetried(t *testing.T) {
	good, srv := goodEndpoint(t)
	m := NewManager([]string{good}, Options{Timeout: time.Second})
	m.Start()
	waitStatus(t, m.Events(), StateConnected)

	srv.CloseClientConnections()

	st := waitStatus(t, m.Events(), StateIdle)
	require.Error(t, st.Err, "abnormal close carries the read error")
	require.Equal(t, StateIdle, m.State())
	require.ErrorIs(t, m.JoinRoom("general"), ErrConnectionDown)
}

func TestReconnect_KeepsIdentity(t *testing.T) {
	good, _ := goodEndpoint(t)
	m := NewManager([]string{good}, Options{Timeout: time.Second, UserID: "user-abc", UserName: "Alice"})
	m.Start()
	st := waitStatus(t, m.Events(), StateConnected)
	require.Equal(t, "user-abc", st.Session.User.ID)
	firstSession := st.Session.SessionID

	m.Retry()
	st = waitStatus(t, m.Events(), StateConnected)
	require.Equal(t, "user-abc", st.Session.User.ID, "stable identity survives the reconnect")
	require.NotEqual(t, firstSession, st.Session.SessionID, "transport session id is fresh")
}

func TestCommands_RoundtripThroughServer(t *testing.T) {
	good, _ := goodEndpoint(t)
	m := NewManager([]string{good}, Options{Timeout: time.Second, UserID: "user-a", UserName: "Alice"})
	m.Start()
	waitStatus(t, m.Events(), StateConnected)

	require.NoError(t, m.JoinRoom("general"))
	require.NoError(t, m.SendChat("hello", "tmp-1"))

	deadline := time.After(5 * time.Second)
	for {
		var env wire.Envelope
		select {
		case ev := <-m.Events():
			se, ok := ev.(ServerEvent)
			if !ok {
				continue
			}
			env = se.Envelope
		case <-deadline:
			t.Fatal("no chat echo before deadline")
		}
		if env.Type != wire.TypeChatMessage {
			continue
		}
		var p wire.ChatBroadcastPayload
		require.NoError(t, wire.Decode(env.Payload, &p))
		require.Equal(t, "hello", p.Message.Text)
		require.Equal(t, "tmp-1", p.Tag)
		require.Equal(t, "user-a", p.Message.UserID)
		return
	}
}
