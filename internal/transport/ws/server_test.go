package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/relay-service/internal/registry"
	"github.com/cwrk-planet/relay-service/internal/relay"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

func newWSFixture(t *testing.T) string {
	t.Helper()
	gw := relay.NewGateway(registry.New(100, 50))
	gw.SeedRooms(map[string]string{"general": "General"})

	srv := httptest.NewServer(http.HandlerFunc(NewServer(gw).HandleWS))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wire.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readUntil skips unrelated broadcasts (directory updates and the like) until
// the wanted type shows up.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wire.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn)
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("no %s envelope before deadline", typ)
	return wire.Envelope{}
}

func send(t *testing.T, conn *websocket.Conn, env wire.Envelope) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.WriteJSON(env))
}

func TestHandshake_WelcomeThenDirectory(t *testing.T) {
	wsURL := newWSFixture(t)
	conn := dial(t, wsURL)

	env := readEnvelope(t, conn)
	require.Equal(t, wire.TypeWelcome, env.Type)
	var w wire.WelcomePayload
	require.NoError(t, wire.Decode(env.Payload, &w))
	require.NotEmpty(t, w.SessionID)
	require.NotEmpty(t, w.User.ID)

	env = readEnvelope(t, conn)
	require.Equal(t, wire.TypeRoomList, env.Type)
	var dir wire.RoomListPayload
	require.NoError(t, wire.Decode(env.Payload, &dir))
	require.Len(t, dir.Rooms, 1)
	require.Equal(t, "general", dir.Rooms[0].ID)
}

func TestHandshake_RebindsIdentity(t *testing.T) {
	wsURL := newWSFixture(t)
	conn := dial(t, wsURL+"?user_id=user-abc&user_name=Alice")

	env := readEnvelope(t, conn)
	require.Equal(t, wire.TypeWelcome, env.Type)
	var w wire.WelcomePayload
	require.NoError(t, wire.Decode(env.Payload, &w))
	require.Equal(t, "user-abc", w.User.ID)
	require.Equal(t, "Alice", w.User.Name)
}

func TestJoinAndChat_Roundtrip(t *testing.T) {
	wsURL := newWSFixture(t)
	alice := dial(t, wsURL+"?user_id=user-a&user_name=Alice")
	bob := dial(t, wsURL+"?user_id=user-b&user_name=Bob")

	send(t, alice, wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: "general"}})
	readUntil(t, alice, wire.TypeMessageHistory)

	send(t, bob, wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: "general"}})
	readUntil(t, bob, wire.TypeMessageHistory)
	readUntil(t, alice, wire.TypeUserJoined)

	send(t, alice, wire.Envelope{Type: wire.TypeChatMessage, Payload: wire.ChatSendPayload{Text: "hi", Tag: "tmp-1"}})

	// Both members, sender included, receive the canonical message.
	env := readUntil(t, alice, wire.TypeChatMessage)
	var echo wire.ChatBroadcastPayload
	require.NoError(t, wire.Decode(env.Payload, &echo))
	require.Equal(t, "hi", echo.Message.Text)
	require.Equal(t, "user-a", echo.Message.UserID)
	require.Equal(t, "general", echo.Message.RoomID)
	require.Equal(t, "tmp-1", echo.Tag)
	require.NotEmpty(t, echo.Message.ID)
	require.NotZero(t, echo.Message.Timestamp)

	env = readUntil(t, bob, wire.TypeChatMessage)
	var got wire.ChatBroadcastPayload
	require.NoError(t, wire.Decode(env.Payload, &got))
	require.Equal(t, echo.Message.ID, got.Message.ID)
}

func TestErrors_StayOnOriginatingSession(t *testing.T) {
	wsURL := newWSFixture(t)
	alice := dial(t, wsURL)
	readEnvelope(t, alice) // welcome
	readEnvelope(t, alice) // room_list

	send(t, alice, wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: "nope"}})
	env := readUntil(t, alice, wire.TypeError)
	var p wire.ErrorPayload
	require.NoError(t, wire.Decode(env.Payload, &p))
	require.Contains(t, p.Message, "not found")

	// The connection survives its own bad input.
	send(t, alice, wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: "general"}})
	readUntil(t, alice, wire.TypeMessageHistory)
}

func TestDisconnect_NotifiesRoom(t *testing.T) {
	wsURL := newWSFixture(t)
	alice := dial(t, wsURL+"?user_id=user-a")
	bob := dial(t, wsURL+"?user_id=user-b")

	send(t, alice, wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: "general"}})
	readUntil(t, alice, wire.TypeMessageHistory)
	send(t, bob, wire.Envelope{Type: wire.TypeJoinRoom, Payload: wire.JoinRoomPayload{RoomID: "general"}})
	readUntil(t, bob, wire.TypeMessageHistory)

	require.NoError(t, bob.Close())

	env := readUntil(t, alice, wire.TypeUserLeft)
	var pres wire.PresencePayload
	require.NoError(t, wire.Decode(env.Payload, &pres))
	require.Equal(t, "user-b", pres.User.ID)
	require.Equal(t, 1, pres.UserCount)
}
