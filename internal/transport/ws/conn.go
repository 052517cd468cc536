package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/relay-service/internal/wire"
)

const writeTimeout = 5 * time.Second

// conn wraps a websocket connection as a wire.Sink. Writes are serialized
// through a one-slot semaphore because broadcasts and the ping loop send
// from different goroutines.
type conn struct {
	ws     *websocket.Conn
	sendMu chan struct{}
	closed chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:     ws,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *conn) Send(env wire.Envelope) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))

	return c.ws.WriteJSON(env)
}

func (c *conn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.ws.Close()
}
