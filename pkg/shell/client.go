package shell

import (
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/lumasafe/guardian/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum inbound message size
	maxMessageSize = 32 * 1024
)

// client is one connected shell. Only writePump writes to the
// connection; everything else goes through the send channel.
type client struct {
	bridge *Bridge
	conn   *websocket.Conn
	send   chan []byte
}

func newClient(b *Bridge, conn *websocket.Conn) *client {
	return &client{
		bridge: b,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
}

// run pumps the connection until it closes.
func (c *client) run() {
	go c.writePump()
	c.readPump() // blocks until the connection drops
}

func (c *client) readPump() {
	defer func() {
		c.bridge.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.bridge.handleInbound(c, raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues one message for this client, dropping it if the
// client is too slow to keep up.
func (c *client) enqueue(msg *protocol.Message) bool {
	payload, err := msg.Bytes()
	if err != nil {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}
