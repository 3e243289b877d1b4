package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Send pings to client with this period. Must be less than pongWait.
	pingPeriod = 15 * time.Second
)

var errSendBufferFull = errors.New("subscriber send buffer full")

// subscriberConn adapts one websocket connection to the broker's sink
// contract. Send never blocks: events go into a buffered channel drained by
// the write pump, and a full buffer is a delivery failure that gets this
// subscriber dropped.
type subscriberConn struct {
	conn *websocket.Conn
	send chan model.Event

	once sync.Once
	done chan struct{}
}

func newSubscriberConn(conn *websocket.Conn, buffer int) *subscriberConn {
	return &subscriberConn{
		conn: conn,
		send: make(chan model.Event, buffer),
		done: make(chan struct{}),
	}
}

func (c *subscriberConn) Send(ev model.Event) error {
	select {
	case <-c.done:
		return model.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump, which closes the socket and unblocks the read
// loop. Safe to call more than once.
func (c *subscriberConn) Close() {
	c.once.Do(func() { close(c.done) })
}

// writePump drains outbound events and keeps the connection alive with
// pings. It owns all writes to the socket.
func (c *subscriberConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(encodeEvent(ev)); err != nil {
				return
			}
		}
	}
}
