package stream

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendQueueSize = 32

// Conn is one live client connection. The registry entry owns the send queue;
// the websocket itself is driven by the connection's read and write loops.
type Conn struct {
	id      string
	userID  string
	boardID string // empty until admitted to a board

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, userID string) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands data to the write loop without blocking. A full queue means
// the peer is not draining; the message is dropped and false returned.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close terminates the write loop and the underlying websocket. Safe to call
// from any goroutine, any number of times.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writeLoop drains the send queue onto the websocket until the connection
// closes. It is the only goroutine writing to the websocket.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}
