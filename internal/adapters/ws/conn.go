package ws

import (
	"errors"
	"sync"

	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection is one websocket client bound to one session. It satisfies
// core.Peer: writes go through a bounded send buffer drained by the write
// pump, decoded frames through a bounded inbox drained by the exec pump.
type Connection struct {
	id    string
	conn  *websocket.Conn
	send  chan core.Frame
	inbox chan protocol.ReceiveEvent

	mu     sync.RWMutex
	closed bool
}

func newConnection(sendBuffer, inboxBuffer int) *Connection {
	return &Connection{
		id:    uuid.NewString(),
		send:  make(chan core.Frame, sendBuffer),
		inbox: make(chan protocol.ReceiveEvent, inboxBuffer),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops outbound delivery. The write pump flushes what is buffered,
// says goodbye and closes the socket, which in turn ends the read pump.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Connection) enqueue(ev protocol.ReceiveEvent) bool {
	select {
	case c.inbox <- ev:
		return true
	default:
		return false
	}
}
