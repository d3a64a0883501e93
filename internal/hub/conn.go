package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// sendBuffer is how many events may wait for a slow client before the
	// connection is dropped.
	sendBuffer = 64
)

// Conn is one client connection in a group.
type Conn struct {
	ws       *websocket.Conn
	groupID  string
	memberID string
	send     chan []byte

	mu sync.Mutex
	// Until the snapshot is queued, events are held in pending so the
	// client never sees a delta before its sync.
	ready   bool
	pending [][]byte
	closed  bool
}

func newConn(ws *websocket.Conn, groupID, memberID string) *Conn {
	return &Conn{
		ws:       ws,
		groupID:  groupID,
		memberID: memberID,
		send:     make(chan []byte, sendBuffer+1),
	}
}

func (c *Conn) GroupID() string  { return c.groupID }
func (c *Conn) MemberID() string { return c.memberID }

// enqueue queues raw without blocking. It reports false only when the
// connection is open and its queue is full.
func (c *Conn) enqueue(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	if !c.ready {
		if len(c.pending) >= sendBuffer {
			return false
		}
		c.pending = append(c.pending, raw)
		return true
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// start queues the snapshot followed by everything held since registration.
func (c *Conn) start(snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.ready {
		return
	}
	c.send <- snapshot
	for _, raw := range c.pending {
		c.send <- raw
	}
	c.pending = nil
	c.ready = true
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.pending = nil
	close(c.send)
}

// writePump is the only writer of the websocket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
