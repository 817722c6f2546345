package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with several media
	// sections stays well below this.
	maxMessageSize = 64 * 1024

	// Outbound queue depth per connection.
	sendBuffer = 256
)

// Client is one websocket connection to the relay. A connection belongs to at
// most one room, either as its host or as a candidate (pending or bound).
type Client struct {
	// ID is the connection id handed to the participant and used as the
	// from/to address of relayed events.
	ID string

	hub  *Hub
	conn *websocket.Conn
	log  *zap.Logger

	// send is drained by WritePump. It is closed exactly once, by Close.
	send chan *protocol.Message

	mu     sync.Mutex
	closed bool
	roomID string
	role   protocol.Role
}

// NewClient wraps conn. conn may be nil when the client is only driven
// through Deliver, as the hub tests do.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		log:  hub.log.With(zap.String("conn", id)),
		send: make(chan *protocol.Message, sendBuffer),
	}
}

// Deliver queues msg for the write pump without blocking. It reports false
// when the connection is closed or its queue is full; delivery to a peer is
// best effort.
func (c *Client) Deliver(msg *protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send queue full, dropping message", zap.String("type", msg.Type))
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) membership() (string, protocol.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.role
}

func (c *Client) setMembership(roomID string, role protocol.Role) {
	c.mu.Lock()
	c.roomID, c.role = roomID, role
	c.mu.Unlock()
}

// clearMembership forgets the room only if the client still points at it.
func (c *Client) clearMembership(roomID string) {
	c.mu.Lock()
	if c.roomID == roomID {
		c.roomID, c.role = "", ""
	}
	c.mu.Unlock()
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. All reads on a
// connection happen here, and every message from this connection is handled
// on this goroutine, so per-connection order is preserved.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", zap.Error(err))
			}
			return
		}
		c.hub.Handle(c, &msg)
	}
}

// WritePump pumps messages from the send queue to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close was called.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn("write failed", zap.Error(err))
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
