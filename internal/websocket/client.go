package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"dm-chat-service/internal/auth"
	"dm-chat-service/pkg/response"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer, enough for a 4000 byte message
	maxMessageSize = 16 * 1024

	defaultSendBuffer = 256
)

// Client is one authenticated socket. Its identity is fixed at the
// handshake and the set of joined rooms is owned by the client itself.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity auth.Identity

	rooms map[string]struct{}
	mu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	closed int32
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	buffer := hub.sendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}

	return &Client{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, buffer),
		identity: identity,
		rooms:    make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) UserID() string {
	return c.identity.ID
}

func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (c *Client) addRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	return true
}

// takeRooms empties the joined set and returns what it held
func (c *Client) takeRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.rooms = make(map[string]struct{})
	return rooms
}

func (c *Client) InRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed. The write pump notices, sends a close
// frame and tears the connection down, which in turn ends the read pump.
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		c.hub.logger.Debug("Client marked as closed", "clientID", c.id, "userID", c.identity.ID)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket error", "clientID", c.id, "userID", c.identity.ID, "error", err)
			} else {
				c.hub.logger.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.identity.ID, "error", err)
			}
			return
		}
		if c.isClosed() {
			return
		}

		msg, err := DecodeMessage(raw)
		if err != nil {
			c.hub.logger.Debug("Failed to decode message", "clientID", c.id, "userID", c.identity.ID, "error", err)
			c.sendError(response.ErrCodeInvalidMessage)
			continue
		}

		c.hub.handleEvent(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.logger.Debug("WritePump finished", "clientID", c.id, "userID", c.identity.ID)
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Error writing message", "clientID", c.id, "userID", c.identity.ID, "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("Error sending ping", "clientID", c.id, "userID", c.identity.ID, "error", err)
				c.close()
				return
			}

		case <-c.ctx.Done():
			c.flush()
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// flush writes whatever is still queued before the socket goes away
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// SendMessage queues an envelope for the write pump
func (c *Client) SendMessage(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.sendRaw(data)
}

// sendRaw never blocks. A client that cannot keep up is disconnected.
func (c *Client) sendRaw(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.hub.logger.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.identity.ID)
		c.close()
		return ErrClientDisconnected
	}
}

func (c *Client) sendError(code string) {
	c.SendMessage(NewErrorMessage(code, response.Msg(code)))
}
