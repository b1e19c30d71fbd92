package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Requests carry whole modules.
	maxMessageSize = 4 << 20
)

var errClientClosed = errors.New("client closed")

// Client is one websocket connection
type Client struct {
	ID string

	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	lastHeartbeat time.Time
	heartbeatMu   sync.RWMutex

	closed atomic.Bool
}

// NewClient creates a client bound to hub
func NewClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)
	return &Client{
		ID:            id,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, 256),
		ctx:           ctx,
		cancel:        cancel,
		lastHeartbeat: time.Now(),
	}
}

// ReadPump reads frames and dispatches them until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.updateHeartbeat()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
		c.updateHeartbeat()

		if err := c.hub.HandleMessage(c.ctx, c, data); err != nil {
			c.hub.logger.Debug("request failed", zap.String("client", c.ID), zap.Error(err))
			c.SendError(err)
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Send queues a message for the client
func (c *Client) Send(message *Message) (err error) {
	// The hub may close the send channel concurrently
	defer func() {
		if r := recover(); r != nil {
			err = errClientClosed
		}
	}()

	if c.closed.Load() {
		return errClientClosed
	}
	data, err := marshalMessage(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return context.Canceled
	default:
		return errors.New("send channel full")
	}
}

// Reply answers request with a payload
func (c *Client) Reply(request *Message, messageType string, payload interface{}) error {
	return c.Send(&Message{Type: messageType, ID: request.ID, Payload: payload})
}

// SendError reports a failed request
func (c *Client) SendError(err error) {
	id := ""
	var re *requestError
	if errors.As(err, &re) {
		id = re.id
	}
	_ = c.Send(&Message{Type: "error", ID: id, Payload: errorPayload(err)})
}

// JoinRoom subscribes the client to room
func (c *Client) JoinRoom(room string) {
	c.hub.JoinRoom(c, room)
}

// LeaveRoom unsubscribes the client from room
func (c *Client) LeaveRoom(room string) {
	c.hub.LeaveRoom(c, room)
}

func (c *Client) updateHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastHeartbeat = time.Now()
}

// LastHeartbeat returns when the client was last heard from
func (c *Client) LastHeartbeat() time.Time {
	c.heartbeatMu.RLock()
	defer c.heartbeatMu.RUnlock()
	return c.lastHeartbeat
}
