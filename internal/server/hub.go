package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub tracks connected clients and the rooms they subscribed to. A room is
// named after the watched file whose graph updates it receives.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	register      chan *Client
	unregister    chan *Client
	roomBroadcast chan *roomMessage

	handlers   map[string]MessageHandler
	handlersMu sync.RWMutex

	logger *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Message is one websocket frame. ID correlates a reply with its request.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload interface{}     `json:"-"`
}

type roomMessage struct {
	room    string
	message *Message
}

// MessageHandler handles one incoming message type
type MessageHandler func(ctx context.Context, client *Client, message *Message) error

// NewHub creates a hub that stops when ctx is done
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:       make(map[*Client]bool),
		rooms:         make(map[string]map[*Client]bool),
		register:      make(chan *Client, 256),
		unregister:    make(chan *Client, 256),
		roomBroadcast: make(chan *roomMessage, 1024),
		handlers:      make(map[string]MessageHandler),
		logger:        logger,
		ctx:           hubCtx,
		cancel:        cancel,
	}
}

// RegisterHandler registers the handler for a message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[messageType] = handler
}

// Start runs the event loop in a new goroutine. Shutdown waits for it.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

// run is the hub's event loop
func (h *Hub) run() {
	defer h.wg.Done()

	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.cleanup()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Debug("client registered", zap.String("client", client.ID), zap.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.roomBroadcast:
			h.broadcastToRoom(msg.room, msg.message)

		case <-cleanupTicker.C:
			h.cleanupStaleConnections()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closed.Store(true)
		close(client.send)
	}
	h.clientsMu.Unlock()

	h.roomsMu.Lock()
	for room, clients := range h.rooms {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.roomsMu.Unlock()

	h.logger.Debug("client unregistered", zap.String("client", client.ID), zap.Int("total", h.ClientCount()))
}

func (h *Hub) broadcastToRoom(room string, message *Message) {
	data, err := marshalMessage(message)
	if err != nil {
		h.logger.Error("marshaling broadcast failed", zap.String("room", room), zap.Error(err))
		return
	}

	h.roomsMu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		members = append(members, client)
	}
	h.roomsMu.RUnlock()

	for _, client := range members {
		if client.closed.Load() {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("send channel full, dropping update", zap.String("client", client.ID), zap.String("room", room))
		}
	}
}

// BroadcastToRoom queues a message for every subscriber of room
func (h *Hub) BroadcastToRoom(room string, message *Message) {
	select {
	case h.roomBroadcast <- &roomMessage{room: room, message: message}:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("broadcast queue full, update dropped", zap.String("room", room))
	}
}

// JoinRoom subscribes client to room
func (h *Hub) JoinRoom(client *Client, room string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
}

// LeaveRoom unsubscribes client from room
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize returns the number of subscribers of room
func (h *Hub) RoomSize(room string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// HandleMessage decodes a frame and dispatches it to its handler. Unknown
// message types are reported back to the client.
func (h *Hub) HandleMessage(ctx context.Context, client *Client, data []byte) error {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return &requestError{message: "invalid message: " + err.Error()}
	}

	h.handlersMu.RLock()
	handler, ok := h.handlers[message.Type]
	h.handlersMu.RUnlock()
	if !ok {
		return &requestError{id: message.ID, message: "unknown message type: " + message.Type}
	}

	if err := handler(ctx, client, &message); err != nil {
		return withID(err, message.ID)
	}
	return nil
}

// cleanup closes every connection
func (h *Hub) cleanup() {
	h.logger.Debug("hub shutting down", zap.Int("clients", h.ClientCount()))

	h.clientsMu.Lock()
	for client := range h.clients {
		client.closed.Store(true)
		if client.conn != nil {
			client.conn.Close()
		}
	}
	h.clients = make(map[*Client]bool)
	h.clientsMu.Unlock()

	h.roomsMu.Lock()
	h.rooms = make(map[string]map[*Client]bool)
	h.roomsMu.Unlock()
}

// cleanupStaleConnections drops clients without a recent heartbeat
func (h *Hub) cleanupStaleConnections() {
	h.clientsMu.RLock()
	stale := make([]*Client, 0)
	for client := range h.clients {
		if time.Since(client.LastHeartbeat()) > 90*time.Second {
			stale = append(stale, client)
		}
	}
	h.clientsMu.RUnlock()

	for _, client := range stale {
		h.logger.Debug("removing stale client", zap.String("client", client.ID))
		h.unregister <- client
	}
}

// Shutdown stops the event loop and waits for it to exit
func (h *Hub) Shutdown() {
	h.cancel()
	h.wg.Wait()
}
