package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dm-chat-service/internal/auth"
	"dm-chat-service/internal/models"
	"dm-chat-service/internal/room"
	"dm-chat-service/internal/services"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var ErrClientDisconnected = errors.New("client disconnected")

const (
	roomLockStripes = 64

	// Storage work outlives the socket that asked for it
	storageTimeout  = 10 * time.Second
	presenceTimeout = 2 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
)

// ChatStore appends to and reads from the per-room message log
type ChatStore interface {
	Append(ctx context.Context, roomID, senderID, content string) (*models.Message, error)
	History(ctx context.Context, roomID string) ([]models.Message, error)
}

// DirectoryQueue receives identities seen at the handshake
type DirectoryQueue interface {
	Enqueue(id, email string) bool
}

type Presence interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// RoomRelay fans room traffic out to every instance of the service
type RoomRelay interface {
	PublishRoomMessage(ctx context.Context, roomID string, payload []byte) error
	SubscribeRooms(ctx context.Context) (*redis.PubSub, error)
}

type EventSink interface {
	PublishMessageCreated(msg *models.Message) error
}

// Options carries the optional collaborators of a Hub. Nil fields are
// simply not used.
type Options struct {
	Directory DirectoryQueue
	Presence  Presence
	Relay     RoomRelay
	Events    EventSink

	HandshakeTimeout time.Duration
	SendBuffer       int
	AllowedOrigins   []string
}

type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Membership index: room id to the clients joined to it
	rooms map[string]map[*Client]struct{}

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client

	chat      ChatStore
	verifier  auth.TokenVerifier
	directory DirectoryQueue
	presence  Presence
	relay     RoomRelay
	events    EventSink

	pubsub       atomic.Pointer[redis.PubSub]
	relayActive  atomic.Bool
	relayBreaker *relayBreaker

	// Held across append and fan-out so delivery order is storage order
	roomLocks [roomLockStripes]sync.Mutex

	handshakeTimeout time.Duration
	sendBuffer       int
	upgrader         websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger *logger.Logger
}

func NewHub(chat ChatStore, verifier auth.TokenVerifier, opts Options, log *logger.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &Hub{
		clients:          make(map[*Client]struct{}),
		rooms:            make(map[string]map[*Client]struct{}),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		chat:             chat,
		verifier:         verifier,
		directory:        opts.Directory,
		presence:         opts.Presence,
		relay:            opts.Relay,
		events:           opts.Events,
		handshakeTimeout: opts.HandshakeTimeout,
		sendBuffer:       opts.SendBuffer,
		upgrader:         newUpgrader(opts.AllowedOrigins),
		relayBreaker:     newRelayBreaker(0, 0, log),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
		logger:           log,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	if h.relay != nil {
		h.subscribeRooms()
	}

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Stop closes every socket and waits for the hub loop to exit
func (h *Hub) Stop(ctx context.Context) error {
	h.cancel()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.close()
	}

	if pubsub := h.pubsub.Load(); pubsub != nil {
		pubsub.Close()
		h.logger.Info("Room relay stopped", "relay", h.relayBreaker.stats())
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addClient registers the client unless Stop has already begun. The check
// runs under mu so Stop's snapshot either sees the client or the client is
// refused; a refused client is closed so its pumps shut the socket down.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		client.close()
		h.logger.Debug("Client refused, hub stopping", "clientID", client.id, "userID", client.UserID())
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Client registered", "clientID", client.id, "userID", client.UserID())

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := h.presence.SetUserOnline(ctx, client.UserID()); err != nil {
			h.logger.Warn("Failed to set user online", "userID", client.UserID(), "error", err)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	h.leaveAll(client)
	h.logger.Info("Client unregistered", "clientID", client.id, "userID", client.UserID())

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := h.presence.SetUserOffline(ctx, client.UserID()); err != nil {
			h.logger.Warn("Failed to set user offline", "userID", client.UserID(), "error", err)
		}
	}
}

// disconnect hands the client to the hub loop, or cleans up directly once
// the loop has exited.
func (h *Hub) disconnect(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

// Join subscribes the client to roomID. Joining twice is a no-op.
func (h *Hub) Join(client *Client, roomID string) {
	if client.isClosed() {
		return
	}
	if !client.addRoom(roomID) {
		return
	}

	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Client joined room", "clientID", client.id, "userID", client.UserID(), "roomID", roomID)
}

// leaveAll drops the client from every room it joined. Rooms left without
// members are removed from the index.
func (h *Hub) leaveAll(client *Client) {
	rooms := client.takeRooms()
	if len(rooms) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, roomID := range rooms {
		members, ok := h.rooms[roomID]
		if !ok {
			continue
		}
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) members(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		members = append(members, client)
	}
	return members
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) roomLock(roomID string) *sync.Mutex {
	f := fnv.New32a()
	f.Write([]byte(roomID))
	return &h.roomLocks[f.Sum32()%roomLockStripes]
}

// =============================================================================
// Events
// =============================================================================

func (h *Hub) handleEvent(client *Client, msg *Message) {
	if !msg.Type.IsClientEvent() {
		if msg.Type == MessageTypeAuth {
			h.logger.Debug("Ignoring auth frame on authenticated connection", "clientID", client.id)
			return
		}
		h.logger.Debug("Unknown event type", "clientID", client.id, "type", msg.Type)
		client.sendError(response.ErrCodeUnknownEvent)
		return
	}

	switch msg.Type {
	case MessageTypeJoinRoom:
		data, err := decodeRoom(msg.Data)
		if err != nil {
			h.rejectPayload(client, msg.Type, err)
			return
		}
		if h.authorize(client, data.RoomID) {
			h.Join(client, data.RoomID)
		}

	case MessageTypeLoadMessages:
		data, err := decodeRoom(msg.Data)
		if err != nil {
			h.rejectPayload(client, msg.Type, err)
			return
		}
		if h.authorize(client, data.RoomID) {
			h.loadMessages(client, data.RoomID)
		}

	case MessageTypeSendMessage:
		data, err := decodeSendMessage(msg.Data)
		if err != nil {
			h.rejectPayload(client, msg.Type, err)
			return
		}
		h.sendMessage(client, data)
	}
}

func (h *Hub) rejectPayload(client *Client, msgType MessageType, err error) {
	h.logger.Debug("Invalid event payload", "clientID", client.id, "type", msgType, "error", err)
	client.sendError(response.ErrCodeInvalidMessage)
}

// authorize lets only the two participants encoded in the room id use it
func (h *Hub) authorize(client *Client, roomID string) bool {
	if room.IsParticipant(roomID, client.UserID()) {
		return true
	}
	h.logger.Warn("Forbidden room access", "clientID", client.id, "userID", client.UserID(), "roomID", roomID)
	client.sendError(response.ErrCodeForbidden)
	return false
}

func (h *Hub) loadMessages(client *Client, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	history, err := h.chat.History(ctx, roomID)
	if err != nil {
		h.logger.Error("Failed to load history", "roomID", roomID, "error", err)
		client.sendError(response.ErrCodeInternal)
		return
	}
	client.SendMessage(NewChatHistoryMessage(history))
}

func (h *Hub) sendMessage(client *Client, data SendMessageData) {
	content := strings.TrimSpace(data.Message)
	if content == "" {
		h.logger.Debug("Dropping empty message", "clientID", client.id, "roomID", data.RoomID)
		return
	}
	if !h.authorize(client, data.RoomID) {
		return
	}
	h.dispatch(client, data.RoomID, content)
}

// dispatch persists the message and fans it out to the room. The sender
// identity always comes from the connection.
func (h *Hub) dispatch(sender *Client, roomID, content string) {
	lock := h.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	msg, err := h.chat.Append(ctx, roomID, sender.UserID(), content)
	if err != nil {
		h.logger.Error("Failed to store message", "roomID", roomID, "userID", sender.UserID(), "error", err)
		sender.SendMessage(NewSendFailedMessage(roomID, content))
		return
	}

	h.broadcast(ctx, roomID, NewReceiveMessage(msg))

	if h.events != nil {
		if err := h.events.PublishMessageCreated(msg); err != nil {
			h.logger.Warn("Failed to publish message event", "roomID", roomID, "messageID", msg.ID, "error", err)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, roomID string, message *Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to encode message", "roomID", roomID, "error", err)
		return
	}

	if h.relayActive.Load() && h.relayBreaker.allow() {
		err := h.relay.PublishRoomMessage(ctx, roomID, payload)
		if err == nil {
			h.relayBreaker.success()
			return
		}
		h.relayBreaker.failure(err)
		h.logger.Warn("Room relay publish failed, delivering locally", "roomID", roomID, "error", err)
	}

	h.deliverLocal(roomID, payload)
}

func (h *Hub) deliverLocal(roomID string, payload []byte) {
	for _, client := range h.members(roomID) {
		if err := client.sendRaw(payload); err != nil {
			h.logger.Debug("Failed to deliver message", "clientID", client.id, "roomID", roomID, "error", err)
		}
	}
}

// =============================================================================
// Relay
// =============================================================================

func (h *Hub) subscribeRooms() {
	pubsub, err := h.relay.SubscribeRooms(h.ctx)
	if err != nil {
		h.logger.Warn("Room relay unavailable, delivering locally only", "error", err)
		return
	}

	h.pubsub.Store(pubsub)
	h.relayActive.Store(true)
	go h.relayLoop(pubsub)
}

func (h *Hub) relayLoop(pubsub *redis.PubSub) {
	defer h.relayActive.Store(false)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			roomID, ok := services.RoomFromChannel(msg.Channel)
			if !ok {
				continue
			}
			h.deliverLocal(roomID, []byte(msg.Payload))

		case <-h.ctx.Done():
			return
		}
	}
}
