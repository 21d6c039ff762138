package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
	"github.com/satriahrh/arunika-relay/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound frames buffered per client before Deliver starts failing.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	// Clients authenticate with a bearer token rather than cookies, so
	// cross-origin upgrades are allowed.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected clients, one per session, and is the
// delivery channel used by the pipeline.
type Hub struct {
	// Connected clients keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessions repositories.SessionRegistry
	logger   *zap.Logger
}

var _ repositories.DeliveryChannel = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(sessions repositories.SessionRegistry, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sessions:   sessions,
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, closing
// every connected client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if previous, ok := h.clients[client.sessionID]; ok && previous != client {
				// A newer connection takes the session over.
				close(previous.send)
				h.logger.Info("Client replaced", zap.String("sessionID", client.sessionID))
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			close(client.registered)
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			owner := h.clients[client.sessionID] == client
			if owner {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			if owner {
				h.sessions.Remove(client.sessionID)
			}
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
				h.sessions.Remove(id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// Deliver serializes message and queues it for the session's connection.
// It returns false when the session is inactive, has no connection, the
// message cannot be encoded, or the connection's queue is full. It never
// waits for the client.
func (h *Hub) Deliver(sessionID string, message interface{}) bool {
	if !h.sessions.IsActive(sessionID) {
		return false
	}

	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to encode outbound message",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[sessionID]
	if !ok {
		return false
	}
	return client.trySend(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// ConnectedCount returns the number of open connections
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reply queues a frame for c regardless of session activity. Used for
// connection-level acknowledgements.
func (h *Hub) reply(c *Client, message interface{}) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to encode reply", zap.Error(err))
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[c.sessionID] != c {
		return false
	}
	return c.trySend(WriteData{Type: websocket.TextMessage, Payload: payload})
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// ChainProcessor runs the prompt-to-speech pipeline for a session
type ChainProcessor interface {
	ProcessChain(ctx context.Context, completion repositories.CompletionRequest, speech repositories.SpeechRequest, sessionID string) usecase.RunReport
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed by the hub once the client is in the clients map.
	registered chan struct{}

	// Session owned by this connection
	sessionID string

	processor      ChainProcessor
	speechDefaults repositories.SpeechRequest

	// Cancelled when the connection closes.
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// trySend must be called with the hub lock held so send cannot be closed
// concurrently.
func (c *Client) trySend(data WriteData) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("Send queue full, dropping frame")
		return false
	}
}

// Handler upgrades HTTP requests and wires each connection to the pipeline
type Handler struct {
	hub            *Hub
	processor      ChainProcessor
	speechDefaults repositories.SpeechRequest
	logger         *zap.Logger
}

// NewHandler creates a websocket handler. speechDefaults supplies voice, model
// and format for prompts that do not choose their own voice.
func NewHandler(hub *Hub, processor ChainProcessor, speechDefaults repositories.SpeechRequest, logger *zap.Logger) *Handler {
	return &Handler{
		hub:            hub,
		processor:      processor,
		speechDefaults: speechDefaults,
		logger:         logger,
	}
}

// HandleWebSocket upgrades the request and serves the connection for sessionID
func (h *Handler) HandleWebSocket(c echo.Context, sessionID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:            h.hub,
		conn:           conn,
		send:           make(chan WriteData, sendBufferSize),
		registered:     make(chan struct{}),
		sessionID:      sessionID,
		processor:      h.processor,
		speechDefaults: h.speechDefaults,
		ctx:            ctx,
		cancel:         cancel,
		logger:         h.logger.With(zap.String("sessionID", sessionID)),
	}

	greeting, _ := json.Marshal(domain.StatusReply{Status: domain.StatusConnected, SessionID: sessionID})
	client.send <- WriteData{Type: websocket.TextMessage, Payload: greeting}

	select {
	case h.hub.register <- client:
		<-client.registered
	case <-h.hub.done:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			c.hub.reply(c, domain.ErrorReply{Error: "only text frames are supported"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
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
