package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 256
)

// UserWSClient is one websocket connection of a user
type UserWSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *UserWSHub
	userID    string
	closeChan chan struct{}
}

// UserWSHub fans events out to the connections of the user they belong to
type UserWSHub struct {
	userClients map[string]map[*UserWSClient]bool
	userCast    chan userMessage
	register    chan *UserWSClient
	unregister  chan *UserWSClient
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
}

type userMessage struct {
	userID string
	data   []byte
}

// NewUserWSHub creates a new user-aware WebSocket hub
func NewUserWSHub() *UserWSHub {
	return &UserWSHub{
		userClients: make(map[string]map[*UserWSClient]bool),
		userCast:    make(chan userMessage, wsSendBuffer),
		register:    make(chan *UserWSClient),
		unregister:  make(chan *UserWSClient),
		done:        make(chan struct{}),
	}
}

// Run processes registrations and deliveries until Stop is called
func (h *UserWSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.userClients[client.userID] == nil {
				h.userClients[client.userID] = make(map[*UserWSClient]bool)
			}
			h.userClients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case msg := <-h.userCast:
			h.mu.Lock()
			for client := range h.userClients[msg.userID] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.userClients {
				for client := range clients {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove drops a client and closes its send channel. Callers hold h.mu.
func (h *UserWSHub) remove(client *UserWSClient) {
	clients, ok := h.userClients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.userClients, client.userID)
	}
	close(client.send)
}

// Stop disconnects every client and ends Run
func (h *UserWSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// BroadcastToUser sends an event to a specific user's connections
func (h *UserWSHub) BroadcastToUser(userID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log().WithError(err).Error("Failed to marshal user event", "type", string(event.Type))
		return
	}

	select {
	case h.userCast <- userMessage{userID: userID, data: data}:
	default:
		log().Warn("User broadcast channel full, dropping message", "user_id", userID, "type", string(event.Type))
	}
}

// GetUserClientCount returns the number of connected clients for a user
func (h *UserWSHub) GetUserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// writePump pumps messages from the hub to the websocket connection
func (c *UserWSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// readPump keeps the read deadline alive and detects disconnects. Clients
// never send anything meaningful.
func (c *UserWSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log().WithError(err).Debug("WebSocket read error", "user_id", c.userID)
			}
			return
		}
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	allowed := splitOrigins(s.config.AllowedOrigins)
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleUserWebSocket upgrades an authenticated request and registers it
// with the hub
func (s *Server) handleUserWebSocket(c *gin.Context) {
	userID := auth.GetUserID(c)

	up := s.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log().WithError(err).Warn("Failed to upgrade connection", "user_id", userID)
		return
	}

	client := &UserWSClient{
		conn:      conn,
		send:      make(chan []byte, wsSendBuffer),
		hub:       s.hub,
		userID:    userID,
		closeChan: make(chan struct{}),
	}

	// Queued before registration; once registered only the hub touches send
	welcome := map[string]interface{}{
		"type":      "CONNECTED",
		"message":   "WebSocket connection established",
		"timestamp": time.Now(),
		"user_id":   userID,
	}
	if data, err := json.Marshal(welcome); err == nil {
		client.send <- data
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
