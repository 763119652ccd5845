package notify

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"chipbridge/models"
)

// Publisher is the narrow interface settlement-side code depends on; the
// websocket hub is one implementation of it.
type Publisher interface {
	// Publish broadcasts a payload to every connected client
	Publish(topic string, payload any)

	// PublishTo delivers a payload only to clients authenticated as the
	// given wallet address
	PublishTo(address, topic string, payload any)
}

// Message is the wire format pushed to websocket clients
type Message struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection scoped to a wallet address
type Client struct {
	ID      string
	Address string
	conn    *websocket.Conn
	send    chan Message
}

// Hub fans settlement notifications out to connected websocket clients.
// A wallet may hold several connections at once; per-address delivery
// reaches all of them.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]bool
	byAddress map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
}

// NewHub creates a new notification hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byAddress:  make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes client registration until the hub is shut down
func (h *Hub) Run() {
	for {
		select {
		case client, ok := <-h.register:
			if !ok {
				return
			}
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if client.Address != "" {
		if h.byAddress[client.Address] == nil {
			h.byAddress[client.Address] = make(map[*Client]bool)
		}
		h.byAddress[client.Address][client] = true
	}

	log.WithFields(log.Fields{
		"clientId": client.ID,
		"address":  client.Address,
	}).Debug("Websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if peers, ok := h.byAddress[client.Address]; ok {
		delete(peers, client)
		if len(peers) == 0 {
			delete(h.byAddress, client.Address)
		}
	}
	close(client.send)
}

// Publish broadcasts a payload to every connected client
func (h *Hub) Publish(topic string, payload any) {
	msg := Message{Topic: topic, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; drop rather than block settlement
			log.WithField("clientId", client.ID).Warn("Dropping notification for slow websocket client")
		}
	}
}

// PublishTo delivers a payload to all connections of one wallet address
func (h *Hub) PublishTo(address, topic string, payload any) {
	msg := Message{Topic: topic, Payload: payload}
	normalized := models.NormalizeAddress(address)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byAddress[normalized] {
		select {
		case client.send <- msg:
		default:
			log.WithField("clientId", client.ID).Warn("Dropping notification for slow websocket client")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request into a hub connection. The wallet
// address is taken from the authenticated request context when present.
func (h *Hub) ServeWS(c *gin.Context) {
	address := models.NormalizeAddress(c.GetString("walletAddress"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithField("error", err).Warn("Failed to upgrade websocket connection")
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Address: address,
		conn:    conn,
		send:    make(chan Message, 32),
	}

	h.register <- client

	go client.writePump()
	client.readPump(h)
}

func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		// Clients only listen; reads exist to detect disconnects
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("clientId", c.ID).Debug("Websocket read error")
			}
			return
		}
	}
}
