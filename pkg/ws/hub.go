// Package ws pushes live change notifications to connected browsers:
// collection contents after each store commit, chat messages as they
// arrive, and sync indicator transitions.
package ws

import (
	"encoding/json"
	"log"
	"net/http"

	"linkshare-backend/pkg/utils"

	"github.com/gorilla/websocket"
)

// Events pushed to clients.
const (
	EventCollectionChanged = "collection_changed"
	EventNewMessage        = "new_message"
	EventSyncStatus        = "sync_status"
)

type WebSocketMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// CollectionPayload carries a full snapshot of one collection. Clients
// replace their local copy wholesale; deltas are not computed.
type CollectionPayload struct {
	Collection string      `json:"collection"`
	Records    interface{} `json:"records"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run processes register/unregister/broadcast events. Call in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop the connection rather than
					// blocking every other client.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Broadcast fans an event out to every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	message, err := json.Marshal(WebSocketMessage{Event: event, Payload: payload})
	if err != nil {
		log.Printf("Error marshalling %s message: %v", event, err)
		return
	}
	h.broadcast <- message
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.unregister <- c
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// ServeWs upgrades the connection and attaches it to the hub. The feed
// is read-only for clients, so no authentication is required here.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	id, err := utils.GenerateURLToken(8)
	if err != nil {
		id = r.RemoteAddr
	}
	client := &Client{id: id, hub: hub, conn: conn, send: make(chan []byte, 256)}

	// Start the writer and reader goroutines BEFORE registering the client.
	// This prevents a deadlock where the hub tries to send a message to a
	// client that isn't ready to receive it yet.
	go client.writePump()
	go client.readPump()

	client.hub.register <- client
}
