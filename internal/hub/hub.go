// Package hub is the progress notification channel: one persistent websocket
// per client session, with named events addressed either to the connection
// itself or to an arbitrary session by identity.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	// done signals writePump shutdown. The send channel itself is never
	// closed, so a late emit racing a disconnect queues harmlessly into an
	// abandoned buffer instead of panicking.
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// writePump serializes all writes for one connection. Events queued on the
// send channel leave in queue order, which is what gives a session its
// in-order delivery guarantee.
func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks connected sessions by identity.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  *log.Logger

	// OnDisconnect, when set, runs after a session is unregistered.
	OnDisconnect func(sessionID string)
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  log.New(log.Writer(), "[HUB] ", log.LstdFlags),
	}
}

// Add registers a connection, assigns it a session id and announces that id
// to the client. It returns the session id.
func (h *Hub) Add(conn *websocket.Conn) string {
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Printf("session connected: %s", c.id)
	h.emit(c, EventSession, SessionPayload{ID: c.id})
	return c.id
}

// Remove unregisters a session and closes its write pump. Safe to call for
// an already-removed session.
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	if ok {
		delete(h.clients, sessionID)
		c.close()
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.logger.Printf("session disconnected: %s", sessionID)
	if h.OnDisconnect != nil {
		h.OnDisconnect(sessionID)
	}
}

// Connected reports whether a session is still registered.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// EmitTo sends a named event to the session identified by sessionID. Events
// addressed to an unknown or already-disconnected session are dropped, which
// keeps a destroyed session from being reawakened by late progress. It
// reports whether the event was queued.
func (h *Hub) EmitTo(sessionID, event string, data interface{}) bool {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.emit(c, event, data)
}

func (h *Hub) emit(c *client, event string, data interface{}) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("marshal %s: %v", event, err)
		return false
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		h.logger.Printf("marshal envelope: %v", err)
		return false
	}
	select {
	case <-c.done:
		// session destroyed between lookup and queue
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		// client can't keep up, disconnect it
		h.logger.Printf("session %s too slow, disconnecting", c.id)
		go h.Remove(c.id)
		return false
	}
}
