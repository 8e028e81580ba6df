package fakeapi

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hos-care/console/internal/client"
)

type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:   ws,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

// writePump is the only writer on ws.
func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster fans notifications out to every connected /ws/logs client.
type Broadcaster struct {
	mu    sync.RWMutex
	conns map[*conn]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: make(map[*conn]bool)}
}

func (b *Broadcaster) add(ws *websocket.Conn) *conn {
	c := newConn(ws)
	b.mu.Lock()
	b.conns[c] = true
	b.mu.Unlock()
	return c
}

func (b *Broadcaster) remove(c *conn) {
	b.mu.Lock()
	if _, ok := b.conns[c]; ok {
		delete(b.conns, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// reply queues a frame for one client. A full queue drops the client.
func (b *Broadcaster) reply(c *conn, data []byte) {
	b.mu.RLock()
	_, ok := b.conns[c]
	if ok {
		select {
		case c.send <- data:
			b.mu.RUnlock()
			return
		default:
		}
	}
	b.mu.RUnlock()
	if ok {
		log.Printf("fakeapi: ws client too slow, disconnecting")
		b.remove(c)
	}
}

// Broadcast sends n to every client.
func (b *Broadcaster) Broadcast(n client.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("fakeapi: broadcast marshal error: %v", err)
		return
	}
	b.BroadcastRaw(data)
}

// BroadcastRaw sends data unchanged, for exercising clients against
// frames that are not notifications.
func (b *Broadcaster) BroadcastRaw(data []byte) {
	b.mu.RLock()
	conns := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		b.reply(c, data)
	}
}

// DropAll closes every client connection, as a server restart would.
func (b *Broadcaster) DropAll() {
	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
		b.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}
