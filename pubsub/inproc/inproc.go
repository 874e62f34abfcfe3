package inproc

import (
	"sync"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/pubsub"
)

var (
	hubs   = make(map[string]*Hub) // map[Address]*Hub
	hubsMu sync.Mutex
)

// Bind returns the hub registered under address, creating it on first use.
func Bind(address string) *Hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()

	hub, ok := hubs[address]
	if !ok {
		hub = NewHub()
		hubs[address] = hub
	}
	return hub
}

func NewPubSub(cfg conf.PubSub) (pubsub.PubSub, error) {
	return Bind(cfg.URL).Connect(cfg.Capacity), nil
}

// Hub relays every line sent by one socket to all other sockets.
type Hub struct {
	sockets map[*socket]struct{}
	sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		sockets: make(map[*socket]struct{}),
	}
}

func (h *Hub) Connect(capacity int) pubsub.PubSub {
	s := &socket{
		Inbox: pubsub.NewInbox(capacity),
		hub:   h,
	}

	h.Lock()
	h.sockets[s] = struct{}{}
	h.Unlock()

	return s
}

func (h *Hub) broadcast(from *socket, data []byte) {
	h.RLock()
	defer h.RUnlock()

	for s := range h.sockets {
		if s == from {
			continue
		}
		s.Deliver(data)
	}
}

func (h *Hub) remove(s *socket) {
	h.Lock()
	delete(h.sockets, s)
	h.Unlock()
}

type socket struct {
	*pubsub.Inbox
	hub *Hub
}

func (s *socket) Send(data []byte) error {
	if s.Closed() {
		return pubsub.NewTransportError("send", pubsub.ErrClosed)
	}

	s.hub.broadcast(s, data)
	return nil
}

func (s *socket) Close() error {
	s.hub.remove(s)
	s.Inbox.Close()
	return nil
}
