package sync

import (
	"sync"

	"github.com/goccy/go-json"

	"anipink/pkg/logging"
	"anipink/pkg/metrics"
)

const defaultSendBuffer = 64

const (
	TransportWS  = "ws"
	TransportTCP = "tcp"
)

// Client is one registered subscriber. Send is closed when the hub drops it.
type Client struct {
	UID       string
	Topic     string // empty matches every topic
	Transport string

	send chan []byte
	once sync.Once
}

func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Register(uid, topic, transport string) *Client {
	c := &Client{
		UID:       uid,
		Topic:     topic,
		Transport: transport,
		send:      make(chan []byte, defaultSendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.SubscribedClients.WithLabelValues(transport).Inc()
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.SubscribedClients.WithLabelValues(c.Transport).Dec()
	}
	c.close()
}

// Publish fans ev out to the account's subscribers without blocking. A
// client whose buffer is full is dropped; it resynchronizes from the
// snapshot when it reconnects.
func (h *Hub) Publish(ev ChangeEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log := logging.Component("hub")
		log.Error().Err(err).Msg("marshal change event")
		return
	}
	b = append(b, '\n')
	topic := ev.Topic()

	h.mu.Lock()
	defer h.mu.Unlock()

	metrics.ChangesPublished.WithLabelValues(topic).Inc()
	for c := range h.clients {
		if c.UID != ev.UID || (c.Topic != "" && c.Topic != topic) {
			continue
		}
		select {
		case c.send <- b:
		default:
			delete(h.clients, c)
			metrics.SubscribedClients.WithLabelValues(c.Transport).Dec()
			c.close()
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var s Stats
	for c := range h.clients {
		switch c.Transport {
		case TransportTCP:
			s.TCPClients++
		case TransportWS:
			s.WSClients++
		}
	}
	return s
}
