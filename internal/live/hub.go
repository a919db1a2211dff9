// Package live pushes dashboard updates to browsers over websockets.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
)

// Message is the envelope of every frame sent to browsers.
type Message struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Data     any    `json:"data"`
}

type envelope struct {
	deviceID string
	payload  []byte
}

// SnapshotFunc returns the initial state for a new client. deviceID is empty
// for clients watching every device.
type SnapshotFunc func(deviceID string) any

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	snapshot   SnapshotFunc
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex
}

func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		snapshot:   snapshot,
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			metrics.LiveClients.Set(0)
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.LiveClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
			log.Debug().Str("remote", client.remote()).Str("device", client.DeviceID).Msg("live client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Debug().Str("remote", client.remote()).Msg("live client unregistered")
			}
			metrics.LiveClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.deviceID) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					log.Warn().Str("remote", client.remote()).Msg("live client send buffer full, removing")
					close(client.Send)
					delete(h.clients, client)
				}
			}
			metrics.LiveClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every client watching deviceID. It never
// blocks the caller; when the queue is full the message is dropped.
func (h *Hub) Broadcast(deviceID, msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, DeviceID: deviceID, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("live message encode failed")
		return
	}
	select {
	case h.broadcast <- envelope{deviceID: deviceID, payload: payload}:
	default:
		log.Warn().Str("device", deviceID).Str("type", msgType).Msg("live broadcast queue full, dropping")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) initMessage(deviceID string) []byte {
	var data any
	if h.snapshot != nil {
		data = h.snapshot(deviceID)
	}
	payload, err := json.Marshal(Message{Type: "init", DeviceID: deviceID, Data: data})
	if err != nil {
		log.Error().Err(err).Msg("live init encode failed")
		return nil
	}
	return payload
}
