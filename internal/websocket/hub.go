// Package websocket implements the device link: the per-connection session
// engine, the liveness monitor and the process-wide session registry.
package websocket

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/internal/observability"
)

var ErrDeviceNotConnected = errors.New("device is not connected")

// Hub is the process-wide registry mapping a device identity to its single
// live client. It is the only state shared across sessions; all mutations
// are serialized by its mutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		metrics: metrics,
		logger:  logger,
	}
}

// Register claims deviceID for client. If another client already holds the
// identity it is superseded: the registry immediately points at the new
// client and the old one is told to shut down with an error frame. Exactly
// one client owns an identity at any instant, whatever the interleaving of
// concurrent handshakes.
func (h *Hub) Register(deviceID string, client *Client) {
	h.mu.Lock()
	old := h.clients[deviceID]
	h.clients[deviceID] = client
	h.mu.Unlock()

	h.logger.Info("Client registered", zap.String("deviceID", deviceID))

	if old != nil && old != client {
		h.metrics.Supersessions.Inc()
		h.logger.Info("Superseding previous session", zap.String("deviceID", deviceID))
		go old.supersede()
	}
}

// Remove drops the registry entry, but only if it still points at client;
// a superseded client must never evict its successor.
func (h *Hub) Remove(deviceID string, client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[deviceID]; ok && current == client {
		delete(h.clients, deviceID)
	}
	h.mu.Unlock()
	h.logger.Info("Client unregistered", zap.String("deviceID", deviceID))
}

// Get returns the live client for a device identity.
func (h *Hub) Get(deviceID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[deviceID]
	return client, ok
}

// DeviceStatus is a snapshot row for the devices listing.
type DeviceStatus struct {
	DeviceID string                `json:"device_id"`
	ClientID string                `json:"client_id"`
	State    entities.SessionState `json:"state"`
}

// Devices snapshots the registry for the REST surface.
func (h *Hub) Devices() []DeviceStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(h.clients))
	for deviceID, client := range h.clients {
		out = append(out, DeviceStatus{
			DeviceID: deviceID,
			ClientID: client.clientID(),
			State:    client.publishedState(),
		})
	}
	return out
}

// PushSpeak starts a server-initiated speaking cycle on the device's
// session. It fails if the device is not connected or not idle.
func (h *Hub) PushSpeak(ctx context.Context, deviceID, message string) error {
	client, ok := h.Get(deviceID)
	if !ok {
		return ErrDeviceNotConnected
	}
	return client.engine.Speak(ctx, message)
}
