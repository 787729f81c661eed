package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tyrowin/chathub/internal/router"
)

// Hub owns every live connection and the room groups used for multicast. It
// implements router.Transport: sends never block, and a connection whose
// queue is full is closed.
type Hub struct {
	log        *slog.Logger
	handler    EventHandler
	clients    map[string]*Client
	groups     map[string]map[string]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

var _ router.Transport = (*Hub)(nil)

// NewHub creates a hub that is ready to Run.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetHandler installs the consumer of inbound frames. It must be called
// before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// Register hands a new client to the hub. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			if h.removeClient(client) && h.handler != nil {
				h.handler.Disconnect(client.id)
			}
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("Client registered", "conn", client.id, "addr", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClient drops the client and its group memberships, then closes its
// queue. It reports false when the client was already gone.
func (h *Hub) removeClient(client *Client) bool {
	h.mutex.Lock()
	if registered, ok := h.clients[client.id]; !ok || registered != client {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client.id)
	for group, members := range h.groups {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info("Client unregistered", "conn", client.id, "addr", client.addr, "clients", clientCount)
	return true
}

func (h *Hub) JoinGroup(connectionID, group string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[connectionID]; !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]struct{})
	}
	h.groups[group][connectionID] = struct{}{}
}

func (h *Hub) LeaveGroup(connectionID, group string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// GroupMembers returns the connection ids currently in group.
func (h *Hub) GroupMembers(group string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := make([]string, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		members = append(members, id)
	}
	return members
}

func (h *Hub) SendToConnection(connectionID string, event router.OutboundEvent, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mutex.RLock()
	client, exists := h.clients[connectionID]
	h.mutex.RUnlock()
	if !exists {
		return
	}
	h.deliver([]*Client{client}, frame)
}

func (h *Hub) SendToGroup(group string, event router.OutboundEvent, payload any, exclude string) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		if id == exclude {
			continue
		}
		if client, exists := h.clients[id]; exists {
			targets = append(targets, client)
		}
	}
	h.mutex.RUnlock()

	h.deliver(targets, frame)
}

func (h *Hub) SendToAll(event router.OutboundEvent, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.deliver(h.getClientSnapshot(), frame)
}

func (h *Hub) encode(event router.OutboundEvent, payload any) ([]byte, bool) {
	frame, err := router.Encode(event, payload)
	if err != nil {
		h.log.Error("Failed to encode outbound event", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

// deliver queues frame on every target and evicts those that cannot keep up.
func (h *Hub) deliver(targets []*Client, frame []byte) {
	for _, client := range targets {
		if !h.safeSend(client, frame) {
			h.evict(client)
		}
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	// Holding the read lock keeps removeClient from closing the queue mid-send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if registered, exists := h.clients[client.id]; !exists || registered != client || client.closed {
		return true
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// evict closes a slow client's socket. Its read pump then fails and the
// client is unregistered through the normal path.
func (h *Hub) evict(client *Client) {
	client.evictOnce.Do(func() {
		h.log.Warn("Client removed due to full send buffer", "conn", client.id, "addr", client.addr)
		client.closeConnection()
	})
}

// getClientSnapshot returns a thread-safe snapshot of all current clients.
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		client.closeConnection()
	}
	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for every client goroutine to finish, or
// for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("Initiating hub shutdown")
	h.cancel()

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-ctx.Done():
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return ctx.Err()
	}
}
