package ws

import (
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
)

// Register adds a session to the hub (OnConnect)
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a session and its registry entry (OnDisconnect)
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues one inbound frame from c. Frames from the same caller are
// processed in the order Dispatch is called.
func (h *Hub) Dispatch(c *Client, msg domain.Message) {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserCount returns the number of logged-in sessions
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// Snapshot returns a copy of the user registry
func (h *Hub) Snapshot() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotUsers()
}

// Options returns the limits the hub was built with
func (h *Hub) Options() Options {
	return h.opts
}
