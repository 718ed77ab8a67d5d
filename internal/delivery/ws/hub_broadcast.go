package ws

import (
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
)

// snapshotUsers copies the registry.
// NOTE: Caller must be the Run goroutine or hold at least RLock
func (h *Hub) snapshotUsers() map[string]string {
	users := make(map[string]string, len(h.users))
	for id, name := range h.users {
		users[id] = name
	}
	return users
}

// broadcastUserList sends the full registry to every connected session
func (h *Hub) broadcastUserList() {
	users := h.snapshotUsers()
	frame, err := domain.Encode(domain.MessageTypeUpdateUserList, "", "", domain.UserListPayload{Users: users})
	if err != nil {
		h.log.Errorf("Failed to build user list: %v", err)
		return
	}

	if h.sink != nil {
		h.sink.Presence(users)
	}
	h.fanOut(frame, "")
}

// fanOut delivers frame to every session except skipID.
// Sessions whose queue is full are evicted once the pass is over.
func (h *Hub) fanOut(frame []byte, skipID string) {
	var slow []*Client
	for id, c := range h.clients {
		if id == skipID {
			continue
		}
		if !c.trySend(frame) {
			slow = append(slow, c)
		}
	}
	h.evict(slow)
}

// sendTo delivers frame to one session
func (h *Hub) sendTo(c *Client, frame []byte) {
	if !c.trySend(frame) {
		h.evict([]*Client{c})
	}
}

// evict disconnects sessions that cannot keep up
func (h *Hub) evict(slow []*Client) {
	for _, c := range slow {
		h.log.Warnf("Send queue full, evicting session %s", c.ID)
		h.onDisconnect(c)
	}
}
