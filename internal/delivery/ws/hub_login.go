package ws

import (
	"encoding/json"

	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
)

// onLogin validates the requested name, records it, acks the caller and
// broadcasts the new user list to everyone including the caller.
func (h *Hub) onLogin(c *Client, msg domain.Message) {
	var req domain.LoginPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.log.Debugf("Malformed LOGIN from %s: %v", c.ID, err)
		h.rejectLogin(c, msg.Ack, domain.ErrEmptyUsername, "")
		return
	}

	name, err := domain.NormalizeUsername(req.Username, h.opts.MaxUsernameLength)
	if err != nil {
		h.rejectLogin(c, msg.Ack, err, "")
		return
	}

	if h.opts.UsernamePolicy != domain.UsernamePolicyAllow && h.nameTakenByOther(c.ID, name) {
		h.rejectLogin(c, msg.Ack, domain.ErrUsernameTaken, h.suggest(c.ID, name))
		return
	}

	h.mu.Lock()
	previous, relogin := h.users[c.ID]
	h.users[c.ID] = name
	h.mu.Unlock()

	if relogin {
		h.log.Infof("User %q is now %q (%s)", previous, name, c.ID)
	} else {
		h.log.Infof("User %q logged in (%s)", name, c.ID)
	}

	ack, err := domain.Encode(domain.MessageTypeLoginAck, msg.Ack, "", domain.LoginAckPayload{
		OK:       true,
		Username: name,
	})
	if err != nil {
		h.log.Errorf("Failed to build login ack: %v", err)
		return
	}
	h.sendTo(c, ack)
	if _, ok := h.clients[c.ID]; !ok {
		// Evicted on the ack; onDisconnect already broadcast the list
		return
	}

	h.broadcastUserList()
}

func (h *Hub) rejectLogin(c *Client, ackID string, reason error, suggestion string) {
	h.log.Debugf("Login rejected for %s: %v", c.ID, reason)

	ack, err := domain.Encode(domain.MessageTypeLoginAck, ackID, "", domain.LoginAckPayload{
		OK:         false,
		Error:      reason.Error(),
		Suggestion: suggestion,
	})
	if err != nil {
		h.log.Errorf("Failed to build login ack: %v", err)
		return
	}
	h.sendTo(c, ack)
}

// nameTakenByOther reports whether a session other than selfID holds name
func (h *Hub) nameTakenByOther(selfID, name string) bool {
	for id, existing := range h.users {
		if id != selfID && domain.SameUsername(existing, name) {
			return true
		}
	}
	return false
}

func (h *Hub) suggest(selfID, name string) string {
	if h.suggester == nil {
		return ""
	}
	return h.suggester.Suggest(name, h.opts.MaxUsernameLength, func(candidate string) bool {
		return h.nameTakenByOther(selfID, candidate)
	})
}
