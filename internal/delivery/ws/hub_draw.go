package ws

import (
	"encoding/json"

	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
)

// onDrawPoints relays a valid stroke to every other session. Invalid strokes,
// and strokes over an opt-in per-session rate, are dropped without telling the sender.
func (h *Hub) onDrawPoints(c *Client, msg domain.Message) {
	var stroke domain.DrawPointsPayload
	if err := json.Unmarshal(msg.Payload, &stroke); err != nil {
		h.log.Debugf("Malformed DRAW_POINTS from %s: %v", c.ID, err)
		return
	}
	if err := stroke.Validate(h.opts.MaxPointsPerEvent); err != nil {
		h.log.Debugf("Invalid DRAW_POINTS from %s: %v", c.ID, err)
		return
	}
	if !c.allowDraw() {
		h.log.Debugf("Draw rate exceeded for %s, dropping", c.ID)
		return
	}

	// Relay the original payload bytes, not a re-encoding of stroke
	frame, err := domain.EncodeRaw(domain.MessageTypeDrawPoints, "", c.ID, msg.Payload)
	if err != nil {
		h.log.Errorf("Failed to build draw frame: %v", err)
		return
	}

	if h.sink != nil {
		h.sink.Draw(c.ID, msg.Payload)
	}
	h.fanOut(frame, c.ID)
}
