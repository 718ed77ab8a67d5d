package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// MessageType names a frame on the wire
type MessageType string

const (
	// Endpoint -> Hub
	MessageTypeLogin MessageType = "LOGIN"

	// Hub -> Endpoint
	MessageTypeLoginAck       MessageType = "LOGIN_ACK"
	MessageTypeUpdateUserList MessageType = "UPDATE_USER_LIST"

	// Both directions
	MessageTypeDrawPoints MessageType = "DRAW_POINTS"
)

// Message is the envelope every frame travels in.
// Ack correlates a LOGIN with its LOGIN_ACK; From is set by the hub on relayed draws.
type Message struct {
	Type    MessageType     `json:"type"`
	Ack     string          `json:"ack,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoginPayload is the payload for LOGIN
type LoginPayload struct {
	Username string `json:"username"`
}

// LoginAckPayload answers a LOGIN
type LoginAckPayload struct {
	OK         bool   `json:"ok"`
	Username   string `json:"username,omitempty"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"` // offered when the name is taken
}

// UserListPayload is a full snapshot of logged-in sessions (session id -> username)
type UserListPayload struct {
	Users map[string]string `json:"users"`
}

// Point is one 2D coordinate, encoded as [x, y]
type Point [2]float64

// UnmarshalJSON accepts exactly two numbers
func (p *Point) UnmarshalJSON(b []byte) error {
	var xy []float64
	if err := json.Unmarshal(b, &xy); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPoint, err)
	}
	if len(xy) != 2 {
		return fmt.Errorf("%w: want 2 coordinates, got %d", ErrBadPoint, len(xy))
	}
	p[0], p[1] = xy[0], xy[1]
	return nil
}

// DrawPointsPayload is one stroke: ordered points plus a color token
type DrawPointsPayload struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
}

// Validate checks the stroke is relayable. maxPoints <= 0 disables the length cap.
func (p DrawPointsPayload) Validate(maxPoints int) error {
	if len(p.Points) == 0 {
		return ErrNoPoints
	}
	if maxPoints > 0 && len(p.Points) > maxPoints {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPoints, len(p.Points), maxPoints)
	}
	for i, pt := range p.Points {
		for _, v := range pt {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: index %d", ErrBadPoint, i)
			}
		}
	}
	if p.Color == "" {
		return ErrNoColor
	}
	return nil
}

// Encode builds a wire frame with the given payload
func Encode(t MessageType, ack, from string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return EncodeRaw(t, ack, from, raw)
}

// EncodeRaw builds a wire frame around an already-encoded payload
func EncodeRaw(t MessageType, ack, from string, payload json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(Message{
		Type:    t,
		Ack:     ack,
		From:    from,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", t, err)
	}
	return data, nil
}
