// Package mirror republishes relay activity on NATS so external observers
// (recorders, dashboards) can follow a board without joining it.
package mirror

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	presenceSubject = "presence"
	drawSubject     = "draw"
)

// Publisher is the slice of *nats.Conn the mirror needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// PresenceEvent is published whenever the user list changes
type PresenceEvent struct {
	Users     map[string]string `json:"users"`
	Timestamp int64             `json:"timestamp"`
}

// DrawEvent is published for every relayed stroke
type DrawEvent struct {
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// NATSMirror publishes presence and draw events under <prefix>.presence and <prefix>.draw
type NATSMirror struct {
	pub    Publisher
	prefix string
	log    *logger.Logger
	now    func() time.Time
}

// New wraps an existing publisher
func New(pub Publisher, prefix string, log *logger.Logger) *NATSMirror {
	if log == nil {
		log = logger.Nop()
	}
	return &NATSMirror{
		pub:    pub,
		prefix: prefix,
		log:    log,
		now:    time.Now,
	}
}

// Connect dials NATS and returns a mirror plus a function that drains the connection
func Connect(url, prefix string, log *logger.Logger) (*NATSMirror, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("sketchrelay"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && log != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	closeFn := func() {
		if err := nc.Drain(); err != nil && log != nil {
			log.Warnf("NATS drain: %v", err)
		}
	}
	return New(nc, prefix, log), closeFn, nil
}

// Subject returns the full subject for a suffix
func (m *NATSMirror) Subject(suffix string) string {
	if m.prefix == "" {
		return suffix
	}
	return m.prefix + "." + suffix
}

// Presence publishes a user list snapshot
func (m *NATSMirror) Presence(users map[string]string) {
	m.publish(m.Subject(presenceSubject), PresenceEvent{
		Users:     users,
		Timestamp: m.now().Unix(),
	})
}

// Draw publishes a relayed stroke
func (m *NATSMirror) Draw(from string, payload json.RawMessage) {
	m.publish(m.Subject(drawSubject), DrawEvent{
		From:      from,
		Payload:   payload,
		Timestamp: m.now().Unix(),
	})
}

func (m *NATSMirror) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.log.Errorf("Failed to marshal %s event: %v", subject, err)
		return
	}
	if err := m.pub.Publish(subject, data); err != nil {
		m.log.Errorf("Failed to publish %s to NATS: %v", subject, err)
	}
}
