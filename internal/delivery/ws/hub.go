package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
	"golang.org/x/time/rate"
)

// EventSink observes relay activity (see internal/mirror)
type EventSink interface {
	Presence(users map[string]string)
	Draw(from string, payload json.RawMessage)
}

// NameSuggester proposes an alternative when a username is taken
type NameSuggester interface {
	Suggest(base string, maxLen int, taken func(string) bool) string
}

// Options tunes protocol limits
type Options struct {
	MaxUsernameLength int
	MaxPointsPerEvent int
	UsernamePolicy    domain.UsernamePolicy
	DrawRate          rate.Limit
	DrawBurst         int
	SendBufferSize    int
	MaxMessageSize    int64
}

// DefaultOptions mirrors the domain defaults
func DefaultOptions() Options {
	return Options{
		MaxUsernameLength: domain.MaxUsernameLength,
		MaxPointsPerEvent: domain.MaxPointsPerEvent,
		UsernamePolicy:    domain.UsernamePolicyReject,
		DrawRate:          domain.DefaultDrawRate,
		DrawBurst:         domain.DefaultDrawBurst,
		SendBufferSize:    domain.SendBufferSize,
		MaxMessageSize:    domain.MaxMessageSize,
	}
}

type inbound struct {
	client *Client
	msg    domain.Message
}

// Hub owns the connected sessions and the user registry.
// All mutation happens on the Run goroutine; mu only guards readers on other goroutines.
type Hub struct {
	mu   sync.RWMutex
	opts Options

	clients map[string]*Client
	users   map[string]string // session id -> username, logged-in sessions only

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	sink      EventSink
	suggester NameSuggester
	log       *logger.Logger
}

// NewHub creates a new Hub
func NewHub(opts Options, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		opts:       opts,
		clients:    make(map[string]*Client),
		users:      make(map[string]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		log:        log,
	}
}

// SetEventSink installs an observer for presence and draw events
func (h *Hub) SetEventSink(sink EventSink) {
	h.sink = sink
}

// SetNameSuggester enables suggestions on duplicate-name rejections
func (h *Hub) SetNameSuggester(s NameSuggester) {
	h.suggester = s
}

// Run starts the hub's main event loop. It returns when ctx is cancelled,
// after closing every session's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.onConnect(client)

		case client := <-h.unregister:
			h.onDisconnect(client)

		case in := <-h.inbound:
			h.route(in.client, in.msg)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.users = make(map[string]string)
	h.log.Info("Hub stopped")
}

// route hands one inbound frame to its handler
func (h *Hub) route(c *Client, msg domain.Message) {
	if _, ok := h.clients[c.ID]; !ok {
		// Frame raced with disconnect; the session no longer exists.
		return
	}

	switch msg.Type {
	case domain.MessageTypeLogin:
		h.onLogin(c, msg)
	case domain.MessageTypeDrawPoints:
		h.onDrawPoints(c, msg)
	default:
		h.log.Debugf("Dropping unknown frame type %q from %s", msg.Type, c.ID)
	}
}

func (h *Hub) onConnect(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.Debugf("Session connected: %s", c.ID)
}

func (h *Hub) onDisconnect(c *Client) {
	// Prevent double unregister
	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	h.mu.Lock()
	delete(h.clients, c.ID)
	name, wasLoggedIn := h.users[c.ID]
	delete(h.users, c.ID)
	h.mu.Unlock()

	close(c.send)

	if wasLoggedIn {
		h.log.Infof("User %q left (%s)", name, c.ID)
	} else {
		h.log.Debugf("Session disconnected before login: %s", c.ID)
	}

	h.broadcastUserList()
}
