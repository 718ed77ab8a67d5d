package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
	"golang.org/x/time/rate"
)

// Client is the server side of one websocket connection (a session)
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// drawLimiter is only touched by the hub's Run goroutine
	drawLimiter *rate.Limiter
}

// NewClient creates a new Client with a fresh session id
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	opts := hub.Options()

	size := opts.SendBufferSize
	if size <= 0 {
		size = domain.SendBufferSize
	}

	c := &Client{
		ID:   domain.NewSessionID(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, size),
	}
	if opts.DrawRate > 0 {
		c.drawLimiter = rate.NewLimiter(opts.DrawRate, max(1, opts.DrawBurst))
	}
	return c
}

func (c *Client) allowDraw() bool {
	return c.drawLimiter == nil || c.drawLimiter.Allow()
}

// trySend queues msg without blocking; false means the queue is full
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump pumps frames from the websocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	maxSize := c.hub.Options().MaxMessageSize
	if maxSize <= 0 {
		maxSize = domain.MaxMessageSize
	}
	c.conn.SetReadLimit(maxSize)
	c.conn.SetReadDeadline(time.Now().Add(domain.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(domain.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugf("Unexpected close for %s: %v", c.ID, err)
			}
			break
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Debugf("Malformed frame from %s: %v", c.ID, err)
			continue
		}
		// The hub stamps From on relayed frames; never trust the client's
		msg.From = ""

		c.hub.Dispatch(c, msg)
	}
}

// WritePump pumps frames from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(domain.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(domain.WriteWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(domain.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
