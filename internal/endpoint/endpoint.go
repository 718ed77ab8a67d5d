// Package endpoint is the client half of the relay protocol: it logs a
// session in, emits strokes and applies the hub's broadcasts to a local
// drawing surface and user roster.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
)

// ErrClosed is returned once the connection to the hub is gone
var ErrClosed = errors.New("endpoint: connection closed")

// Surface is the local rendering target
type Surface interface {
	DrawLine(points []domain.Point, color string)
	Clear()
}

// Roster displays the logged-in users
type Roster interface {
	ReplaceUsers(users map[string]string)
}

// LoginState tracks the outcome of RequestLogin
type LoginState int

const (
	LoginNone LoginState = iota
	// LoginPending means a LOGIN was sent and no ack has arrived. There is no
	// protocol timeout: without an ack the endpoint stays pending.
	LoginPending
	LoginAccepted
	LoginRejected
)

func (s LoginState) String() string {
	switch s {
	case LoginPending:
		return "pending"
	case LoginAccepted:
		return "accepted"
	case LoginRejected:
		return "rejected"
	default:
		return "none"
	}
}

// LoginResult is the hub's answer to a LOGIN
type LoginResult struct {
	OK         bool
	Username   string
	Err        error  // set when OK is false
	Suggestion string // alternative offered for a taken name
}

// Options configures an Endpoint. Surface and Roster may be nil.
type Options struct {
	Surface Surface
	Roster  Roster
	Header  http.Header
	Dialer  *websocket.Dialer
	Logger  *logger.Logger
}

// Endpoint is one connected session
type Endpoint struct {
	conn    *websocket.Conn
	surface Surface
	roster  Roster
	log     *logger.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan LoginResult
	state    LoginState
	username string
	err      error

	done chan struct{}
}

// Dial connects to the hub's websocket URL
func Dial(ctx context.Context, url string, opts Options) (*Endpoint, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection and starts reading from it
func New(conn *websocket.Conn, opts Options) *Endpoint {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	e := &Endpoint{
		conn:    conn,
		surface: opts.Surface,
		roster:  opts.Roster,
		log:     log,
		pending: make(map[string]chan LoginResult),
		done:    make(chan struct{}),
	}
	go e.readLoop()
	return e
}

// RequestLogin sends LOGIN and waits for the correlated LOGIN_ACK.
// If ctx ends first the login stays pending; a late ack still updates LoginState.
// A rejection is reported in the result, not as an error.
func (e *Endpoint) RequestLogin(ctx context.Context, username string) (LoginResult, error) {
	ackID := uuid.New().String()
	ch := make(chan LoginResult, 1)

	e.mu.Lock()
	if e.err != nil {
		e.mu.Unlock()
		return LoginResult{}, ErrClosed
	}
	e.pending[ackID] = ch
	e.state = LoginPending
	e.mu.Unlock()

	if err := e.send(domain.MessageTypeLogin, ackID, domain.LoginPayload{Username: username}); err != nil {
		e.forget(ackID)
		return LoginResult{}, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		e.forget(ackID)
		return LoginResult{}, ctx.Err()
	case <-e.done:
		return LoginResult{}, ErrClosed
	}
}

// EmitDrawPoints sends one stroke; nothing is acknowledged
func (e *Endpoint) EmitDrawPoints(points []domain.Point, color string) error {
	stroke := domain.DrawPointsPayload{Points: points, Color: color}
	if err := stroke.Validate(0); err != nil {
		return err
	}
	return e.send(domain.MessageTypeDrawPoints, "", stroke)
}

// ClearLocal wipes the local surface only; other sessions are unaffected
func (e *Endpoint) ClearLocal() {
	if e.surface != nil {
		e.surface.Clear()
	}
}

// LoginState returns the current state and the accepted username, if any
func (e *Endpoint) LoginState() (LoginState, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.username
}

// Done is closed when the connection ends
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Err reports why the connection ended
func (e *Endpoint) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Close sends a close frame and tears down the connection
func (e *Endpoint) Close() error {
	e.writeMu.Lock()
	_ = e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(domain.WriteWait))
	e.writeMu.Unlock()

	err := e.conn.Close()
	<-e.done
	return err
}

func (e *Endpoint) forget(ackID string) {
	e.mu.Lock()
	delete(e.pending, ackID)
	e.mu.Unlock()
}

func (e *Endpoint) send(t domain.MessageType, ack string, payload any) error {
	frame, err := domain.Encode(t, ack, "", payload)
	if err != nil {
		return err
	}

	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.conn.SetWriteDeadline(time.Now().Add(domain.WriteWait))
	if err := e.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

// readLoop applies inbound frames one at a time, in arrival order
func (e *Endpoint) readLoop() {
	defer close(e.done)

	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			e.err = ErrClosed
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				e.err = fmt.Errorf("%w: %v", ErrClosed, err)
			}
			e.mu.Unlock()
			return
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			e.log.Debugf("Malformed frame from hub: %v", err)
			continue
		}
		e.handle(msg)
	}
}

func (e *Endpoint) handle(msg domain.Message) {
	switch msg.Type {
	case domain.MessageTypeLoginAck:
		var ack domain.LoginAckPayload
		if err := json.Unmarshal(msg.Payload, &ack); err != nil {
			e.log.Debugf("Malformed LOGIN_ACK: %v", err)
			return
		}
		e.onLoginAck(msg.Ack, ack)

	case domain.MessageTypeDrawPoints:
		e.OnReceiveDrawPoints(msg.Payload)

	case domain.MessageTypeUpdateUserList:
		var list domain.UserListPayload
		if err := json.Unmarshal(msg.Payload, &list); err != nil {
			e.log.Debugf("Malformed UPDATE_USER_LIST: %v", err)
			return
		}
		e.OnReceiveUserList(list.Users)

	default:
		e.log.Debugf("Ignoring frame type %q", msg.Type)
	}
}

// OnReceiveDrawPoints draws a relayed stroke on the surface, keeping point order.
// Strokes that fail validation never reach the surface.
func (e *Endpoint) OnReceiveDrawPoints(payload json.RawMessage) {
	var stroke domain.DrawPointsPayload
	if err := json.Unmarshal(payload, &stroke); err != nil {
		e.log.Debugf("Malformed DRAW_POINTS: %v", err)
		return
	}
	if err := stroke.Validate(0); err != nil {
		e.log.Debugf("Dropping invalid DRAW_POINTS: %v", err)
		return
	}
	if e.surface != nil {
		e.surface.DrawLine(stroke.Points, stroke.Color)
	}
}

// OnReceiveUserList replaces the roster with the hub's snapshot
func (e *Endpoint) OnReceiveUserList(users map[string]string) {
	if users == nil {
		users = map[string]string{}
	}
	if e.roster != nil {
		e.roster.ReplaceUsers(users)
	}
}

func (e *Endpoint) onLoginAck(ackID string, ack domain.LoginAckPayload) {
	res := LoginResult{
		OK:         ack.OK,
		Username:   ack.Username,
		Suggestion: ack.Suggestion,
	}
	if !ack.OK {
		res.Err = loginError(ack.Error)
	}

	e.mu.Lock()
	switch {
	case ack.OK:
		e.state = LoginAccepted
		e.username = ack.Username
	case e.username != "":
		// The hub keeps the previous name when a re-login fails
		e.state = LoginAccepted
	default:
		e.state = LoginRejected
	}
	ch, ok := e.pending[ackID]
	delete(e.pending, ackID)
	e.mu.Unlock()

	if ok {
		ch <- res
	}
}

// loginError maps the hub's reason text back to a domain sentinel
func loginError(reason string) error {
	for _, err := range []error{
		domain.ErrEmptyUsername,
		domain.ErrUsernameTooLong,
		domain.ErrUsernameInvalid,
		domain.ErrUsernameTaken,
	} {
		if strings.HasPrefix(reason, err.Error()) {
			if reason == err.Error() {
				return err
			}
			return fmt.Errorf("%w%s", err, strings.TrimPrefix(reason, err.Error()))
		}
	}
	if reason == "" {
		reason = "login rejected"
	}
	return errors.New(reason)
}
