package ws

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
)

// startHub runs a hub until the test ends
func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	hub := NewHub(opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

// newMockClient creates a client without an actual websocket connection suitable for testing
func newMockClient(hub *Hub) *Client {
	return NewClient(hub, nil)
}

// barrier returns once the hub has finished everything queued before it.
// Connecting a throwaway session has no broadcast side effect.
func barrier(hub *Hub) {
	hub.Register(newMockClient(hub))
}

// sendLogin submits a LOGIN for c the way ReadPump would
func sendLogin(hub *Hub, c *Client, username, ack string) {
	payload, _ := json.Marshal(domain.LoginPayload{Username: username})
	hub.Dispatch(c, domain.Message{Type: domain.MessageTypeLogin, Ack: ack, Payload: payload})
}

// sendDraw submits a DRAW_POINTS payload for c
func sendDraw(hub *Hub, c *Client, payload json.RawMessage) {
	hub.Dispatch(c, domain.Message{Type: domain.MessageTypeDrawPoints, Payload: payload})
}

func nextFrame(t *testing.T, c *Client) domain.Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatalf("Send channel of %s closed while waiting for a frame", c.ID)
		}
		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Bad frame %q: %v", data, err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for a frame on %s", c.ID)
	}
	return domain.Message{}
}

func expectFrame(t *testing.T, c *Client, typ domain.MessageType) domain.Message {
	t.Helper()
	msg := nextFrame(t, c)
	if msg.Type != typ {
		t.Fatalf("Expected %s on %s, got %s (%s)", typ, c.ID, msg.Type, msg.Payload)
	}
	return msg
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if ok {
			t.Errorf("Expected no frame on %s, got %s", c.ID, data)
		}
	default:
	}
}

func expectUserList(t *testing.T, c *Client, want map[string]string) {
	t.Helper()
	msg := expectFrame(t, c, domain.MessageTypeUpdateUserList)
	var list domain.UserListPayload
	if err := json.Unmarshal(msg.Payload, &list); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(list.Users, want) {
		t.Errorf("User list on %s = %v, expected %v", c.ID, list.Users, want)
	}
}

func expectAck(t *testing.T, c *Client, ackID string) domain.LoginAckPayload {
	t.Helper()
	msg := expectFrame(t, c, domain.MessageTypeLoginAck)
	if msg.Ack != ackID {
		t.Errorf("Expected ack id %q, got %q", ackID, msg.Ack)
	}
	var ack domain.LoginAckPayload
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		t.Fatal(err)
	}
	return ack
}

func stroke(t *testing.T, color string, pts ...domain.Point) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(domain.DrawPointsPayload{Points: pts, Color: color})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNewHub(t *testing.T) {
	hub := NewHub(DefaultOptions(), nil)
	if hub.clients == nil {
		t.Error("Clients map not initialized")
	}
	if hub.users == nil {
		t.Error("Users map not initialized")
	}
	if hub.register == nil || hub.unregister == nil || hub.inbound == nil {
		t.Error("Channels not initialized")
	}
}

func TestHub_ConnectHasNoBroadcast(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)
	barrier(hub)

	expectNoFrame(t, a)
	expectNoFrame(t, b)
	if hub.ClientCount() != 3 {
		t.Errorf("Expected 3 sessions, got %d", hub.ClientCount())
	}
	if hub.UserCount() != 0 {
		t.Errorf("Expected no logged-in users, got %d", hub.UserCount())
	}
}

func TestHub_AliceBobScenario(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	// A logs in as alice: ack to A, then the list to both
	sendLogin(hub, a, "alice", "1")
	if ack := expectAck(t, a, "1"); !ack.OK || ack.Username != "alice" {
		t.Errorf("Unexpected ack: %+v", ack)
	}
	expectUserList(t, a, map[string]string{a.ID: "alice"})
	expectUserList(t, b, map[string]string{a.ID: "alice"})

	// B logs in as bob
	sendLogin(hub, b, "bob", "7")
	if ack := expectAck(t, b, "7"); !ack.OK {
		t.Errorf("Expected bob to be accepted: %+v", ack)
	}
	both := map[string]string{a.ID: "alice", b.ID: "bob"}
	expectUserList(t, a, both)
	expectUserList(t, b, both)

	// A draws: only B receives it, verbatim
	payload := json.RawMessage(`{"points":[[1,1],[2,2]],"color":"#ff0000"}`)
	sendDraw(hub, a, payload)

	msg := expectFrame(t, b, domain.MessageTypeDrawPoints)
	if string(msg.Payload) != string(payload) {
		t.Errorf("Expected payload %s, got %s", payload, msg.Payload)
	}
	if msg.From != a.ID {
		t.Errorf("Expected from %s, got %s", a.ID, msg.From)
	}

	barrier(hub)
	expectNoFrame(t, a)

	// B disconnects: A sees only alice
	hub.Unregister(b)
	expectUserList(t, a, map[string]string{a.ID: "alice"})
}

func TestHub_UserListAfterEveryLogin(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	names := []string{"ann", "ben", "cat", "dan", "eve"}
	clients := make([]*Client, len(names))
	for i := range clients {
		clients[i] = newMockClient(hub)
		hub.Register(clients[i])
	}

	want := make(map[string]string)
	for i, name := range names {
		sendLogin(hub, clients[i], name, "")
		want[clients[i].ID] = name

		expectAck(t, clients[i], "")
		for _, c := range clients {
			expectUserList(t, c, want)
		}
	}
}

func TestHub_DisconnectStopsDraws(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)
	sendLogin(hub, a, "alice", "")
	sendLogin(hub, b, "bob", "")
	barrier(hub)

	// Drain login traffic
	for len(a.send) > 0 {
		<-a.send
	}
	for len(b.send) > 0 {
		<-b.send
	}

	hub.Unregister(b)
	expectUserList(t, a, map[string]string{a.ID: "alice"})

	// Nothing more reaches B, and B's late frames are ignored
	sendDraw(hub, a, stroke(t, "blue", domain.Point{0, 0}))
	sendDraw(hub, b, stroke(t, "red", domain.Point{5, 5}))
	barrier(hub)

	if _, ok := <-b.send; ok {
		t.Error("Expected B's send channel to be closed and empty")
	}
	expectNoFrame(t, a)
}

func TestHub_DisconnectBeforeLogin(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)
	sendLogin(hub, a, "alice", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "alice"})
	expectUserList(t, b, map[string]string{a.ID: "alice"})

	hub.Unregister(b)
	expectUserList(t, a, map[string]string{a.ID: "alice"})

	if hub.UserCount() != 1 {
		t.Errorf("Expected 1 user, got %d", hub.UserCount())
	}
}

func TestHub_DoubleUnregister(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	hub.Register(a)
	hub.Unregister(a)
	hub.Unregister(a) // must not panic on closed channel
	barrier(hub)

	if hub.ClientCount() != 1 { // the barrier session
		t.Errorf("Expected only the barrier session, got %d", hub.ClientCount())
	}
}

func TestHub_LoginRejections(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"Empty", "", domain.ErrEmptyUsername},
		{"Blank", "   ", domain.ErrEmptyUsername},
		{"Too long", "abcdefghijklmnopqrstuvwxyz0123456789", domain.ErrUsernameTooLong},
		{"Control chars", "bad\x07name", domain.ErrUsernameInvalid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hub := startHub(t, DefaultOptions())
			a := newMockClient(hub)
			b := newMockClient(hub)
			hub.Register(a)
			hub.Register(b)

			sendLogin(hub, a, tc.username, "x")
			ack := expectAck(t, a, "x")
			if ack.OK {
				t.Fatal("Expected rejection")
			}
			if ack.Error == "" {
				t.Error("Expected a reason")
			}

			barrier(hub)
			expectNoFrame(t, a)
			expectNoFrame(t, b)
			if hub.UserCount() != 0 {
				t.Errorf("Registry must be untouched, got %v", hub.Snapshot())
			}
		})
	}
}

func TestHub_MalformedLoginPayload(t *testing.T) {
	hub := startHub(t, DefaultOptions())
	a := newMockClient(hub)
	hub.Register(a)

	hub.Dispatch(a, domain.Message{
		Type:    domain.MessageTypeLogin,
		Ack:     "9",
		Payload: json.RawMessage(`"not an object"`),
	})
	if ack := expectAck(t, a, "9"); ack.OK {
		t.Error("Expected malformed login to be rejected")
	}
}

type stubSuggester struct{ name string }

func (s stubSuggester) Suggest(base string, maxLen int, taken func(string) bool) string {
	if taken(s.name) {
		return ""
	}
	return s.name
}

func TestHub_DuplicateUsernameRejected(t *testing.T) {
	hub := NewHub(DefaultOptions(), nil)
	hub.SetNameSuggester(stubSuggester{name: "Alice Swift"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	sendLogin(hub, a, "alice", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "alice"})
	expectUserList(t, b, map[string]string{a.ID: "alice"})

	sendLogin(hub, b, "ALICE", "2")
	ack := expectAck(t, b, "2")
	if ack.OK {
		t.Fatal("Expected duplicate name to be rejected")
	}
	if ack.Error != domain.ErrUsernameTaken.Error() {
		t.Errorf("Expected %q, got %q", domain.ErrUsernameTaken, ack.Error)
	}
	if ack.Suggestion != "Alice Swift" {
		t.Errorf("Expected suggestion, got %q", ack.Suggestion)
	}

	barrier(hub)
	expectNoFrame(t, a)
	if got := hub.Snapshot(); len(got) != 1 {
		t.Errorf("Expected registry unchanged, got %v", got)
	}
}

func TestHub_DuplicateUsernameAllowed(t *testing.T) {
	opts := DefaultOptions()
	opts.UsernamePolicy = domain.UsernamePolicyAllow
	hub := startHub(t, opts)

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	sendLogin(hub, a, "sam", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "sam"})
	expectUserList(t, b, map[string]string{a.ID: "sam"})

	sendLogin(hub, b, "sam", "")
	if ack := expectAck(t, b, ""); !ack.OK {
		t.Fatalf("Expected shared name to be accepted: %+v", ack)
	}
	expectUserList(t, a, map[string]string{a.ID: "sam", b.ID: "sam"})
}

func TestHub_ReloginOverwrites(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	hub.Register(a)

	sendLogin(hub, a, "alice", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "alice"})

	// Same session may keep or change its own name
	sendLogin(hub, a, "Alice", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "Alice"})

	sendLogin(hub, a, "alicia", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "alicia"})

	// A failed re-login keeps the previous name
	sendLogin(hub, a, "", "")
	if ack := expectAck(t, a, ""); ack.OK {
		t.Error("Expected empty re-login to fail")
	}
	if got := hub.Snapshot()[a.ID]; got != "alicia" {
		t.Errorf("Expected alicia to survive, got %q", got)
	}
}

func TestHub_InvalidDrawsDropped(t *testing.T) {
	payloads := []struct {
		name    string
		payload string
	}{
		{"Not JSON", `nope`},
		{"Empty object", `{}`},
		{"No points", `{"points":[],"color":"red"}`},
		{"No color", `{"points":[[1,2]]}`},
		{"Empty color", `{"points":[[1,2]],"color":""}`},
		{"Short point", `{"points":[[1]],"color":"red"}`},
		{"Point as object", `{"points":[{"x":1,"y":2}],"color":"red"}`},
	}

	hub := startHub(t, DefaultOptions())
	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	for _, tc := range payloads {
		t.Run(tc.name, func(t *testing.T) {
			sendDraw(hub, a, json.RawMessage(tc.payload))
			barrier(hub)
			expectNoFrame(t, a)
			expectNoFrame(t, b)
		})
	}
}

func TestHub_TooManyPointsDropped(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPointsPerEvent = 2
	hub := startHub(t, opts)

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	sendDraw(hub, a, stroke(t, "red", domain.Point{1, 1}, domain.Point{2, 2}, domain.Point{3, 3}))
	barrier(hub)
	expectNoFrame(t, b)

	sendDraw(hub, a, stroke(t, "red", domain.Point{1, 1}, domain.Point{2, 2}))
	expectFrame(t, b, domain.MessageTypeDrawPoints)
}

func TestHub_DrawNotDeduplicated(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	b := newMockClient(hub)
	c := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	payload := stroke(t, "#00ff00", domain.Point{3, 4}, domain.Point{5, 6})
	sendDraw(hub, a, payload)
	sendDraw(hub, a, payload)

	for _, receiver := range []*Client{b, c} {
		for i := 0; i < 2; i++ {
			msg := expectFrame(t, receiver, domain.MessageTypeDrawPoints)
			if string(msg.Payload) != string(payload) {
				t.Errorf("Payload mismatch: %s", msg.Payload)
			}
		}
		barrier(hub)
		expectNoFrame(t, receiver)
	}
	expectNoFrame(t, a)
}

func TestHub_DrawBeforeLoginIsRelayed(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	sendDraw(hub, a, stroke(t, "red", domain.Point{1, 1}))
	msg := expectFrame(t, b, domain.MessageTypeDrawPoints)
	if msg.From != a.ID {
		t.Errorf("Expected from %s, got %s", a.ID, msg.From)
	}
}

func TestHub_DrawRateLimited(t *testing.T) {
	opts := DefaultOptions()
	opts.DrawRate = 0.001
	opts.DrawBurst = 2
	hub := startHub(t, opts)

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	for i := 0; i < 5; i++ {
		sendDraw(hub, a, stroke(t, "red", domain.Point{float64(i), 0}))
	}
	barrier(hub)

	if got := len(b.send); got != 2 {
		t.Errorf("Expected 2 relayed strokes within the burst, got %d", got)
	}
}

func TestHub_DefaultOptionsRelayEveryStroke(t *testing.T) {
	opts := DefaultOptions()
	opts.SendBufferSize = 4096
	hub := startHub(t, opts)

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	const strokes = 300 // more than DefaultDrawBurst
	for i := 0; i < strokes; i++ {
		sendDraw(hub, a, stroke(t, "red", domain.Point{float64(i), 0}))
	}
	barrier(hub)

	if got := len(b.send); got != strokes {
		t.Errorf("Sent %d valid strokes, peer received %d", strokes, got)
	}
}

func TestHub_InvalidDrawsDoNotUseRateBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.DrawRate = 0.001
	opts.DrawBurst = 1
	hub := startHub(t, opts)

	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	for i := 0; i < 3; i++ {
		sendDraw(hub, a, json.RawMessage(`{"points":[],"color":"red"}`))
	}
	sendDraw(hub, a, stroke(t, "red", domain.Point{1, 1}))
	barrier(hub)

	if got := len(b.send); got != 1 {
		t.Errorf("Expected the valid stroke to be relayed, peer received %d", got)
	}
}

func TestHub_SlowClientEvicted(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := newMockClient(hub)
	hub.Register(a)
	sendLogin(hub, a, "alice", "")
	expectAck(t, a, "")
	expectUserList(t, a, map[string]string{a.ID: "alice"})

	slow := &Client{ID: "slow", hub: hub, send: make(chan []byte, 1)}
	hub.Register(slow)

	sendDraw(hub, a, stroke(t, "red", domain.Point{1, 1})) // fills slow's queue
	sendDraw(hub, a, stroke(t, "red", domain.Point{2, 2})) // overflows it

	expectUserList(t, a, map[string]string{a.ID: "alice"})

	msg := expectFrame(t, slow, domain.MessageTypeDrawPoints)
	if msg.From != a.ID {
		t.Errorf("Unexpected frame on slow client: %+v", msg)
	}
	if _, ok := <-slow.send; ok {
		t.Error("Expected slow client's queue to be closed")
	}
}

func TestHub_EvictedOnLoginAckBroadcastsOnce(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	observer := newMockClient(hub)
	hub.Register(observer)

	// No queue room at all, so the ack itself overflows
	full := &Client{ID: "full", hub: hub, send: make(chan []byte)}
	hub.Register(full)

	sendLogin(hub, full, "alice", "a1")
	barrier(hub)

	expectUserList(t, observer, map[string]string{})
	expectNoFrame(t, observer)
	if hub.UserCount() != 0 {
		t.Errorf("Expected evicted session to leave the registry, got %d users", hub.UserCount())
	}
}

func TestHub_UnknownTypeIgnored(t *testing.T) {
	hub := startHub(t, DefaultOptions())
	a := newMockClient(hub)
	b := newMockClient(hub)
	hub.Register(a)
	hub.Register(b)

	hub.Dispatch(a, domain.Message{Type: "UPDATE_USER_LIST", Payload: json.RawMessage(`{"users":{}}`)})
	hub.Dispatch(a, domain.Message{Type: "chat"})
	barrier(hub)

	expectNoFrame(t, a)
	expectNoFrame(t, b)
}

func TestHub_SnapshotIsCopy(t *testing.T) {
	hub := startHub(t, DefaultOptions())
	a := newMockClient(hub)
	hub.Register(a)
	sendLogin(hub, a, "alice", "")
	expectAck(t, a, "")

	snap := hub.Snapshot()
	snap["intruder"] = "mallory"

	if _, ok := hub.Snapshot()["intruder"]; ok {
		t.Error("Snapshot must not expose the registry")
	}
}

type recordingSink struct {
	mu       sync.Mutex
	presence []map[string]string
	draws    []string
}

func (r *recordingSink) Presence(users map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, users)
}

func (r *recordingSink) Draw(from string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws = append(r.draws, from+" "+string(payload))
}

func TestHub_EventSink(t *testing.T) {
	sink := &recordingSink{}
	hub := NewHub(DefaultOptions(), nil)
	hub.SetEventSink(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := newMockClient(hub)
	hub.Register(a)
	sendLogin(hub, a, "alice", "")
	sendDraw(hub, a, json.RawMessage(`{"points":[[1,1]],"color":"red"}`))
	sendDraw(hub, a, json.RawMessage(`{"points":[],"color":"red"}`)) // dropped, not mirrored
	hub.Unregister(a)
	barrier(hub)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.presence) != 2 {
		t.Fatalf("Expected 2 presence events, got %d", len(sink.presence))
	}
	if !reflect.DeepEqual(sink.presence[0], map[string]string{a.ID: "alice"}) {
		t.Errorf("Unexpected first presence: %v", sink.presence[0])
	}
	if len(sink.presence[1]) != 0 {
		t.Errorf("Expected empty list after disconnect, got %v", sink.presence[1])
	}
	if len(sink.draws) != 1 || sink.draws[0] != a.ID+` {"points":[[1,1]],"color":"red"}` {
		t.Errorf("Unexpected draws: %v", sink.draws)
	}
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	hub := NewHub(DefaultOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	a := newMockClient(hub)
	hub.Register(a)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Hub did not stop")
	}

	if _, ok := <-a.send; ok {
		t.Error("Expected send channel to be closed on shutdown")
	}

	// Calls after shutdown must not block
	done := make(chan struct{})
	go func() {
		hub.Register(newMockClient(hub))
		sendLogin(hub, a, "alice", "")
		hub.Unregister(a)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Hub calls blocked after shutdown")
	}
}

func TestHub_RaceCondition(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newMockClient(hub)
			hub.Register(c)
			sendLogin(hub, c, "user", "")
			sendDraw(hub, c, json.RawMessage(`{"points":[[1,1]],"color":"red"}`))
			_ = hub.Snapshot()
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()
	barrier(hub)

	if hub.UserCount() != 0 {
		t.Errorf("Expected empty registry, got %v", hub.Snapshot())
	}
}
