package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"kit-sync/internal/clock"
	"kit-sync/internal/model"
	"kit-sync/internal/notify"
)

type emitted struct {
	event   string
	payload string
}

type fakeSocket struct {
	mu      sync.Mutex
	onEvent EventFunc
	emits   []emitted
	closed  bool
}

func (s *fakeSocket) Emit(event string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := emitted{event: event}
	if len(args) > 0 {
		data, err := json.Marshal(args[0])
		if err != nil {
			return err
		}
		e.payload = string(data)
	}
	s.emits = append(s.emits, e)
	return nil
}

func (s *fakeSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) sent() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emitted(nil), s.emits...)
}

func (s *fakeSocket) countSent(event string) int {
	n := 0
	for _, e := range s.sent() {
		if e.event == event {
			n++
		}
	}
	return n
}

// push delivers an event as the transport would, JSON-encoding args.
func (s *fakeSocket) push(t *testing.T, event string, args ...any) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			t.Fatalf("encode %s payload: %v", event, err)
		}
		raw = append(raw, data)
	}
	s.onEvent(event, raw)
}

func (s *fakeSocket) pushRaw(event string, raw ...string) {
	args := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		args = append(args, json.RawMessage(r))
	}
	s.onEvent(event, args)
}

type fakeDialer struct {
	mu      sync.Mutex
	tokens  []string
	sockets []*fakeSocket
}

func (d *fakeDialer) Dial(token string, onEvent EventFunc) Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSocket{onEvent: onEvent}
	d.tokens = append(d.tokens, token)
	d.sockets = append(d.sockets, s)
	return s
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

type scopedMessage struct {
	scope model.Scope
	msg   model.Message
}

// recordingSink keeps every update it receives, applying read receipts to
// the recorded messages so tests can inspect the result.
type recordingSink struct {
	mu        sync.Mutex
	statuses  []model.ConnectionStatus
	messages  []scopedMessage
	receipts  []model.ReadReceipt
	presence  map[int64]model.Presence
	typing    map[typingKey]bool
	reactions map[int64]model.Reaction
	joined    []int64
	members   map[int64][]int64

	panicOnReaction bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		presence:  make(map[int64]model.Presence),
		typing:    make(map[typingKey]bool),
		reactions: make(map[int64]model.Reaction),
		members:   make(map[int64][]int64),
	}
}

func (s *recordingSink) SetConnectionStatus(status model.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) AddMessage(scope model.Scope, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, scopedMessage{scope: scope, msg: msg})
}

func (s *recordingSink) MarkMessageRead(r model.ReadReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	for i := range s.messages {
		if s.messages[i].msg.ID == r.MessageID {
			at := r.ReadAt
			s.messages[i].msg.IsRead = true
			s.messages[i].msg.ReadBy = r.ReaderID
			s.messages[i].msg.ReadAt = &at
		}
	}
}

func (s *recordingSink) SetPresence(p model.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.presence[p.UserID]
	p.StatusMessage = prev.StatusMessage
	s.presence[p.UserID] = p
}

func (s *recordingSink) SetStatusMessage(userID int64, status string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.presence[userID]
	p.UserID = userID
	p.StatusMessage = status
	p.ChangedAt = at
	s.presence[userID] = p
}

func (s *recordingSink) SetTyping(userID int64, scope model.Scope, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing[typingKey{userID: userID, scope: scope}] = typing
}

func (s *recordingSink) AddReaction(r model.Reaction) {
	if s.panicOnReaction {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactions[r.ID] = r
}

func (s *recordingSink) RemoveReaction(reactionID, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reactions, reactionID)
}

func (s *recordingSink) ChannelJoined(channelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, channelID)
}

func (s *recordingSink) ChannelMemberJoined(m model.ChannelMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ChannelID] = append(s.members[m.ChannelID], m.UserID)
}

func (s *recordingSink) ChannelMemberLeft(m model.ChannelMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.members[m.ChannelID][:0]
	for _, id := range s.members[m.ChannelID] {
		if id != m.UserID {
			kept = append(kept, id)
		}
	}
	s.members[m.ChannelID] = kept
}

func (s *recordingSink) isTyping(userID int64, scope model.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[typingKey{userID: userID, scope: scope}]
}

func (s *recordingSink) lastStatus() model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func (s *recordingSink) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *recordingSink) presenceOf(userID int64) (model.Presence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[userID]
	return p, ok
}

type harness struct {
	client *Client
	dialer *fakeDialer
	sink   *recordingSink
	clock  *clock.Fake
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(n notify.Notifier) *harness {
	h := &harness{
		dialer: &fakeDialer{},
		sink:   newRecordingSink(),
		clock:  clock.NewFake(epoch),
	}
	h.client = NewClient(Deps{
		Dialer:   h.dialer,
		Sink:     h.sink,
		Notifier: n,
		Clock:    h.clock,
	}, Options{})
	return h
}

// connected returns a harness whose client has completed the handshake.
func connected(t *testing.T, n notify.Notifier) (*harness, *fakeSocket) {
	t.Helper()
	h := newHarness(n)
	h.client.Connect("tok-A")
	sock := h.dialer.last()
	sock.push(t, "connect")
	if !h.client.IsConnected() {
		t.Fatalf("client not connected after connect event")
	}
	return h, sock
}
