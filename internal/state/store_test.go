package state

import (
	"testing"
	"time"

	"kit-sync/internal/model"
	"kit-sync/internal/realtime"
)

var _ realtime.Sink = (*Store)(nil)

func TestStore_AddMessageDeduplicatesByID(t *testing.T) {
	s := New()
	kit := model.KitScope(42)

	s.AddMessage(kit, model.Message{ID: 1, ScopeRef: model.RefOf(kit), Subject: "Hi"})
	s.AddMessage(kit, model.Message{ID: 2, ScopeRef: model.RefOf(kit), Subject: "Second"})
	s.AddMessage(kit, model.Message{ID: 1, ScopeRef: model.RefOf(kit), Subject: "Hi (edited)"})

	msgs := s.Messages(kit)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != 1 || msgs[0].Subject != "Hi (edited)" {
		t.Fatalf("expected message 1 replaced in place, got %+v", msgs[0])
	}
}

func TestStore_MessageMovesScope(t *testing.T) {
	s := New()
	s.AddMessage(model.KitScope(1), model.Message{ID: 5})
	s.AddMessage(model.ChannelScope(2), model.Message{ID: 5})

	if n := len(s.Messages(model.KitScope(1))); n != 0 {
		t.Fatalf("expected old scope emptied, got %d", n)
	}
	if n := len(s.Messages(model.ChannelScope(2))); n != 1 {
		t.Fatalf("expected message in new scope, got %d", n)
	}
}

func TestStore_MarkMessageReadOnlyTouchesReadMetadata(t *testing.T) {
	s := New()
	kit := model.KitScope(42)
	sent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.AddMessage(kit, model.Message{ID: 1, ScopeRef: model.RefOf(kit), SenderName: "Alice", Subject: "Hi", SentAt: sent})

	readAt := sent.Add(time.Minute)
	s.MarkMessageRead(model.ReadReceipt{MessageID: 1, ReaderID: 2, ReadAt: readAt})
	s.MarkMessageRead(model.ReadReceipt{MessageID: 99, ReaderID: 2, ReadAt: readAt})

	m, ok := s.Message(1)
	if !ok {
		t.Fatalf("message 1 missing")
	}
	if m.ID != 1 || m.SenderName != "Alice" || m.Subject != "Hi" || !m.SentAt.Equal(sent) {
		t.Fatalf("identity fields changed: %+v", m)
	}
	if !m.IsRead || m.ReadBy != 2 || m.ReadAt == nil || !m.ReadAt.Equal(readAt) {
		t.Fatalf("read metadata not applied: %+v", m)
	}
	if s.UnreadCount(kit) != 0 {
		t.Fatalf("expected no unread messages")
	}
	if _, ok := s.Message(99); ok {
		t.Fatalf("receipt for unknown message must not create one")
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	kit := model.KitScope(1)
	s.AddMessage(kit, model.Message{ID: 1, Subject: "a"})

	msgs := s.Messages(kit)
	msgs[0].Subject = "mutated"

	if got := s.Messages(kit)[0].Subject; got != "a" {
		t.Fatalf("store mutated through returned slice: %q", got)
	}
}

func TestStore_LoadHistoryOrdersAndMerges(t *testing.T) {
	s := New()
	ch := model.ChannelScope(7)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.AddMessage(ch, model.Message{ID: 3, SentAt: base.Add(3 * time.Minute)})
	s.LoadHistory(ch, []model.Message{
		{ID: 2, SentAt: base.Add(2 * time.Minute)},
		{ID: 1, SentAt: base.Add(time.Minute)},
		{ID: 3, SentAt: base.Add(3 * time.Minute), IsRead: true},
	})

	msgs := s.Messages(ch)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].ID != 3 || !msgs[0].IsRead {
		t.Fatalf("expected live message kept in place and refreshed, got %+v", msgs[0])
	}
	if msgs[1].ID != 1 || msgs[2].ID != 2 {
		t.Fatalf("expected history appended oldest first, got %d,%d", msgs[1].ID, msgs[2].ID)
	}
}

func TestStore_PresenceAndStatusAreIndependent(t *testing.T) {
	s := New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, ok := s.Presence(2); ok {
		t.Fatalf("unknown user must report no presence")
	}

	s.SetStatusMessage(2, "calibrating", now)
	s.SetPresence(model.Presence{UserID: 2, Online: true, ChangedAt: now.Add(time.Second)})

	p, ok := s.Presence(2)
	if !ok || !p.Online || !p.OnlineKnown || p.StatusMessage != "calibrating" {
		t.Fatalf("unexpected presence: %+v", p)
	}

	s.SetPresence(model.Presence{UserID: 2, Online: false, ChangedAt: now.Add(2 * time.Second)})
	p, _ = s.Presence(2)
	if p.Online || p.StatusMessage != "calibrating" {
		t.Fatalf("offline must keep status: %+v", p)
	}
}

func TestStore_StatusForUnknownUserLeavesOnlineUnknown(t *testing.T) {
	s := New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.SetStatusMessage(9, "at lunch", now)

	p, ok := s.Presence(9)
	if !ok || p.StatusMessage != "at lunch" {
		t.Fatalf("expected status recorded, got %+v", p)
	}
	if p.OnlineKnown {
		t.Fatalf("status alone must not claim online-ness: %+v", p)
	}
	if _, known := s.Online(9); known {
		t.Fatalf("expected online-ness unknown")
	}

	s.SetPresence(model.Presence{UserID: 9, Online: false, ChangedAt: now.Add(time.Second)})
	online, known := s.Online(9)
	if !known || online {
		t.Fatalf("expected known offline, got online=%v known=%v", online, known)
	}
}

func TestStore_Typing(t *testing.T) {
	s := New()
	kit := model.KitScope(42)

	s.SetTyping(8, kit, true)
	s.SetTyping(7, kit, true)
	s.SetTyping(7, model.ChannelScope(1), true)

	got := s.Typing(kit)
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Fatalf("unexpected typing users: %v", got)
	}

	s.SetTyping(7, kit, false)
	s.SetTyping(7, kit, false)
	s.SetTyping(8, kit, false)
	if len(s.Typing(kit)) != 0 {
		t.Fatalf("expected nobody typing")
	}
	if len(s.Typing(model.ChannelScope(1))) != 1 {
		t.Fatalf("other scope must be unaffected")
	}
}

func TestStore_Reactions(t *testing.T) {
	s := New()
	s.AddReaction(model.Reaction{ID: 3, MessageID: 1, Kind: "thumbs_up"})
	s.AddReaction(model.Reaction{ID: 4, MessageID: 1, Kind: "eyes"})
	s.AddReaction(model.Reaction{ID: 5, MessageID: 2, Kind: "eyes"})

	s.RemoveReaction(3, 1)
	s.RemoveReaction(5, 0)

	r := s.Reactions(1)
	if len(r) != 1 || r[0].ID != 4 {
		t.Fatalf("unexpected reactions on message 1: %+v", r)
	}
	if len(s.Reactions(2)) != 0 {
		t.Fatalf("expected removal without message id to find reaction 5")
	}
}

func TestStore_ChannelMembership(t *testing.T) {
	s := New()
	s.ChannelJoined(9)
	s.ChannelJoined(7)
	s.ChannelJoined(7)
	s.ChannelMemberJoined(model.ChannelMember{ChannelID: 7, UserID: 2, UserName: "Bob"})
	s.ChannelMemberJoined(model.ChannelMember{ChannelID: 7, UserID: 1, UserName: "Alice"})
	s.ChannelMemberLeft(model.ChannelMember{ChannelID: 7, UserID: 2})

	joined := s.JoinedChannels()
	if len(joined) != 2 || joined[0] != 7 || joined[1] != 9 {
		t.Fatalf("unexpected joined channels: %v", joined)
	}
	members := s.Members(7)
	if len(members) != 1 || members[0].UserName != "Alice" {
		t.Fatalf("unexpected members: %+v", members)
	}
}

func TestStore_ConnectionStatus(t *testing.T) {
	s := New()
	if s.ConnectionStatus() != model.StatusDisconnected {
		t.Fatalf("expected initial status disconnected")
	}
	s.SetConnectionStatus(model.StatusConnected)
	if s.ConnectionStatus() != model.StatusConnected {
		t.Fatalf("expected connected")
	}
}
