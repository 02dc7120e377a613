// Package state is the in-memory container the sync client writes into and
// the rest of the application reads from.
package state

import (
	"sort"
	"sync"
	"time"

	"kit-sync/internal/model"
)

type Store struct {
	mu sync.RWMutex

	status model.ConnectionStatus

	messages     map[model.Scope][]model.Message
	messageScope map[int64]model.Scope

	presence  map[int64]model.Presence
	typing    map[model.Scope]map[int64]struct{}
	reactions map[int64]map[int64]model.Reaction // message id -> reaction id

	joined  map[int64]struct{}
	members map[int64]map[int64]model.ChannelMember
}

func New() *Store {
	return &Store{
		status:       model.StatusDisconnected,
		messages:     make(map[model.Scope][]model.Message),
		messageScope: make(map[int64]model.Scope),
		presence:     make(map[int64]model.Presence),
		typing:       make(map[model.Scope]map[int64]struct{}),
		reactions:    make(map[int64]map[int64]model.Reaction),
		joined:       make(map[int64]struct{}),
		members:      make(map[int64]map[int64]model.ChannelMember),
	}
}

func (s *Store) SetConnectionStatus(status model.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Store) ConnectionStatus() model.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// AddMessage appends msg to its scope. A message whose id is already held
// replaces the stored copy in place.
func (s *Store) AddMessage(scope model.Scope, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMessageLocked(scope, msg)
}

func (s *Store) addMessageLocked(scope model.Scope, msg model.Message) {
	if prev, ok := s.messageScope[msg.ID]; ok {
		list := s.messages[prev]
		for i := range list {
			if list[i].ID == msg.ID {
				if prev == scope {
					list[i] = msg
					return
				}
				s.messages[prev] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	s.messages[scope] = append(s.messages[scope], msg)
	s.messageScope[msg.ID] = scope
}

// LoadHistory merges backfilled messages into scope, oldest first.
func (s *Store) LoadHistory(scope model.Scope, msgs []model.Message) {
	sorted := append([]model.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SentAt.Before(sorted[j].SentAt) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range sorted {
		s.addMessageLocked(scope, msg)
	}
}

// MarkMessageRead updates only the read metadata of the named message.
// Receipts for unknown messages are ignored.
func (s *Store) MarkMessageRead(r model.ReadReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.messageScope[r.MessageID]
	if !ok {
		return
	}
	list := s.messages[scope]
	for i := range list {
		if list[i].ID != r.MessageID {
			continue
		}
		at := r.ReadAt
		list[i].IsRead = true
		list[i].ReadBy = r.ReaderID
		list[i].ReadAt = &at
		return
	}
}

func (s *Store) Messages(scope model.Scope) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Message(nil), s.messages[scope]...)
}

func (s *Store) Message(id int64) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.messageScope[id]
	if !ok {
		return model.Message{}, false
	}
	for _, m := range s.messages[scope] {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// UnreadCount counts messages in scope not yet read.
func (s *Store) UnreadCount(scope model.Scope) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages[scope] {
		if !m.IsRead {
			n++
		}
	}
	return n
}

// SetPresence updates the online flag, keeping any status message.
func (s *Store) SetPresence(p model.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.presence[p.UserID]
	prev.UserID = p.UserID
	prev.Online = p.Online
	prev.OnlineKnown = true
	prev.ChangedAt = p.ChangedAt
	s.presence[p.UserID] = prev
}

// SetStatusMessage updates the status field only.
func (s *Store) SetStatusMessage(userID int64, status string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.presence[userID]
	p.UserID = userID
	p.StatusMessage = status
	p.ChangedAt = at
	s.presence[userID] = p
}

// Presence reports false when nothing is known about the user, which is not
// the same as offline.
func (s *Store) Presence(userID int64) (model.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[userID]
	return p, ok
}

// Online reports known=false until a presence change has been seen for the
// user, even if a status message is held.
func (s *Store) Online(userID int64) (online, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.presence[userID]
	return p.Online, p.OnlineKnown
}

func (s *Store) SetTyping(userID int64, scope model.Scope, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.typing[scope]
	if !typing {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.typing, scope)
		}
		return
	}
	if users == nil {
		users = make(map[int64]struct{})
		s.typing[scope] = users
	}
	users[userID] = struct{}{}
}

// Typing lists the users currently typing in scope, by id.
func (s *Store) Typing(scope model.Scope) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.typing[scope]))
	for id := range s.typing[scope] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) AddReaction(r model.Reaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.reactions[r.MessageID]
	if set == nil {
		set = make(map[int64]model.Reaction)
		s.reactions[r.MessageID] = set
	}
	set[r.ID] = r
}

// RemoveReaction drops the reaction. messageID may be zero when the backend
// did not say which message it belonged to.
func (s *Store) RemoveReaction(reactionID, messageID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID != 0 {
		s.removeReactionLocked(messageID, reactionID)
		return
	}
	for mid, set := range s.reactions {
		if _, ok := set[reactionID]; ok {
			s.removeReactionLocked(mid, reactionID)
			return
		}
	}
}

func (s *Store) removeReactionLocked(messageID, reactionID int64) {
	set := s.reactions[messageID]
	delete(set, reactionID)
	if len(set) == 0 {
		delete(s.reactions, messageID)
	}
}

func (s *Store) Reactions(messageID int64) []model.Reaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reaction, 0, len(s.reactions[messageID]))
	for _, r := range s.reactions[messageID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ChannelJoined(channelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined[channelID] = struct{}{}
}

func (s *Store) JoinedChannels() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) ChannelMemberJoined(m model.ChannelMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.members[m.ChannelID]
	if set == nil {
		set = make(map[int64]model.ChannelMember)
		s.members[m.ChannelID] = set
	}
	set[m.UserID] = m
}

func (s *Store) ChannelMemberLeft(m model.ChannelMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.members[m.ChannelID]
	delete(set, m.UserID)
	if len(set) == 0 {
		delete(s.members, m.ChannelID)
	}
}

func (s *Store) Members(channelID int64) []model.ChannelMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChannelMember, 0, len(s.members[channelID]))
	for _, m := range s.members[channelID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
