// Package store is the development backend's in-memory message log.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"kit-sync/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidScope = errors.New("invalid scope")
	ErrEmptyMessage = errors.New("empty message")
)

const DefaultListLimit = 100

type Store struct {
	mu sync.RWMutex

	reactions map[int64]reactionEntry
	members   map[int64]map[int64]model.ChannelMember

	messages *messageStore
	seq      *seqGenerator
}

type reactionEntry struct {
	reaction model.Reaction
	scope    model.Scope
}

func New() *Store {
	return &Store{
		reactions: make(map[int64]reactionEntry),
		members:   make(map[int64]map[int64]model.ChannelMember),
		messages:  newMessageStore(),
		seq:       newSeqGenerator(),
	}
}

// AppendMessage stores a message from sender into scope, assigning its id
// and timestamp.
func (s *Store) AppendMessage(scope model.Scope, sender model.ChannelMember, req model.SendMessageRequest, now time.Time) (model.Message, error) {
	if !scope.Valid() {
		return model.Message{}, ErrInvalidScope
	}
	if strings.TrimSpace(req.Body) == "" && strings.TrimSpace(req.Subject) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	name := sender.UserName
	if name == "" {
		name = req.SenderName
	}
	msg := model.Message{
		ID:          s.seq.next("message"),
		ScopeRef:    model.RefOf(scope),
		SenderID:    sender.UserID,
		SenderName:  name,
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Body:        req.Body,
		SentAt:      now.UTC(),
	}
	s.messages.append(scope, msg)
	return msg, nil
}

func (s *Store) GetMessage(id int64) (model.Message, model.Scope, bool) {
	return s.messages.get(id)
}

// MarkRead records the read receipt on the message.
func (s *Store) MarkRead(messageID, readerID int64, now time.Time) (model.Message, model.Scope, error) {
	_, scope, ok := s.messages.get(messageID)
	if !ok {
		return model.Message{}, model.Scope{}, ErrNotFound
	}
	at := now.UTC()
	msg, ok := s.messages.update(messageID, func(m *model.Message) {
		m.IsRead = true
		m.ReadBy = readerID
		m.ReadAt = &at
	})
	if !ok {
		return model.Message{}, model.Scope{}, ErrNotFound
	}
	return msg, scope, nil
}

// ListMessages returns up to limit messages of scope with an id above after.
func (s *Store) ListMessages(scope model.Scope, after int64, limit int) ([]model.Message, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.messages.getAfter(scope, after, limit), nil
}

// AddReaction attaches a reaction to a stored message and reports the scope
// it belongs to.
func (s *Store) AddReaction(messageID, userID int64, kind string, now time.Time) (model.Reaction, model.Scope, error) {
	if strings.TrimSpace(kind) == "" {
		return model.Reaction{}, model.Scope{}, errors.New("empty reaction")
	}
	_, scope, ok := s.messages.get(messageID)
	if !ok {
		return model.Reaction{}, model.Scope{}, ErrNotFound
	}

	r := model.Reaction{
		ID:        s.seq.next("reaction"),
		MessageID: messageID,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: now.UTC(),
	}
	s.mu.Lock()
	s.reactions[r.ID] = reactionEntry{reaction: r, scope: scope}
	s.mu.Unlock()
	return r, scope, nil
}

// RemoveReaction deletes a reaction owned by userID.
func (s *Store) RemoveReaction(reactionID, userID int64) (model.Reaction, model.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.reactions[reactionID]
	if !ok {
		return model.Reaction{}, model.Scope{}, ErrNotFound
	}
	if e.reaction.UserID != userID {
		return model.Reaction{}, model.Scope{}, ErrForbidden
	}
	delete(s.reactions, reactionID)
	return e.reaction, e.scope, nil
}

func (s *Store) Reactions(messageID int64) []model.Reaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Reaction
	for _, e := range s.reactions {
		if e.reaction.MessageID == messageID {
			out = append(out, e.reaction)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JoinChannel reports whether the member was newly added.
func (s *Store) JoinChannel(m model.ChannelMember) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.members[m.ChannelID]
	if set == nil {
		set = make(map[int64]model.ChannelMember)
		s.members[m.ChannelID] = set
	}
	if _, ok := set[m.UserID]; ok {
		return false
	}
	set[m.UserID] = m
	return true
}

// LeaveChannel reports whether the member was present.
func (s *Store) LeaveChannel(channelID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.members[channelID]
	if _, ok := set[userID]; !ok {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(s.members, channelID)
	}
	return true
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

// LeaveAll removes userID from every channel and returns the channels left.
func (s *Store) LeaveAll(userID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var left []int64
	for channelID, set := range s.members {
		if _, ok := set[userID]; !ok {
			continue
		}
		delete(set, userID)
		if len(set) == 0 {
			delete(s.members, channelID)
		}
		left = append(left, channelID)
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	return left
}
