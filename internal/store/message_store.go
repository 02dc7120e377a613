package store

import (
	"sync"

	"kit-sync/internal/model"
)

// messageStore is an append-only log per scope with an id index.
type messageStore struct {
	mu    sync.RWMutex
	data  map[model.Scope][]model.Message
	index map[int64]model.Scope
}

func newMessageStore() *messageStore {
	return &messageStore{
		data:  make(map[model.Scope][]model.Message),
		index: make(map[int64]model.Scope),
	}
}

func (m *messageStore) append(scope model.Scope, msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[scope] = append(m.data[scope], msg)
	m.index[msg.ID] = scope
}

func (m *messageStore) get(id int64) (model.Message, model.Scope, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scope, ok := m.index[id]
	if !ok {
		return model.Message{}, model.Scope{}, false
	}
	for _, msg := range m.data[scope] {
		if msg.ID == id {
			return msg, scope, true
		}
	}
	return model.Message{}, model.Scope{}, false
}

func (m *messageStore) update(id int64, fn func(*model.Message)) (model.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.index[id]
	if !ok {
		return model.Message{}, false
	}
	list := m.data[scope]
	for i := range list {
		if list[i].ID == id {
			fn(&list[i])
			return list[i], true
		}
	}
	return model.Message{}, false
}

func (m *messageStore) getAfter(scope model.Scope, after int64, limit int) []model.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.data[scope]
	if len(msgs) == 0 {
		return nil
	}

	result := make([]model.Message, 0, min(limit, len(msgs)))
	for _, msg := range msgs {
		if msg.ID > after {
			result = append(result, msg)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}
