package realtime

import (
	"kit-sync/internal/clock"
	"kit-sync/internal/model"
)

type typingKey struct {
	userID int64
	scope  model.Scope
}

type typingEntry struct {
	timer clock.Timer
}

// setTyping records the flag and, while it is set, keeps one expiry timer per
// user and scope. A refresh replaces the previous timer.
func (c *Client) setTyping(userID int64, scope model.Scope, typing bool) {
	key := typingKey{userID: userID, scope: scope}

	c.typingMu.Lock()
	if prev := c.typing[key]; prev != nil {
		prev.timer.Stop()
		delete(c.typing, key)
	}
	if typing {
		entry := &typingEntry{}
		entry.timer = c.clock.AfterFunc(c.opts.TypingTimeout, func() { c.expireTyping(key, entry) })
		c.typing[key] = entry
	}
	c.typingMu.Unlock()

	c.sink.SetTyping(userID, scope, typing)
}

func (c *Client) expireTyping(key typingKey, entry *typingEntry) {
	c.typingMu.Lock()
	if c.typing[key] != entry {
		c.typingMu.Unlock()
		return
	}
	delete(c.typing, key)
	c.typingMu.Unlock()

	c.sink.SetTyping(key.userID, key.scope, false)
}
