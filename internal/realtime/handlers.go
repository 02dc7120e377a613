package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"kit-sync/internal/model"
	"kit-sync/internal/notify"
	"kit-sync/internal/socketio"
)

var (
	errNoPayload = errors.New("missing payload")
	errMalformed = errors.New("malformed payload")
)

type inbound struct {
	gen  uint64
	args []json.RawMessage
}

type handler func(ev inbound) error

func (c *Client) dispatchTable() map[string]handler {
	return map[string]handler{
		socketio.EventConnect:         c.onConnect,
		socketio.EventDisconnect:      c.onDisconnect,
		socketio.EventConnectError:    c.onConnectError,
		socketio.EventReconnectFailed: c.onReconnectFailed,

		model.EventNewMessage:        c.onNewMessage,
		model.EventMessageSent:       c.onMessageSent,
		model.EventMessageRead:       c.onMessageRead,
		model.EventUserOnline:        c.onPresence(true),
		model.EventUserOffline:       c.onPresence(false),
		model.EventStatusUpdated:     c.onStatusUpdated,
		model.EventTyping:            c.onTyping,
		model.EventReactionAdded:     c.onReactionAdded,
		model.EventReactionRemoved:   c.onReactionRemoved,
		model.EventChannelJoined:     c.onChannelJoined,
		model.EventUserJoinedChannel: c.onMemberJoined,
		model.EventUserLeftChannel:   c.onMemberLeft,
		model.EventError:             c.onError,
		model.EventPong:              c.onPong,
	}
}

func (c *Client) dispatch(gen uint64, event string, args []json.RawMessage) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	h, ok := c.handlers[event]
	if !ok {
		c.log.Debug().Str("event", event).Msg("no handler for event")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("event", event).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	if err := h(inbound{gen: gen, args: args}); err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("dropping event")
	}
}

func decode(args []json.RawMessage, v any) error {
	if len(args) == 0 {
		return errNoPayload
	}
	if err := json.Unmarshal(args[0], v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func (c *Client) onConnect(ev inbound) error {
	c.mu.Lock()
	if ev.gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.state = model.StatusConnected
	c.connErrors = 0
	c.mu.Unlock()

	c.sink.SetConnectionStatus(model.StatusConnected)
	c.log.Info().Msg("connected")
	return nil
}

func (c *Client) onDisconnect(ev inbound) error {
	var reason string
	_ = decode(ev.args, &reason)

	if reason == socketio.ReasonServerDisconnect {
		c.teardown(ev.gen, reason)
		return nil
	}

	// The transport reconnects on its own; stay out of Connect's way until
	// it either succeeds or gives up.
	c.mu.Lock()
	if ev.gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.state = model.StatusConnecting
	c.mu.Unlock()

	c.sink.SetConnectionStatus(model.StatusDisconnected)
	c.log.Info().Str("reason", reason).Msg("connection lost")
	return nil
}

func (c *Client) onConnectError(ev inbound) error {
	var msg string
	_ = decode(ev.args, &msg)

	c.mu.Lock()
	if ev.gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.connErrors++
	n := c.connErrors
	c.mu.Unlock()

	c.log.Warn().Str("error", msg).Int("count", n).Msg("connection error")
	if n >= c.opts.MaxConnectionErrors {
		c.teardown(ev.gen, "too many connection errors")
	}
	return nil
}

func (c *Client) onReconnectFailed(ev inbound) error {
	c.teardown(ev.gen, "reconnect attempts exhausted")
	return nil
}

func decodeMessage(args []json.RawMessage) (model.Scope, model.Message, error) {
	var msg model.Message
	if err := decode(args, &msg); err != nil {
		return model.Scope{}, msg, err
	}
	scope, ok := msg.ScopeRef.Scope()
	if msg.ID <= 0 || !ok {
		return model.Scope{}, msg, fmt.Errorf("%w: message needs an id and exactly one scope", errMalformed)
	}
	return scope, msg, nil
}

func (c *Client) onNewMessage(ev inbound) error {
	scope, msg, err := decodeMessage(ev.args)
	if err != nil {
		return err
	}
	c.sink.AddMessage(scope, msg)

	title := msg.SenderName
	if title == "" {
		title = "New message"
	}
	body := msg.Subject
	if body == "" {
		body = msg.Body
	}
	c.notify(notify.Notification{Kind: notify.KindMessage, Title: title, Body: body})
	return nil
}

func (c *Client) onMessageSent(ev inbound) error {
	scope, msg, err := decodeMessage(ev.args)
	if err != nil {
		return err
	}
	c.sink.AddMessage(scope, msg)
	return nil
}

func (c *Client) onMessageRead(ev inbound) error {
	var r model.ReadReceipt
	if err := decode(ev.args, &r); err != nil {
		return err
	}
	if r.MessageID <= 0 {
		return fmt.Errorf("%w: receipt without message id", errMalformed)
	}
	if r.ReadAt.IsZero() {
		r.ReadAt = c.clock.Now()
	}
	c.sink.MarkMessageRead(r)
	return nil
}

func (c *Client) onPresence(online bool) handler {
	return func(ev inbound) error {
		var p model.PresenceEvent
		if err := decode(ev.args, &p); err != nil {
			return err
		}
		if p.UserID <= 0 {
			return fmt.Errorf("%w: presence without user id", errMalformed)
		}
		at := p.Timestamp
		if at.IsZero() {
			at = c.clock.Now()
		}
		c.sink.SetPresence(model.Presence{UserID: p.UserID, Online: online, OnlineKnown: true, ChangedAt: at})
		return nil
	}
}

func (c *Client) onStatusUpdated(ev inbound) error {
	var s model.StatusEvent
	if err := decode(ev.args, &s); err != nil {
		return err
	}
	if s.UserID <= 0 {
		return fmt.Errorf("%w: status without user id", errMalformed)
	}
	at := s.Timestamp
	if at.IsZero() {
		at = c.clock.Now()
	}
	c.sink.SetStatusMessage(s.UserID, s.StatusMessage, at)
	return nil
}

func (c *Client) onTyping(ev inbound) error {
	var t model.TypingEvent
	if err := decode(ev.args, &t); err != nil {
		return err
	}
	scope, ok := t.ScopeRef.Scope()
	if t.UserID <= 0 || !ok {
		return fmt.Errorf("%w: typing needs a user and exactly one scope", errMalformed)
	}
	c.setTyping(t.UserID, scope, t.IsTyping)
	return nil
}

func (c *Client) onReactionAdded(ev inbound) error {
	var r model.Reaction
	if err := decode(ev.args, &r); err != nil {
		return err
	}
	if r.ID <= 0 || r.MessageID <= 0 {
		return fmt.Errorf("%w: reaction needs an id and a message id", errMalformed)
	}
	c.sink.AddReaction(r)
	return nil
}

func (c *Client) onReactionRemoved(ev inbound) error {
	var r model.ReactionRemovedEvent
	if err := decode(ev.args, &r); err != nil {
		return err
	}
	if r.ReactionID <= 0 {
		return fmt.Errorf("%w: removal without reaction id", errMalformed)
	}
	c.sink.RemoveReaction(r.ReactionID, r.MessageID)
	return nil
}

func (c *Client) onChannelJoined(ev inbound) error {
	var ack model.ChannelRequest
	if err := decode(ev.args, &ack); err != nil {
		return err
	}
	if ack.ChannelID <= 0 {
		return fmt.Errorf("%w: join ack without channel id", errMalformed)
	}
	c.sink.ChannelJoined(ack.ChannelID)
	return nil
}

func decodeMember(args []json.RawMessage) (model.ChannelMember, error) {
	var m model.ChannelMember
	if err := decode(args, &m); err != nil {
		return m, err
	}
	if m.ChannelID <= 0 || m.UserID <= 0 {
		return m, fmt.Errorf("%w: membership needs a channel and a user", errMalformed)
	}
	return m, nil
}

func (c *Client) onMemberJoined(ev inbound) error {
	m, err := decodeMember(ev.args)
	if err != nil {
		return err
	}
	c.sink.ChannelMemberJoined(m)
	return nil
}

func (c *Client) onMemberLeft(ev inbound) error {
	m, err := decodeMember(ev.args)
	if err != nil {
		return err
	}
	c.sink.ChannelMemberLeft(m)
	return nil
}

func (c *Client) onError(ev inbound) error {
	var e model.ErrorEvent
	if err := decode(ev.args, &e); err != nil {
		// Some backends push the bare message string.
		var text string
		if decode(ev.args, &text) != nil {
			return err
		}
		e.Message = text
	}
	if e.Message == "" {
		e.Message = "Unknown error"
	}
	c.log.Warn().Str("message", e.Message).Msg("backend error")
	c.notify(notify.Notification{Kind: notify.KindError, Title: "Error", Body: e.Message})
	return nil
}

func (c *Client) onPong(ev inbound) error {
	var p model.PongEvent
	_ = decode(ev.args, &p)
	c.log.Debug().Time("server_time", p.Timestamp).Msg("pong")
	return nil
}

// notify never lets the notifier affect event delivery.
func (c *Client) notify(n notify.Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("notifier panicked")
		}
	}()
	if err := c.notifier.Notify(n); err != nil {
		c.log.Debug().Err(err).Msg("notification not shown")
	}
}
