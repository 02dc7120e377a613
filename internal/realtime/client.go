// Package realtime keeps one authenticated, auto-reconnecting event channel to
// the messaging backend. Inbound events become Sink updates; outbound intents
// become named events on the channel.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"kit-sync/internal/clock"
	"kit-sync/internal/logger"
	"kit-sync/internal/model"
	"kit-sync/internal/notify"
)

const (
	DefaultMaxConnectionErrors = 5
	DefaultTypingTimeout       = 5 * time.Second
	DefaultPingInterval        = 25 * time.Second
)

// Sink receives every state change the client derives from inbound events.
// Implementations serialise their own mutations.
type Sink interface {
	SetConnectionStatus(status model.ConnectionStatus)
	AddMessage(scope model.Scope, msg model.Message)
	MarkMessageRead(receipt model.ReadReceipt)
	SetPresence(p model.Presence)
	SetStatusMessage(userID int64, status string, at time.Time)
	SetTyping(userID int64, scope model.Scope, typing bool)
	AddReaction(r model.Reaction)
	RemoveReaction(reactionID, messageID int64)
	ChannelJoined(channelID int64)
	ChannelMemberJoined(m model.ChannelMember)
	ChannelMemberLeft(m model.ChannelMember)
}

type Socket interface {
	Emit(event string, args ...any) error
	Connected() bool
	Close() error
}

// EventFunc is called sequentially, in arrival order, for every event the
// transport produces, including connect, disconnect, connect_error and
// reconnect_failed.
type EventFunc func(event string, args []json.RawMessage)

type Dialer interface {
	// Dial starts connecting and returns without waiting for the handshake.
	Dial(token string, onEvent EventFunc) Socket
}

type Options struct {
	MaxConnectionErrors int
	TypingTimeout       time.Duration
	PingInterval        time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConnectionErrors <= 0 {
		o.MaxConnectionErrors = DefaultMaxConnectionErrors
	}
	if o.TypingTimeout <= 0 {
		o.TypingTimeout = DefaultTypingTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	return o
}

type Deps struct {
	Dialer   Dialer
	Sink     Sink
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *logger.Logger
}

// OutgoingMessage is the content of a message sent into a scope.
type OutgoingMessage struct {
	SenderID    int64
	SenderName  string
	RecipientID int64
	Subject     string
	Body        string
}

type Client struct {
	dialer   Dialer
	sink     Sink
	notifier notify.Notifier
	clock    clock.Clock
	log      *logger.Logger
	opts     Options

	handlers map[string]handler

	mu     sync.Mutex
	state  model.ConnectionStatus
	socket Socket
	// gen identifies the current transport; events carrying an older
	// generation come from a torn-down socket and are ignored.
	gen        uint64
	connErrors int

	pingMu  sync.Mutex
	ping    clock.Timer
	pingGen uint64

	typingMu sync.Mutex
	typing   map[typingKey]*typingEntry
}

func NewClient(deps Deps, opts Options) *Client {
	if deps.Notifier == nil {
		deps.Notifier = notify.Disabled{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	c := &Client{
		dialer:   deps.Dialer,
		sink:     deps.Sink,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		log:      deps.Logger,
		opts:     opts.withDefaults(),
		state:    model.StatusDisconnected,
		typing:   make(map[typingKey]*typingEntry),
	}
	c.handlers = c.dispatchTable()
	return c
}

// Connect opens the channel with token. It is a no-op unless the client is
// disconnected, and returns before the handshake completes.
func (c *Client) Connect(token string) {
	c.mu.Lock()
	if c.state != model.StatusDisconnected {
		c.mu.Unlock()
		c.log.Debug().Str("state", string(c.state)).Msg("connect ignored")
		return
	}
	c.gen++
	gen := c.gen
	c.state = model.StatusConnecting
	c.connErrors = 0
	c.mu.Unlock()

	c.sink.SetConnectionStatus(model.StatusConnecting)
	sock := c.dialer.Dial(token, func(event string, args []json.RawMessage) {
		c.dispatch(gen, event, args)
	})

	c.mu.Lock()
	if c.gen != gen {
		// Torn down while dialing.
		c.mu.Unlock()
		_ = sock.Close()
		return
	}
	c.socket = sock
	c.mu.Unlock()
	c.log.Info().Msg("connecting")
}

// Disconnect tears down the channel and stops the keep-alive ping. Safe to
// call in any state.
func (c *Client) Disconnect() {
	c.StopPing()

	c.mu.Lock()
	prev := c.state
	sock := c.socket
	c.gen++
	c.socket = nil
	c.state = model.StatusDisconnected
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	if prev != model.StatusDisconnected {
		c.sink.SetConnectionStatus(model.StatusDisconnected)
		c.log.Info().Msg("disconnected")
	}
}

// Status is the client's own view of the connection. It stays connecting
// while the transport retries, and only reads disconnected after Disconnect
// or a teardown.
func (c *Client) Status() model.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == model.StatusConnected && c.socket != nil
}

// teardown abandons the transport of generation gen, requiring a new Connect
// to recover.
func (c *Client) teardown(gen uint64, why string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	sock := c.socket
	c.gen++
	c.socket = nil
	c.state = model.StatusDisconnected
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	c.sink.SetConnectionStatus(model.StatusDisconnected)
	c.log.Warn().Str("reason", why).Msg("connection abandoned")
}

func (c *Client) emit(event string, payload any) {
	c.mu.Lock()
	sock, state := c.socket, c.state
	c.mu.Unlock()

	if sock == nil || state != model.StatusConnected {
		c.log.Debug().Str("event", event).Msg("not connected, dropping outbound event")
		return
	}

	var err error
	if payload == nil {
		err = sock.Emit(event)
	} else {
		err = sock.Emit(event, payload)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("emit failed")
	}
}

func (c *Client) SendMessage(scope model.Scope, msg OutgoingMessage) {
	if !scope.Valid() {
		c.log.Warn().Str("scope", scope.String()).Msg("invalid scope, message not sent")
		return
	}
	c.emit(model.EventSendMessage, model.SendMessageRequest{
		ScopeRef:    model.RefOf(scope),
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		RecipientID: msg.RecipientID,
		Subject:     msg.Subject,
		Body:        msg.Body,
	})
}

func (c *Client) MarkMessageRead(messageID int64) {
	c.emit(model.EventMarkRead, model.MarkReadRequest{MessageID: messageID})
}

func (c *Client) JoinChannel(channelID int64) {
	c.emit(model.EventJoinChannel, model.ChannelRequest{ChannelID: channelID})
}

func (c *Client) LeaveChannel(channelID int64) {
	c.emit(model.EventLeaveChannel, model.ChannelRequest{ChannelID: channelID})
}

func (c *Client) StartTyping(scope model.Scope) {
	c.emit(model.EventTypingStart, model.RefOf(scope))
}

func (c *Client) StopTyping(scope model.Scope) {
	c.emit(model.EventTypingStop, model.RefOf(scope))
}

func (c *Client) AddReaction(messageID int64, kind string) {
	c.emit(model.EventAddReaction, model.AddReactionRequest{MessageID: messageID, Kind: kind})
}

func (c *Client) RemoveReaction(reactionID int64) {
	c.emit(model.EventRemoveReaction, model.RemoveReactionRequest{ReactionID: reactionID})
}

func (c *Client) UpdateStatus(status string) {
	c.emit(model.EventUpdateStatus, model.StatusRequest{StatusMessage: status})
}

// StartPing emits a keep-alive ping every interval until StopPing or
// Disconnect, replacing any ping already running. A non-positive interval
// uses the configured default.
func (c *Client) StartPing(interval time.Duration) {
	if interval <= 0 {
		interval = c.opts.PingInterval
	}
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	c.stopPingLocked()
	c.schedulePingLocked(c.pingGen, interval)
}

func (c *Client) StopPing() {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	c.stopPingLocked()
}

func (c *Client) stopPingLocked() {
	c.pingGen++
	if c.ping != nil {
		c.ping.Stop()
		c.ping = nil
	}
}

func (c *Client) schedulePingLocked(gen uint64, interval time.Duration) {
	c.ping = c.clock.AfterFunc(interval, func() {
		c.pingMu.Lock()
		live := gen == c.pingGen
		c.pingMu.Unlock()
		if !live {
			return
		}

		c.emit(model.EventPing, nil)

		c.pingMu.Lock()
		if gen == c.pingGen {
			c.schedulePingLocked(gen, interval)
		}
		c.pingMu.Unlock()
	})
}
