package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"kit-sync/internal/logger"
)

// Reserved events delivered by the client transport alongside server events.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnectFailed = "reconnect_failed"
)

// Disconnect reasons, as reported by Socket.IO clients.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

var ErrNotConnected = errors.New("socket not connected")

// errStop ends a session without reconnecting.
var errStop = errors.New("reconnection disabled by server")

type ClientConfig struct {
	// URL is the backend base URL, http(s) or ws(s).
	URL  string
	Path string
	// ReconnectAttempts bounds retries after a failed attempt; 0 disables
	// reconnection.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	HandshakeTimeout  time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Path == "" {
		c.Path = "/socket.io/"
	}
	if c.ReconnectAttempts < 0 {
		c.ReconnectAttempts = 0
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReconnectDelayMax <= 0 {
		c.ReconnectDelayMax = 5 * time.Second
	}
	if c.ReconnectDelayMax < c.ReconnectDelay {
		c.ReconnectDelayMax = c.ReconnectDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 20 * time.Second
	}
	return c
}

// EventFunc receives every event in arrival order, on the socket's own
// goroutine.
type EventFunc func(event string, args []json.RawMessage)

// Socket is a Socket.IO client connection over the websocket transport that
// reconnects on its own until it is closed or runs out of attempts.
type Socket struct {
	cfg     ClientConfig
	token   string
	onEvent EventFunc
	log     *logger.Logger
	dialer  *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool

	sendMu    sync.Mutex
	closeOnce sync.Once
}

// Dial starts connecting in the background and returns immediately. The
// token is sent both as the CONNECT auth payload and as a query parameter.
func Dial(cfg ClientConfig, token string, onEvent EventFunc, log *logger.Logger) *Socket {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		cfg:     cfg,
		token:   token,
		onEvent: onEvent,
		log:     log,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Emit sends an event with the given arguments.
func (s *Socket) Emit(event string, args ...any) error {
	s.mu.Lock()
	ws, connected := s.ws, s.connected
	s.mu.Unlock()
	if ws == nil || !connected {
		return ErrNotConnected
	}

	packet, err := buildSocketEventPacket("/", nil, event, args...)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return s.write(ws, string(engineMessage)+packet)
}

// Close stops the socket. It never blocks on the socket goroutine, so it is
// safe to call from inside an EventFunc.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		ws, connected := s.ws, s.connected
		s.mu.Unlock()
		if ws != nil && connected {
			_ = s.write(ws, string(engineMessage)+buildSocketDisconnectPacket("/"))
		}
		s.cancel()
	})
	return nil
}

// Done is closed once the socket goroutine has exited.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(s.cfg.Path, "/")
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	if s.token != "" {
		q.Set("token", s.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) backoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.ReconnectDelay)
	b = retry.WithCappedDuration(s.cfg.ReconnectDelayMax, b)
	return retry.WithMaxRetries(uint64(s.cfg.ReconnectAttempts), b)
}

func (s *Socket) run() {
	defer close(s.done)
	defer s.cancel()

	endpoint, err := s.endpoint()
	if err != nil {
		s.deliver(EventConnectError, err.Error())
		s.deliver(EventReconnectFailed)
		return
	}

	for {
		established := false
		err := retry.Do(s.ctx, s.backoff(), func(ctx context.Context) error {
			err := s.session(ctx, endpoint)
			switch {
			case err == nil:
				established = true
				return nil
			case ctx.Err() != nil, errors.Is(err, errStop):
				return err
			default:
				s.log.Debug().Err(err).Msg("connect attempt failed")
				s.deliver(EventConnectError, err.Error())
				return retry.RetryableError(err)
			}
		})

		switch {
		case s.ctx.Err() != nil, errors.Is(err, errStop):
			return
		case err != nil:
			s.log.Warn().Err(err).Msg("giving up reconnecting")
			s.deliver(EventReconnectFailed)
			return
		case established:
			// A live session dropped: wait once, then start over with a
			// fresh attempt budget.
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.cfg.ReconnectDelay):
			}
		}
	}
}

// session runs one websocket connection. It returns nil when an established
// session was lost and may be retried, errStop when the server refused or
// ended it, and any other error when it never got established.
func (s *Socket) session(ctx context.Context, endpoint string) error {
	ws, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()
	defer func() { _ = ws.Close() }()

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.ws = nil
		s.connected = false
		s.mu.Unlock()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read open packet: %w", err)
	}
	open, err := parseOpenPacket(string(data))
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	connectPacket, err := buildSocketConnectPacket("/", map[string]string{"token": s.token})
	if err != nil {
		return err
	}
	if err := s.write(ws, string(engineMessage)+connectPacket); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	connected := false
	lost := func(reason string) {
		s.setConnected(false)
		s.deliver(EventDisconnect, reason)
	}

	for {
		deadline := open.liveness()
		if !connected {
			deadline = s.cfg.HandshakeTimeout
		}
		_ = ws.SetReadDeadline(time.Now().Add(deadline))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				if connected {
					lost(ReasonClientDisconnect)
				}
				return ctx.Err()
			}
			if !connected {
				return fmt.Errorf("read: %w", err)
			}
			reason := ReasonTransportClose
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				reason = ReasonPingTimeout
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = ReasonTransportError
			}
			lost(reason)
			return nil
		}

		msg := string(data)
		if msg == "" {
			continue
		}
		switch enginePacketType(msg[0]) {
		case enginePing:
			_ = s.write(ws, string(enginePong))
		case engineClose:
			if !connected {
				return errors.New("closed during handshake")
			}
			lost(ReasonTransportClose)
			return nil
		case engineMessage:
			payload := msg[1:]
			if payload == "" {
				continue
			}
			switch socketPacketType(payload[0]) {
			case socketConnect:
				if connected {
					continue
				}
				connected = true
				s.setConnected(true)
				s.deliver(EventConnect)
			case socketConnectError:
				_, body, _ := parseConnectPayload(payload)
				s.deliver(EventConnectError, connectErrorMessage(body))
				s.deliver(EventDisconnect, ReasonServerDisconnect)
				return errStop
			case socketDisconnect:
				lost(ReasonServerDisconnect)
				return errStop
			case socketEvent:
				pkt, err := parseSocketEventPacket(payload)
				if err != nil {
					s.log.Debug().Err(err).Msg("dropping undecodable event packet")
					continue
				}
				if s.onEvent != nil {
					s.onEvent(pkt.Event, pkt.Args)
				}
			}
		}
	}
}

func (s *Socket) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// deliver hands a reserved event to onEvent with JSON-encoded arguments.
func (s *Socket) deliver(event string, args ...any) {
	if s.onEvent == nil {
		return
	}
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			continue
		}
		raw = append(raw, data)
	}
	s.onEvent(event, raw)
}

func (s *Socket) write(ws *websocket.Conn, msg string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, []byte(msg))
}
