package socketio

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"kit-sync/internal/hub"
	"kit-sync/internal/logger"
)

const (
	maxPayload   int64         = 1000000
	writeTimeout time.Duration = 10 * time.Second
)

type Identity struct {
	UserID int64
	Name   string
}

// Authenticator resolves the token a client presented in its CONNECT auth
// payload, or in the token query parameter when the payload carries none.
type Authenticator func(token string) (Identity, error)

type Handler func(c *Conn, args []json.RawMessage)

type ServerOptions struct {
	Authenticate Authenticator
	Logger       *logger.Logger
	PingInterval time.Duration
	PingTimeout  time.Duration
}

type Server struct {
	authenticate Authenticator
	log          *logger.Logger
	upgrader     websocket.Upgrader
	rooms        *hub.Hub

	pingInterval time.Duration
	pingTimeout  time.Duration

	mu           sync.RWMutex
	handlers     map[string]Handler
	onConnect    func(*Conn)
	onDisconnect func(*Conn)
	conns        map[*Conn]struct{}
}

func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 20 * time.Second
	}
	return &Server{
		authenticate: opts.Authenticate,
		log:          opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms:        hub.New(),
		pingInterval: opts.PingInterval,
		pingTimeout:  opts.PingTimeout,
		handlers:     make(map[string]Handler),
		conns:        make(map[*Conn]struct{}),
	}
}

func (s *Server) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

func (s *Server) OnConnect(f func(*Conn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = f
}

func (s *Server) OnDisconnect(f func(*Conn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = f
}

// Connections reports how many sockets have completed the CONNECT handshake.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for c := range s.conns {
		if c.connected.Load() {
			n++
		}
	}
	return n
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(s, ws, r.URL.Query().Get("token"))
	s.registerConn(c)
	defer s.unregisterConn(c)

	open := openPacket{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: int(s.pingInterval / time.Millisecond),
		PingTimeout:  int(s.pingTimeout / time.Millisecond),
		MaxPayload:   maxPayload,
	}
	openBytes, _ := json.Marshal(open)
	_ = c.writeText(string(engineOpen) + string(openBytes))

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(c, msg)
	})
}

func (s *Server) registerConn(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) unregisterConn(c *Conn) {
	if c.unregistered.Swap(true) {
		return
	}
	s.mu.Lock()
	delete(s.conns, c)
	onDisconnect := s.onDisconnect
	s.mu.Unlock()

	s.rooms.LeaveAll(c)
	c.Close()

	if c.connected.Load() && onDisconnect != nil {
		onDisconnect(c)
	}
}

// RoomSize counts the connections currently joined to room.
func (s *Server) RoomSize(room string) int {
	return s.rooms.Size(room)
}

// BroadcastToRoom emits an event to every socket in room except the given
// one, which may be nil.
func (s *Server) BroadcastToRoom(room string, except *Conn, event string, args ...any) {
	packet, err := buildSocketEventPacket("/", nil, event, args...)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return
	}
	var skip hub.Member
	if except != nil {
		skip = except
	}
	s.rooms.Broadcast(room, []byte(string(engineMessage)+packet), skip)
}

func (s *Server) handleMessage(c *Conn, msg string) {
	if msg == "" {
		return
	}

	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case engineMessage:
		s.handleSocketPayload(c, msg[1:])
	case engineClose:
		c.Close()
	}
}

type connectAuth struct {
	Token string `json:"token"`
}

func (s *Server) handleSocketPayload(c *Conn, payload string) {
	if payload == "" {
		return
	}

	switch socketPacketType(payload[0]) {
	case socketConnect:
		s.handleConnect(c, payload)
	case socketEvent:
		s.handleEvent(c, payload)
	case socketDisconnect:
		c.Close()
	}
}

func (s *Server) handleConnect(c *Conn, payload string) {
	if c.connected.Load() {
		return
	}

	_, body, err := parseConnectPayload(payload)
	if err != nil {
		s.rejectConnect(c, "Invalid auth")
		return
	}
	var authObj connectAuth
	if len(body) > 0 {
		if err := json.Unmarshal(body, &authObj); err != nil {
			s.rejectConnect(c, "Invalid auth")
			return
		}
	}
	token := authObj.Token
	if token == "" {
		token = c.queryToken
	}
	if token == "" {
		s.rejectConnect(c, "Missing token")
		return
	}
	if s.authenticate == nil {
		s.rejectConnect(c, "Authentication unavailable")
		return
	}
	identity, err := s.authenticate(token)
	if err != nil {
		s.rejectConnect(c, "Invalid authentication token")
		return
	}

	c.identity = identity
	c.connected.Store(true)

	ack, err := buildSocketConnectPacket("/", map[string]string{"sid": c.sid})
	if err != nil {
		c.Close()
		return
	}
	_ = c.writeText(string(engineMessage) + ack)

	s.mu.RLock()
	onConnect := s.onConnect
	s.mu.RUnlock()
	if onConnect != nil {
		onConnect(c)
	}
}

func (s *Server) rejectConnect(c *Conn, message string) {
	packet, err := buildSocketConnectErrorPacket("/", message)
	if err == nil {
		_ = c.writeText(string(engineMessage) + packet)
	}
	s.log.Debug().Str("sid", c.sid).Str("reason", message).Msg("socket connect rejected")
	c.Close()
}

func (s *Server) handleEvent(c *Conn, payload string) {
	if !c.connected.Load() {
		return
	}

	pkt, err := parseSocketEventPacket(payload)
	if err != nil {
		return
	}

	s.mu.RLock()
	h := s.handlers[pkt.Event]
	s.mu.RUnlock()
	if h != nil {
		h(c, pkt.Args)
	}

	if pkt.ID != nil {
		ackPayload, err := buildSocketAckPacket(pkt.Namespace, *pkt.ID)
		if err == nil {
			_ = c.writeText(string(engineMessage) + ackPayload)
		}
	}
}

// Conn is one server-side socket.
type Conn struct {
	server *Server
	ws     *websocket.Conn

	sid        string
	queryToken string
	identity   Identity

	connected    atomic.Bool
	unregistered atomic.Bool

	sendMu sync.Mutex

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time

	closed atomic.Bool
}

func newConn(s *Server, ws *websocket.Conn, queryToken string) *Conn {
	return &Conn{
		server:     s,
		ws:         ws,
		sid:        uuid.NewString(),
		queryToken: queryToken,
		nextPingAt: time.Now().Add(s.pingInterval),
	}
}

func (c *Conn) ID() string { return c.sid }

func (c *Conn) Identity() Identity { return c.identity }

func (c *Conn) Emit(event string, args ...any) error {
	if c.closed.Load() {
		return errors.New("socket closed")
	}
	packet, err := buildSocketEventPacket("/", nil, event, args...)
	if err != nil {
		return err
	}
	return c.writeText(string(engineMessage) + packet)
}

func (c *Conn) Join(room string)  { c.server.rooms.Join(room, c) }
func (c *Conn) Leave(room string) { c.server.rooms.Leave(room, c) }

// Write sends an already framed Engine.IO message.
func (c *Conn) Write(message []byte) error {
	return c.writeText(string(message))
}

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.ws.Close()
}

func (c *Conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Conn) readLoop(onMessage func(string)) {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

func (c *Conn) pingLoop() {
	interval := c.server.pingInterval
	timeout := c.server.pingTimeout
	tick := time.Second
	if interval/4 < tick {
		tick = interval / 4
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for range ticker.C {
		if c.closed.Load() {
			return
		}
		now := time.Now()
		c.pingMu.Lock()
		awaiting := c.awaitingPong
		pingSentAt := c.pingSentAt
		nextPingAt := c.nextPingAt
		if awaiting && now.Sub(pingSentAt) > timeout {
			c.pingMu.Unlock()
			c.Close()
			return
		}
		if !awaiting && !now.Before(nextPingAt) {
			c.awaitingPong = true
			c.pingSentAt = now
			c.nextPingAt = now.Add(interval)
			c.pingMu.Unlock()
			_ = c.writeText(string(enginePing))
			continue
		}
		c.pingMu.Unlock()
	}
}

func (c *Conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
