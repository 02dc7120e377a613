package handler

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"kit-sync/internal/auth"
	"kit-sync/internal/logger"
	"kit-sync/internal/model"
	"kit-sync/internal/socketio"
	"kit-sync/internal/store"
)

const roomAll = "all"

func userRoom(id int64) string    { return "user:" + strconv.FormatInt(id, 10) }
func channelRoom(id int64) string { return "channel:" + strconv.FormatInt(id, 10) }

// scopeRoom is where events of a scope fan out. Kits are visible to every
// connected user; channels only to their members.
func scopeRoom(s model.Scope) string {
	if s.Kind == model.ScopeChannel {
		return channelRoom(s.ID)
	}
	return roomAll
}

// SocketAuthenticator verifies dev tokens presented on the socket handshake.
func SocketAuthenticator(cfg auth.TokenConfig) socketio.Authenticator {
	return func(token string) (socketio.Identity, error) {
		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			return socketio.Identity{}, err
		}
		return socketio.Identity{UserID: claims.UserID, Name: claims.Name}, nil
	}
}

// RealtimeHandler serves the sync event vocabulary on a socket server.
type RealtimeHandler struct {
	Store  *store.Store
	Server *socketio.Server
	Log    *logger.Logger
	Now    func() time.Time

	presenceMu sync.Mutex
}

func (h *RealtimeHandler) Register() {
	if h.Log == nil {
		h.Log = logger.Nop()
	}
	if h.Now == nil {
		h.Now = time.Now
	}

	h.Server.OnConnect(h.connected)
	h.Server.OnDisconnect(h.disconnected)

	handlers := map[string]socketio.Handler{
		model.EventSendMessage:    h.sendMessage,
		model.EventMarkRead:       h.markRead,
		model.EventJoinChannel:    h.joinChannel,
		model.EventLeaveChannel:   h.leaveChannel,
		model.EventTypingStart:    h.typing(true),
		model.EventTypingStop:     h.typing(false),
		model.EventAddReaction:    h.addReaction,
		model.EventRemoveReaction: h.removeReaction,
		model.EventUpdateStatus:   h.updateStatus,
		model.EventPing:           h.ping,
	}
	for event, fn := range handlers {
		h.Server.On(event, fn)
	}
}

func (h *RealtimeHandler) now() time.Time { return h.Now().UTC() }

func member(c *socketio.Conn) model.ChannelMember {
	id := c.Identity()
	return model.ChannelMember{UserID: id.UserID, UserName: id.Name}
}

func decodeArg(args []json.RawMessage, v any) bool {
	return len(args) > 0 && json.Unmarshal(args[0], v) == nil
}

func (h *RealtimeHandler) fail(c *socketio.Conn, message string) {
	_ = c.Emit(model.EventError, model.ErrorEvent{Message: message})
}

func (h *RealtimeHandler) failStore(c *socketio.Conn, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.fail(c, "Message not found")
	case errors.Is(err, store.ErrForbidden):
		h.fail(c, "Not allowed")
	default:
		h.fail(c, err.Error())
	}
}

// Presence is per user, not per socket: online goes out for the first
// socket of a user and offline after the last one closes.
func (h *RealtimeHandler) connected(c *socketio.Conn) {
	id := c.Identity()
	h.presenceMu.Lock()
	c.Join(roomAll)
	c.Join(userRoom(id.UserID))
	first := h.Server.RoomSize(userRoom(id.UserID)) == 1
	h.presenceMu.Unlock()

	h.Log.Info().Int64("user_id", id.UserID).Str("sid", c.ID()).Msg("socket connected")
	if first {
		h.Server.BroadcastToRoom(roomAll, c, model.EventUserOnline, model.PresenceEvent{UserID: id.UserID, Timestamp: h.now()})
	}
}

func (h *RealtimeHandler) disconnected(c *socketio.Conn) {
	id := c.Identity()
	h.presenceMu.Lock()
	last := h.Server.RoomSize(userRoom(id.UserID)) == 0
	h.presenceMu.Unlock()

	h.Log.Info().Int64("user_id", id.UserID).Str("sid", c.ID()).Msg("socket disconnected")
	if last {
		h.Server.BroadcastToRoom(roomAll, c, model.EventUserOffline, model.PresenceEvent{UserID: id.UserID, Timestamp: h.now()})
	}
}

func (h *RealtimeHandler) sendMessage(c *socketio.Conn, args []json.RawMessage) {
	var req model.SendMessageRequest
	if !decodeArg(args, &req) {
		h.fail(c, "Invalid payload")
		return
	}
	scope, ok := req.ScopeRef.Scope()
	if !ok {
		h.fail(c, "Invalid payload")
		return
	}

	msg, err := h.Store.AppendMessage(scope, member(c), req, h.now())
	if err != nil {
		h.failStore(c, err)
		return
	}
	_ = c.Emit(model.EventMessageSent, msg)
	h.Server.BroadcastToRoom(scopeRoom(scope), c, model.EventNewMessage, msg)
}

func (h *RealtimeHandler) markRead(c *socketio.Conn, args []json.RawMessage) {
	var req model.MarkReadRequest
	if !decodeArg(args, &req) || req.MessageID <= 0 {
		h.fail(c, "Invalid payload")
		return
	}

	msg, scope, err := h.Store.MarkRead(req.MessageID, c.Identity().UserID, h.now())
	if err != nil {
		h.failStore(c, err)
		return
	}
	h.Server.BroadcastToRoom(scopeRoom(scope), nil, model.EventMessageRead, model.ReadReceipt{
		MessageID: msg.ID,
		ReaderID:  msg.ReadBy,
		ReadAt:    *msg.ReadAt,
	})
}

func (h *RealtimeHandler) joinChannel(c *socketio.Conn, args []json.RawMessage) {
	var req model.ChannelRequest
	if !decodeArg(args, &req) || req.ChannelID <= 0 {
		h.fail(c, "Invalid payload")
		return
	}

	m := member(c)
	m.ChannelID = req.ChannelID
	added := h.Store.JoinChannel(m)
	c.Join(channelRoom(req.ChannelID))
	_ = c.Emit(model.EventChannelJoined, req)
	if added {
		h.Server.BroadcastToRoom(channelRoom(req.ChannelID), c, model.EventUserJoinedChannel, m)
	}
}

func (h *RealtimeHandler) leaveChannel(c *socketio.Conn, args []json.RawMessage) {
	var req model.ChannelRequest
	if !decodeArg(args, &req) || req.ChannelID <= 0 {
		h.fail(c, "Invalid payload")
		return
	}

	m := member(c)
	m.ChannelID = req.ChannelID
	c.Leave(channelRoom(req.ChannelID))
	if h.Store.LeaveChannel(req.ChannelID, m.UserID) {
		h.Server.BroadcastToRoom(channelRoom(req.ChannelID), c, model.EventUserLeftChannel, m)
	}
}

func (h *RealtimeHandler) typing(on bool) socketio.Handler {
	return func(c *socketio.Conn, args []json.RawMessage) {
		var ref model.ScopeRef
		if !decodeArg(args, &ref) {
			h.fail(c, "Invalid payload")
			return
		}
		scope, ok := ref.Scope()
		if !ok {
			h.fail(c, "Invalid payload")
			return
		}
		h.Server.BroadcastToRoom(scopeRoom(scope), c, model.EventTyping, model.TypingEvent{
			UserID:   c.Identity().UserID,
			ScopeRef: ref,
			IsTyping: on,
		})
	}
}

func (h *RealtimeHandler) addReaction(c *socketio.Conn, args []json.RawMessage) {
	var req model.AddReactionRequest
	if !decodeArg(args, &req) || req.MessageID <= 0 {
		h.fail(c, "Invalid payload")
		return
	}

	r, scope, err := h.Store.AddReaction(req.MessageID, c.Identity().UserID, req.Kind, h.now())
	if err != nil {
		h.failStore(c, err)
		return
	}
	h.Server.BroadcastToRoom(scopeRoom(scope), nil, model.EventReactionAdded, r)
}

func (h *RealtimeHandler) removeReaction(c *socketio.Conn, args []json.RawMessage) {
	var req model.RemoveReactionRequest
	if !decodeArg(args, &req) || req.ReactionID <= 0 {
		h.fail(c, "Invalid payload")
		return
	}

	r, scope, err := h.Store.RemoveReaction(req.ReactionID, c.Identity().UserID)
	if err != nil {
		h.failStore(c, err)
		return
	}
	h.Server.BroadcastToRoom(scopeRoom(scope), nil, model.EventReactionRemoved, model.ReactionRemovedEvent{
		ReactionID: r.ID,
		MessageID:  r.MessageID,
	})
}

func (h *RealtimeHandler) updateStatus(c *socketio.Conn, args []json.RawMessage) {
	var req model.StatusRequest
	if !decodeArg(args, &req) {
		h.fail(c, "Invalid payload")
		return
	}
	h.Server.BroadcastToRoom(roomAll, nil, model.EventStatusUpdated, model.StatusEvent{
		UserID:        c.Identity().UserID,
		StatusMessage: req.StatusMessage,
		Timestamp:     h.now(),
	})
}

func (h *RealtimeHandler) ping(c *socketio.Conn, _ []json.RawMessage) {
	_ = c.Emit(model.EventPong, model.PongEvent{Timestamp: h.now()})
}
