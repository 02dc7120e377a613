package model

import "time"

// Events sent by the sync client.
const (
	EventSendMessage    = "send_message"
	EventMarkRead       = "mark_message_read"
	EventJoinChannel    = "join_channel"
	EventLeaveChannel   = "leave_channel"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventAddReaction    = "add_reaction"
	EventRemoveReaction = "remove_reaction"
	EventUpdateStatus   = "update_status"
	EventPing           = "ping"
)

// Events pushed by the backend.
const (
	EventNewMessage        = "new_message"
	EventMessageSent       = "message_sent"
	EventMessageRead       = "message_read"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventStatusUpdated     = "status_updated"
	EventTyping            = "typing"
	EventReactionAdded     = "reaction_added"
	EventReactionRemoved   = "reaction_removed"
	EventChannelJoined     = "channel_joined"
	EventUserJoinedChannel = "user_joined_channel"
	EventUserLeftChannel   = "user_left_channel"
	EventError             = "error"
	EventPong              = "pong"
)

type SendMessageRequest struct {
	ScopeRef
	SenderID    int64  `json:"sender_id,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`
	RecipientID int64  `json:"recipient_id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"message"`
}

type MarkReadRequest struct {
	MessageID int64 `json:"message_id"`
}

type ChannelRequest struct {
	ChannelID int64 `json:"channel_id"`
}

type AddReactionRequest struct {
	MessageID int64  `json:"message_id"`
	Kind      string `json:"reaction_type"`
}

type RemoveReactionRequest struct {
	ReactionID int64 `json:"reaction_id"`
}

type StatusRequest struct {
	StatusMessage string `json:"status_message"`
}

type PresenceEvent struct {
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusEvent struct {
	UserID        int64     `json:"user_id"`
	StatusMessage string    `json:"status_message"`
	Timestamp     time.Time `json:"timestamp"`
}

type TypingEvent struct {
	UserID int64 `json:"user_id"`
	ScopeRef
	IsTyping bool `json:"is_typing"`
}

type ReactionRemovedEvent struct {
	ReactionID int64 `json:"reaction_id"`
	MessageID  int64 `json:"message_id,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type PongEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
