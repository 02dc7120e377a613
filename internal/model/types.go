package model

import (
	"fmt"
	"time"
)

type ScopeKind string

const (
	ScopeKit     ScopeKind = "kit"
	ScopeChannel ScopeKind = "channel"
)

// Scope partitions messages and typing indicators into independent
// conversations: a kit or a channel.
type Scope struct {
	Kind ScopeKind
	ID   int64
}

func KitScope(id int64) Scope     { return Scope{Kind: ScopeKit, ID: id} }
func ChannelScope(id int64) Scope { return Scope{Kind: ScopeChannel, ID: id} }

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

func (s Scope) Valid() bool {
	return (s.Kind == ScopeKit || s.Kind == ScopeChannel) && s.ID > 0
}

// ScopeRef is the wire form of a Scope: exactly one of the ids is set.
type ScopeRef struct {
	KitID     int64 `json:"kit_id,omitempty"`
	ChannelID int64 `json:"channel_id,omitempty"`
}

func RefOf(s Scope) ScopeRef {
	switch s.Kind {
	case ScopeKit:
		return ScopeRef{KitID: s.ID}
	case ScopeChannel:
		return ScopeRef{ChannelID: s.ID}
	default:
		return ScopeRef{}
	}
}

func (r ScopeRef) Scope() (Scope, bool) {
	switch {
	case r.KitID > 0 && r.ChannelID == 0:
		return KitScope(r.KitID), true
	case r.ChannelID > 0 && r.KitID == 0:
		return ChannelScope(r.ChannelID), true
	default:
		return Scope{}, false
	}
}

type Message struct {
	ID int64 `json:"id"`
	ScopeRef
	SenderID    int64      `json:"sender_id,omitempty"`
	SenderName  string     `json:"sender_name,omitempty"`
	RecipientID int64      `json:"recipient_id,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Body        string     `json:"message,omitempty"`
	SentAt      time.Time  `json:"timestamp"`
	IsRead      bool       `json:"is_read"`
	ReadBy      int64      `json:"read_by,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type ReadReceipt struct {
	MessageID int64     `json:"message_id"`
	ReaderID  int64     `json:"reader_id,omitempty"`
	ReadAt    time.Time `json:"timestamp"`
}

// Presence carries online-ness and status independently. Online means
// nothing unless OnlineKnown is set; a status update alone does not make a
// user offline.
type Presence struct {
	UserID        int64
	Online        bool
	OnlineKnown   bool
	StatusMessage string
	ChangedAt     time.Time
}

type Reaction struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"reaction_type"`
	CreatedAt time.Time `json:"created_at"`
}

type ChannelMember struct {
	ChannelID int64  `json:"channel_id"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
}

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)
