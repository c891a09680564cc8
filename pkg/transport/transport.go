// Package transport defines the boundary to the WhatsApp socket library.
// The core routes against the Transport interface; the whatsmeow adapter
// in this package is the production implementation.
package transport

import (
	"context"
	"errors"
	"time"

	"lunabot/pkg/message"
)

var ErrNotConnected = errors.New("transport not connected")

// ParticipantAction mirrors the group participant update verbs.
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantRemove  ParticipantAction = "remove"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
)

type PresenceState string

const (
	PresenceAvailable   PresenceState = "available"
	PresenceUnavailable PresenceState = "unavailable"
	PresenceComposing   PresenceState = "composing"
)

type Participant struct {
	JID     string
	IsAdmin bool
}

type GroupMetadata struct {
	Subject      string
	Participants []Participant
}

type ChannelMetadata struct {
	Subject string
}

type ParticipantResult struct {
	JID    string
	Status int
}

// GroupUpdate is a group membership change (join/leave/promote/demote).
type GroupUpdate struct {
	GroupID      string
	Action       ParticipantAction
	Participants []string
}

type CallStatus string

const (
	CallIncoming CallStatus = "incoming"
	CallMissed   CallStatus = "missed"
)

type CallEvent struct {
	CallID    string
	CallerID  string
	IsVideo   bool
	Status    CallStatus
	Timestamp time.Time
}

type ContactEvent struct {
	ContactID   string
	ContactName string
}

type GroupInvite struct {
	GroupID    string
	GroupName  string
	Inviter    string
	InviteCode string
	Expiration int64
}

type ConnectionState string

const (
	ConnectionOpen      ConnectionState = "open"
	ConnectionClosed    ConnectionState = "closed"
	ConnectionLoggedOut ConnectionState = "logged-out"
	ConnectionReplaced  ConnectionState = "replaced"
)

type ConnectionUpdate struct {
	State ConnectionState
}

// Handlers receives converted transport events. Nil callbacks are skipped.
type Handlers struct {
	Message     func(*message.RawEvent)
	GroupUpdate func(*GroupUpdate)
	Call        func(*CallEvent)
	Contact     func(*ContactEvent)
	GroupInvite func(*GroupInvite)
	Connection  func(*ConnectionUpdate)
}

// SendOptions controls an outbound message: quoting an inbound message
// and/or tagging participants.
type SendOptions struct {
	QuotedID     string
	QuotedSender string
	QuotedText   string
	Mentions     []string
}

// Transport is the outbound surface the core calls back into.
type Transport interface {
	SelfJID() string
	Subscribe(h Handlers)

	SendText(ctx context.Context, chatID, text string, opts *SendOptions) (string, error)
	GetGroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error)
	GetChannelMetadata(ctx context.Context, chatID string) (*ChannelMetadata, error)
	ContactName(ctx context.Context, jid string) (string, error)
	UpdateGroupParticipants(ctx context.Context, groupID string, participants []string, action ParticipantAction) ([]ParticipantResult, error)
	RejectCall(ctx context.Context, callID, callerID string) error
	AcceptGroupInvite(ctx context.Context, invite *GroupInvite) error
	UpdatePresence(ctx context.Context, state PresenceState, chatID string) error
}
