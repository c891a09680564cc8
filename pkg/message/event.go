package message

import (
	"strings"
	"time"
)

const (
	groupSuffix     = "@g.us"
	channelSuffix   = "@newsletter"
	userSuffix      = "@s.whatsapp.net"
	statusBroadcast = "status@broadcast"
)

// Key identifies one message within a chat.
type Key struct {
	ChatID      string
	Participant string
	ID          string
	FromSelf    bool
}

// RawEvent is the transport's inbound message envelope, consumed exactly
// once by Classify.
type RawEvent struct {
	Key       Key
	Timestamp time.Time
	PushName  string
	Content   *Content
}

type ChatKind int

const (
	ChatPrivate ChatKind = iota
	ChatGroup
	ChatChannel
)

func (k ChatKind) String() string {
	switch k {
	case ChatGroup:
		return "group"
	case ChatChannel:
		return "channel"
	default:
		return "private"
	}
}

// ChatKindOf derives the chat kind from the JID suffix convention.
func ChatKindOf(chatID string) ChatKind {
	switch {
	case strings.HasSuffix(chatID, groupSuffix):
		return ChatGroup
	case strings.HasSuffix(chatID, channelSuffix):
		return ChatChannel
	default:
		return ChatPrivate
	}
}

// Digits strips everything but digits from a JID or phone number.
func Digits(jid string) string {
	var b strings.Builder
	for _, r := range jid {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserJID builds a full user JID from a phone number.
func UserJID(number string) string {
	return Digits(number) + userSuffix
}
