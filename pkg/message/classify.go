package message

import (
	"fmt"
	"strings"
	"time"

	"lunabot/pkg/lang"
)

// MetadataLookup is the slice of the transport the classifier needs for
// naming chats and senders. Implementations may fail; classification
// degrades to placeholders instead of propagating errors.
type MetadataLookup interface {
	GroupSubject(chatID string) (string, error)
	ChannelSubject(chatID string) (string, error)
	ContactName(jid string) (string, error)
}

// Classified is the immutable derived view of one inbound message. Exactly
// one of IsReaction, IsReply, or neither drives primary dispatch.
type Classified struct {
	// Ignore marks status-broadcast pseudo-chats; the dispatcher
	// short-circuits without routing.
	Ignore bool

	ChatID       string
	ChatKind     ChatKind
	ChatName     string
	MessageID    string
	SenderID     string
	SenderDigits string
	SenderName   string
	FromSelf     bool

	ContentType    Kind
	PlainText      string
	HasAttachment  bool
	AttachmentKind string
	IsForwarded    bool

	IsReply           bool
	RepliedTo         string
	QuotedMessageID   string
	QuotedParticipant string

	// Mentions are the JIDs tagged in the message body.
	Mentions []string

	IsReaction       bool
	ReactionEmoji    string
	ReactionTargetID string

	Timestamp time.Time
}

const quotedPreviewLen = 20

var attachmentKinds = map[Kind]bool{
	KindImage:    true,
	KindVideo:    true,
	KindAudio:    true,
	KindDocument: true,
	KindSticker:  true,
}

// Classify normalizes a raw transport event into a Classified view. Metadata
// lookups are best effort: a failing lookup substitutes a placeholder and
// never fails classification.
func Classify(raw *RawEvent, selfJID string, lookup MetadataLookup, tr *lang.Store) Classified {
	content := raw.Content
	// Disappearing-message envelopes wrap the real content one level deep.
	if content != nil && content.Ephemeral != nil {
		content = content.Ephemeral
	}

	if raw.Key.ChatID == statusBroadcast {
		return Classified{Ignore: true, ChatID: raw.Key.ChatID}
	}

	sender := raw.Key.Participant
	if raw.Key.FromSelf {
		sender = selfJID
	}
	if sender == "" {
		sender = raw.Key.ChatID
	}

	cm := Classified{
		ChatID:       raw.Key.ChatID,
		ChatKind:     ChatKindOf(raw.Key.ChatID),
		MessageID:    raw.Key.ID,
		SenderID:     sender,
		SenderDigits: Digits(sender),
		FromSelf:     raw.Key.FromSelf,
		ContentType:  content.Kind(),
		PlainText:    TextContent(content),
		Timestamp:    raw.Timestamp,
	}

	cm.ChatName = chatName(cm, raw.PushName, lookup, tr)
	cm.SenderName = senderName(sender, raw.PushName, lookup, tr)

	// Attachment: the variant itself, or one level into the quoted message.
	if attachmentKinds[cm.ContentType] {
		cm.HasAttachment = true
		cm.AttachmentKind = attachmentKind(cm.ContentType)
	} else if ctx := content.contextInfo(); ctx != nil && ctx.QuotedMessage != nil {
		if quoted := ctx.QuotedMessage.Kind(); attachmentKinds[quoted] {
			cm.HasAttachment = true
			cm.AttachmentKind = "quoted-" + attachmentKind(quoted)
		}
	}

	classifyReaction(&cm, content)
	if !cm.IsReaction {
		classifyReply(&cm, content, lookup, tr)
	}

	if ctx := content.contextInfo(); ctx != nil {
		cm.IsForwarded = ctx.IsForwarded
		cm.Mentions = ctx.MentionedJIDs
	}

	return cm
}

func classifyReaction(cm *Classified, content *Content) {
	if content == nil {
		return
	}
	if content.Reaction != nil {
		cm.IsReaction = true
		cm.ReactionEmoji = content.Reaction.Emoji
		cm.ReactionTargetID = content.Reaction.TargetID
		return
	}
	if ctx := content.contextInfo(); ctx != nil && ctx.Reaction != nil {
		cm.IsReaction = true
		cm.ReactionEmoji = ctx.Reaction.Emoji
		cm.ReactionTargetID = ctx.Reaction.TargetID
	}
}

func classifyReply(cm *Classified, content *Content, lookup MetadataLookup, tr *lang.Store) {
	ctx := content.contextInfo()
	if ctx == nil || ctx.QuotedMessage == nil {
		return
	}

	cm.IsReply = true
	cm.QuotedMessageID = ctx.StanzaID
	cm.QuotedParticipant = ctx.Participant

	quotedName := tr.Get("classifier.unknown")
	if ctx.Participant != "" {
		if name, err := lookup.ContactName(ctx.Participant); err == nil && name != "" {
			quotedName = name
		} else {
			quotedName = Digits(ctx.Participant)
		}
	}

	preview := Truncate(TextContent(ctx.QuotedMessage), quotedPreviewLen)
	cm.RepliedTo = fmt.Sprintf("@%s - %q", quotedName, preview)
}

// Truncate shortens s to at most max runes, appending "..." when cut.
// Cutting on runes keeps multi-byte text (emoji, CJK) valid UTF-8.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func chatName(cm Classified, pushName string, lookup MetadataLookup, tr *lang.Store) string {
	switch cm.ChatKind {
	case ChatGroup:
		subject, err := lookup.GroupSubject(cm.ChatID)
		if err != nil || subject == "" {
			return tr.Get("classifier.unknownGroup")
		}
		return subject
	case ChatChannel:
		subject, err := lookup.ChannelSubject(cm.ChatID)
		if err != nil || subject == "" {
			return tr.Get("classifier.unknownChannel")
		}
		return subject
	default:
		return senderName(cm.SenderID, pushName, lookup, tr)
	}
}

func senderName(jid, pushName string, lookup MetadataLookup, tr *lang.Store) string {
	if jid == "" {
		return tr.Get("classifier.unknown")
	}
	if name, err := lookup.ContactName(jid); err == nil && name != "" {
		return name
	}
	if pushName != "" {
		return pushName
	}
	return strings.SplitN(jid, "@", 2)[0]
}
