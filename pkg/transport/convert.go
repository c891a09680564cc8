package transport

import (
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"lunabot/pkg/message"
)

// convertMessage maps a whatsmeow message event onto the transport-neutral
// envelope the classifier consumes.
func convertMessage(evt *events.Message) *message.RawEvent {
	return &message.RawEvent{
		Key: message.Key{
			ChatID:      evt.Info.Chat.String(),
			Participant: evt.Info.Sender.ToNonAD().String(),
			ID:          evt.Info.ID,
			FromSelf:    evt.Info.IsFromMe,
		},
		Timestamp: evt.Info.Timestamp,
		PushName:  evt.Info.PushName,
		Content:   convertContent(evt.Message),
	}
}

// convertContent maps the protobuf content tree to the internal variant
// struct. Wrapper messages (ephemeral, view-once, document-with-caption)
// recurse one level.
func convertContent(m *waE2E.Message) *message.Content {
	if m == nil {
		return nil
	}
	c := &message.Content{}
	switch {
	case m.GetConversation() != "":
		c.Conversation = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		ext := m.GetExtendedTextMessage()
		c.ExtendedText = &message.ExtendedText{
			Text:        ext.GetText(),
			ContextInfo: convertContextInfo(ext.GetContextInfo()),
		}
	case m.GetImageMessage() != nil:
		c.Image = convertMedia(m.GetImageMessage().GetCaption(), m.GetImageMessage().GetMimetype(), m.GetImageMessage().GetContextInfo())
	case m.GetVideoMessage() != nil:
		c.Video = convertMedia(m.GetVideoMessage().GetCaption(), m.GetVideoMessage().GetMimetype(), m.GetVideoMessage().GetContextInfo())
	case m.GetAudioMessage() != nil:
		c.Audio = convertMedia("", m.GetAudioMessage().GetMimetype(), m.GetAudioMessage().GetContextInfo())
	case m.GetDocumentMessage() != nil:
		c.Document = convertMedia(m.GetDocumentMessage().GetCaption(), m.GetDocumentMessage().GetMimetype(), m.GetDocumentMessage().GetContextInfo())
	case m.GetStickerMessage() != nil:
		c.Sticker = convertMedia("", m.GetStickerMessage().GetMimetype(), m.GetStickerMessage().GetContextInfo())
	case m.GetReactionMessage() != nil:
		r := m.GetReactionMessage()
		c.Reaction = &message.Reaction{
			Emoji:      r.GetText(),
			TargetID:   r.GetKey().GetID(),
			TargetChat: r.GetKey().GetRemoteJID(),
		}
	case m.GetEphemeralMessage() != nil:
		c.Ephemeral = convertContent(m.GetEphemeralMessage().GetMessage())
	case m.GetViewOnceMessage() != nil:
		c.ViewOnce = convertContent(m.GetViewOnceMessage().GetMessage())
	case m.GetViewOnceMessageV2() != nil:
		c.ViewOnce = convertContent(m.GetViewOnceMessageV2().GetMessage())
	case m.GetDocumentWithCaptionMessage() != nil:
		c.DocumentWithCaption = convertContent(m.GetDocumentWithCaptionMessage().GetMessage())
	case m.GetTemplateButtonReplyMessage() != nil:
		t := m.GetTemplateButtonReplyMessage()
		c.TemplateButtonReply = &message.ButtonReply{
			SelectedDisplayText: t.GetSelectedDisplayText(),
			ContextInfo:         convertContextInfo(t.GetContextInfo()),
		}
	case m.GetButtonsResponseMessage() != nil:
		b := m.GetButtonsResponseMessage()
		c.ButtonsResponse = &message.ButtonReply{
			SelectedDisplayText: b.GetSelectedDisplayText(),
			ContextInfo:         convertContextInfo(b.GetContextInfo()),
		}
	case m.GetListResponseMessage() != nil:
		l := m.GetListResponseMessage()
		c.ListResponse = &message.ListReply{
			Title:       l.GetTitle(),
			ContextInfo: convertContextInfo(l.GetContextInfo()),
		}
	case m.GetPollCreationMessageV3() != nil:
		c.OtherType = "pollCreation"
	case m.GetLocationMessage() != nil:
		c.OtherType = "location"
	case m.GetContactMessage() != nil:
		c.OtherType = "contact"
	case m.GetProtocolMessage() != nil:
		c.OtherType = "protocol"
	}
	return c
}

func convertMedia(caption, mimeType string, ctx *waE2E.ContextInfo) *message.Media {
	return &message.Media{
		Caption:     caption,
		MimeType:    mimeType,
		ContextInfo: convertContextInfo(ctx),
	}
}

func convertContextInfo(ci *waE2E.ContextInfo) *message.ContextInfo {
	if ci == nil {
		return nil
	}
	out := &message.ContextInfo{
		Participant:   ci.GetParticipant(),
		StanzaID:      ci.GetStanzaID(),
		IsForwarded:   ci.GetIsForwarded(),
		MentionedJIDs: ci.GetMentionedJID(),
	}
	if q := ci.GetQuotedMessage(); q != nil {
		out.QuotedMessage = convertContent(q)
	}
	return out
}
