package message

// Kind discriminates the content variants a WhatsApp message can carry.
// The protocol guarantees exactly one variant per message; Kind() reports
// which one is populated.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindExtendedText
	KindImage
	KindVideo
	KindAudio
	KindDocument
	KindSticker
	KindReaction
	KindDocumentWithCaption
	KindViewOnce
	KindTemplateButtonReply
	KindButtonsResponse
	KindListResponse
	KindOther
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindText:                "conversation",
	KindExtendedText:        "extendedText",
	KindImage:               "image",
	KindVideo:               "video",
	KindAudio:               "audio",
	KindDocument:            "document",
	KindSticker:             "sticker",
	KindReaction:            "reaction",
	KindDocumentWithCaption: "documentWithCaption",
	KindViewOnce:            "viewOnce",
	KindTemplateButtonReply: "templateButtonReply",
	KindButtonsResponse:     "buttonsResponse",
	KindListResponse:        "listResponse",
	KindOther:               "other",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Content is the message content tree. At most one variant field is set;
// wrappers (Ephemeral, ViewOnce, DocumentWithCaption) nest a full tree.
type Content struct {
	Conversation        string
	ExtendedText        *ExtendedText
	Image               *Media
	Video               *Media
	Audio               *Media
	Document            *Media
	Sticker             *Media
	Reaction            *Reaction
	Ephemeral           *Content
	ViewOnce            *Content
	DocumentWithCaption *Content
	TemplateButtonReply *ButtonReply
	ButtonsResponse     *ButtonReply
	ListResponse        *ListReply
	// OtherType names a variant outside the closed set (poll, location, ...).
	OtherType string
}

type ExtendedText struct {
	Text        string
	ContextInfo *ContextInfo
}

type Media struct {
	Caption     string
	MimeType    string
	ContextInfo *ContextInfo
}

// Reaction is an emoji applied to an earlier message, identified by the
// target's message id.
type Reaction struct {
	Emoji      string
	TargetID   string
	TargetChat string
}

type ButtonReply struct {
	SelectedDisplayText string
	ContextInfo         *ContextInfo
}

type ListReply struct {
	Title       string
	ContextInfo *ContextInfo
}

// ContextInfo carries quote/forward/mention metadata attached to a variant.
type ContextInfo struct {
	QuotedMessage *Content
	Participant   string
	StanzaID      string
	IsForwarded   bool
	Reaction      *Reaction
	MentionedJIDs []string
}

// Kind reports which variant is populated.
func (c *Content) Kind() Kind {
	switch {
	case c == nil:
		return KindUnknown
	case c.Conversation != "":
		return KindText
	case c.ExtendedText != nil:
		return KindExtendedText
	case c.Image != nil:
		return KindImage
	case c.Video != nil:
		return KindVideo
	case c.Audio != nil:
		return KindAudio
	case c.Document != nil:
		return KindDocument
	case c.Sticker != nil:
		return KindSticker
	case c.Reaction != nil:
		return KindReaction
	case c.Ephemeral != nil:
		return KindUnknown // callers unwrap before classifying
	case c.ViewOnce != nil:
		return KindViewOnce
	case c.DocumentWithCaption != nil:
		return KindDocumentWithCaption
	case c.TemplateButtonReply != nil:
		return KindTemplateButtonReply
	case c.ButtonsResponse != nil:
		return KindButtonsResponse
	case c.ListResponse != nil:
		return KindListResponse
	case c.OtherType != "":
		return KindOther
	default:
		return KindUnknown
	}
}

// contextInfo returns the variant's attached context, if any.
func (c *Content) contextInfo() *ContextInfo {
	if c == nil {
		return nil
	}
	switch {
	case c.ExtendedText != nil:
		return c.ExtendedText.ContextInfo
	case c.Image != nil:
		return c.Image.ContextInfo
	case c.Video != nil:
		return c.Video.ContextInfo
	case c.Audio != nil:
		return c.Audio.ContextInfo
	case c.Document != nil:
		return c.Document.ContextInfo
	case c.Sticker != nil:
		return c.Sticker.ContextInfo
	case c.TemplateButtonReply != nil:
		return c.TemplateButtonReply.ContextInfo
	case c.ButtonsResponse != nil:
		return c.ButtonsResponse.ContextInfo
	case c.ListResponse != nil:
		return c.ListResponse.ContextInfo
	default:
		return nil
	}
}

// attachmentKind maps a variant to its attachment name, or "" when the
// variant is not one of the attachment types.
func attachmentKind(k Kind) string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	case KindSticker:
		return "sticker"
	default:
		return ""
	}
}

// TextContent extracts the message's plain text, walking a fixed priority
// of text-bearing fields and recursing through view-once wrappers. Returns
// "" when no text is found.
func TextContent(c *Content) string {
	if c == nil {
		return ""
	}
	if c.Conversation != "" {
		return c.Conversation
	}
	if c.ExtendedText != nil && c.ExtendedText.Text != "" {
		return c.ExtendedText.Text
	}
	if c.Image != nil && c.Image.Caption != "" {
		return c.Image.Caption
	}
	if c.Video != nil && c.Video.Caption != "" {
		return c.Video.Caption
	}
	if c.Document != nil && c.Document.Caption != "" {
		return c.Document.Caption
	}
	if c.DocumentWithCaption != nil {
		if inner := c.DocumentWithCaption; inner.Document != nil && inner.Document.Caption != "" {
			return inner.Document.Caption
		}
	}
	if c.ViewOnce != nil {
		return TextContent(c.ViewOnce)
	}
	if c.TemplateButtonReply != nil && c.TemplateButtonReply.SelectedDisplayText != "" {
		return c.TemplateButtonReply.SelectedDisplayText
	}
	if c.ButtonsResponse != nil && c.ButtonsResponse.SelectedDisplayText != "" {
		return c.ButtonsResponse.SelectedDisplayText
	}
	if c.ListResponse != nil && c.ListResponse.Title != "" {
		return c.ListResponse.Title
	}
	return ""
}
