package logger

const (
	FieldChatID   = "chat_id"
	FieldSender   = "sender"
	FieldCommand  = "command"
	FieldEvent    = "event"
	FieldPreview  = "preview"
	FieldError    = "error"
	FieldGroup    = "group"
	FieldReaction = "reaction"
)
