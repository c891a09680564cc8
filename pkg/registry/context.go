package registry

import (
	"context"

	"lunabot/pkg/lang"
	"lunabot/pkg/message"
	"lunabot/pkg/transport"
)

// Context is the normalized view handed to every handler callback: command
// runs, reply/reaction continuations, chat patterns, and named-event
// subscribers.
type Context struct {
	Ctx       context.Context
	Transport transport.Transport
	Lang      *lang.Store
	Registry  *Registry

	Message *message.Classified
	Raw     *message.RawEvent
	IsGroup bool

	// Command routing.
	Command string
	Args    []string
	Prefix  string

	// Chat pattern routing: regex submatches, nil for exact matches.
	Match []string

	// Reaction routing.
	Reaction string

	// Named-event routing.
	EventName   string
	GroupUpdate *transport.GroupUpdate
	Call        *transport.CallEvent
	Contact     *transport.ContactEvent
	Invite      *transport.GroupInvite
}

// Reply sends text to the current chat, quoting the inbound message.
func (c *Context) Reply(text string) error {
	opts := &transport.SendOptions{}
	if c.Message != nil {
		opts.QuotedID = c.Message.MessageID
		opts.QuotedSender = c.Message.SenderID
		opts.QuotedText = c.Message.PlainText
	}
	_, err := c.Transport.SendText(c.Ctx, c.Message.ChatID, text, opts)
	return err
}

// Send sends plain text to the current chat without quoting.
func (c *Context) Send(text string) error {
	_, err := c.Transport.SendText(c.Ctx, c.Message.ChatID, text, nil)
	return err
}

// HandlerFunc is the uniform callback signature for every handler table.
type HandlerFunc func(*Context) error

// RunFunc is a command's entry point.
type RunFunc func(*Context) error
