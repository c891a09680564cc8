package dispatch

import (
	"context"
	"strings"

	"lunabot/pkg/logger"
	"lunabot/pkg/message"
	"lunabot/pkg/registry"
	"lunabot/pkg/transport"
)

// Named events dispatched to registry subscribers. Automatic side effects
// (welcome messages, call rejection, invite acceptance) and subscriber
// callbacks share these single entry points.
const (
	EventGroupJoin    = "group.join"
	EventGroupLeave   = "group.leave"
	EventGroupPromote = "group.promote"
	EventGroupDemote  = "group.demote"
	EventCallIncoming = "call.incoming"
	EventCallMissed   = "call.missed"
	EventContactJoin  = "contact.joined"
	EventGroupInvite  = "group.invite"
)

// HandleGroupUpdate processes one membership change: the configured
// welcome/leave announcement first, then the registered subscriber.
func (d *Dispatcher) HandleGroupUpdate(ctx context.Context, update *transport.GroupUpdate) {
	eventName := groupEventName(update.Action)
	logger.InfoCF("dispatch", "Group update", map[string]interface{}{
		logger.FieldGroup: update.GroupID,
		logger.FieldEvent: eventName,
		"participants":    len(update.Participants),
	})

	switch update.Action {
	case transport.ParticipantAdd:
		if d.cfg.Welcome.Enabled {
			d.announceMembers(ctx, update, d.cfg.Welcome.Template, "group.welcomeMessage")
		}
	case transport.ParticipantRemove:
		if d.cfg.Leave.Enabled {
			d.announceMembers(ctx, update, d.cfg.Leave.Template, "group.leaveMessage")
		}
	}

	d.fireEvent(ctx, eventName, func(hctx *registry.Context) {
		hctx.GroupUpdate = update
	})
}

func groupEventName(action transport.ParticipantAction) string {
	switch action {
	case transport.ParticipantAdd:
		return EventGroupJoin
	case transport.ParticipantRemove:
		return EventGroupLeave
	case transport.ParticipantPromote:
		return EventGroupPromote
	default:
		return EventGroupDemote
	}
}

// announceMembers sends one templated message per affected participant,
// substituting {user} and {group} and tagging the participant.
func (d *Dispatcher) announceMembers(ctx context.Context, update *transport.GroupUpdate, template, fallbackKey string) {
	if template == "" {
		template = d.lang.Get(fallbackKey)
	}
	meta := safelyGetGroupMetadata(ctx, d.tr, d.lang, update.GroupID)

	for _, jid := range update.Participants {
		digits := message.Digits(jid)
		text := strings.NewReplacer(
			"{user}", "@"+digits,
			"{group}", meta.Subject,
		).Replace(template)

		opts := &transport.SendOptions{Mentions: []string{jid}}
		if _, err := d.tr.SendText(ctx, update.GroupID, text, opts); err != nil {
			logger.WarnCF("dispatch", "Failed to send group announcement", map[string]interface{}{
				logger.FieldGroup: update.GroupID,
				logger.FieldError: err.Error(),
			})
		}
	}
}

// HandleCall logs the call and, when configured, rejects it and messages
// the caller.
func (d *Dispatcher) HandleCall(ctx context.Context, call *transport.CallEvent) {
	logger.InfoCF("dispatch", "Call event", map[string]interface{}{
		"call_id":          call.CallID,
		logger.FieldSender: message.Digits(call.CallerID),
		"video":            call.IsVideo,
		"status":           string(call.Status),
	})

	if call.Status == transport.CallIncoming && d.cfg.Calls.Reject {
		if err := d.tr.RejectCall(ctx, call.CallID, call.CallerID); err != nil {
			logger.WarnCF("dispatch", "Failed to reject call", map[string]interface{}{
				"call_id":         call.CallID,
				logger.FieldError: err.Error(),
			})
		} else {
			text := d.cfg.Calls.RejectMessage
			if text == "" {
				text = d.lang.Get("call.rejectMessage")
			}
			if _, err := d.tr.SendText(ctx, call.CallerID, text, nil); err != nil {
				logger.WarnCF("dispatch", "Failed to send call-reject notice", map[string]interface{}{
					logger.FieldError: err.Error(),
				})
			}
		}
	}

	eventName := EventCallIncoming
	if call.Status == transport.CallMissed {
		eventName = EventCallMissed
	}
	d.fireEvent(ctx, eventName, func(hctx *registry.Context) {
		hctx.Call = call
	})
}

func (d *Dispatcher) HandleContact(ctx context.Context, contact *transport.ContactEvent) {
	logger.DebugCF("dispatch", "Contact event", map[string]interface{}{
		logger.FieldSender: message.Digits(contact.ContactID),
	})
	d.fireEvent(ctx, EventContactJoin, func(hctx *registry.Context) {
		hctx.Contact = contact
	})
}

// HandleGroupInvite auto-accepts when enabled; the admins-only gate
// requires the inviter to be a configured bot admin.
func (d *Dispatcher) HandleGroupInvite(ctx context.Context, invite *transport.GroupInvite) {
	logger.InfoCF("dispatch", "Group invite", map[string]interface{}{
		logger.FieldGroup:  invite.GroupID,
		"group_name":       invite.GroupName,
		logger.FieldSender: message.Digits(invite.Inviter),
	})

	if d.cfg.Invites.Enabled {
		allowed := !d.cfg.Invites.AdminsOnly || d.guard.IsAdmin(message.Digits(invite.Inviter))
		if allowed {
			if err := d.tr.AcceptGroupInvite(ctx, invite); err != nil {
				logger.WarnCF("dispatch", "Failed to accept group invite", map[string]interface{}{
					logger.FieldGroup: invite.GroupID,
					logger.FieldError: err.Error(),
				})
			} else {
				logger.InfoCF("dispatch", "Joined group via invite", map[string]interface{}{
					logger.FieldGroup: invite.GroupID,
				})
			}
		} else {
			logger.InfoCF("dispatch", "Ignoring invite from non-admin", map[string]interface{}{
				logger.FieldSender: message.Digits(invite.Inviter),
			})
		}
	}

	d.fireEvent(ctx, EventGroupInvite, func(hctx *registry.Context) {
		hctx.Invite = invite
	})
}

func (d *Dispatcher) handleConnection(update *transport.ConnectionUpdate) {
	switch update.State {
	case transport.ConnectionOpen:
		logger.InfoC("dispatch", d.lang.Get("connection.connected"))
	case transport.ConnectionClosed:
		logger.WarnC("dispatch", d.lang.Get("connection.disconnected"))
	case transport.ConnectionReplaced:
		logger.WarnC("dispatch", "Session replaced by another client")
	case transport.ConnectionLoggedOut:
		logger.ErrorC("dispatch", d.lang.Get("connection.loggedOut"))
		if d.OnLoggedOut != nil {
			d.OnLoggedOut()
		}
	}
}

// fireEvent invokes the subscriber registered for a named event, if any.
func (d *Dispatcher) fireEvent(ctx context.Context, eventName string, decorate func(*registry.Context)) {
	reg, ok := d.reg.Event(eventName)
	if !ok {
		return
	}
	hctx := &registry.Context{
		Ctx:       ctx,
		Transport: d.tr,
		Lang:      d.lang,
		Registry:  d.reg,
		EventName: eventName,
	}
	decorate(hctx)
	d.invoke("event:"+eventName, reg.Callback, hctx)
}
