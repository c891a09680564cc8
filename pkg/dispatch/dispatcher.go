// Package dispatch routes classified inbound events to the handler tables
// in the registry, applying policy before command execution. One inbound
// event takes exactly one primary route (reaction, reply, command, or
// chat); scoped named-event subscribers run afterwards regardless of the
// route taken. Status broadcasts take neither path.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"lunabot/pkg/config"
	"lunabot/pkg/lang"
	"lunabot/pkg/logger"
	"lunabot/pkg/message"
	"lunabot/pkg/policy"
	"lunabot/pkg/registry"
	"lunabot/pkg/transport"
)

// Route names the primary path one message took, for logging and stats.
type Route string

const (
	RouteIgnored  Route = "ignored"
	RouteReaction Route = "reaction"
	RouteReply    Route = "reply"
	RouteCommand  Route = "command"
	RouteChat     Route = "chat"
)

// Stats counts dispatched traffic; the status server reads the snapshot.
type Stats struct {
	Messages  atomic.Int64
	Commands  atomic.Int64
	Reactions atomic.Int64
	Replies   atomic.Int64
	Denied    atomic.Int64
	Errors    atomic.Int64
}

type StatsSnapshot struct {
	Messages  int64 `json:"messages"`
	Commands  int64 `json:"commands"`
	Reactions int64 `json:"reactions"`
	Replies   int64 `json:"replies"`
	Denied    int64 `json:"denied"`
	Errors    int64 `json:"errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Messages:  s.Messages.Load(),
		Commands:  s.Commands.Load(),
		Reactions: s.Reactions.Load(),
		Replies:   s.Replies.Load(),
		Denied:    s.Denied.Load(),
		Errors:    s.Errors.Load(),
	}
}

// Dispatcher owns the inbound pipeline. Construct once, Attach to a
// transport, and it drives everything from the transport's callbacks.
type Dispatcher struct {
	cfg   *config.Config
	tr    transport.Transport
	reg   *registry.Registry
	guard *policy.Guard
	lang  *lang.Store
	stats Stats

	// OnLoggedOut is invoked when the session is invalidated remotely.
	OnLoggedOut func()
}

func New(cfg *config.Config, tr transport.Transport, reg *registry.Registry, guard *policy.Guard, ts *lang.Store) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		tr:    tr,
		reg:   reg,
		guard: guard,
		lang:  ts,
	}
}

func (d *Dispatcher) Stats() *Stats {
	return &d.stats
}

// Attach subscribes the dispatcher to the transport. Each callback runs in
// its own goroutine so a slow handler never blocks the socket reader.
func (d *Dispatcher) Attach(ctx context.Context) {
	d.tr.Subscribe(transport.Handlers{
		Message: func(raw *message.RawEvent) {
			go d.HandleMessage(ctx, raw)
		},
		GroupUpdate: func(update *transport.GroupUpdate) {
			go d.HandleGroupUpdate(ctx, update)
		},
		Call: func(call *transport.CallEvent) {
			go d.HandleCall(ctx, call)
		},
		Contact: func(contact *transport.ContactEvent) {
			go d.HandleContact(ctx, contact)
		},
		GroupInvite: func(invite *transport.GroupInvite) {
			go d.HandleGroupInvite(ctx, invite)
		},
		Connection: func(update *transport.ConnectionUpdate) {
			d.handleConnection(update)
		},
	})
}

// HandleMessage runs the full pipeline for one inbound message: classify,
// route through exactly one primary path, then secondary event dispatch.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw *message.RawEvent) {
	d.stats.Messages.Add(1)

	lookup := &metadataLookup{ctx: ctx, tr: d.tr, ts: d.lang}
	cm := message.Classify(raw, d.tr.SelfJID(), lookup, d.lang)

	route := d.routeMessage(ctx, &cm, raw)
	d.logTraffic(&cm, route)

	// Status broadcasts are dropped entirely; everything else reaches the
	// secondary event subscribers, whatever the primary route decided.
	if cm.Ignore {
		return
	}
	d.runSecondary(ctx, &cm, raw)
}

func (d *Dispatcher) routeMessage(ctx context.Context, cm *message.Classified, raw *message.RawEvent) Route {
	if cm.Ignore {
		return RouteIgnored
	}

	if cm.IsReaction {
		// An un-react carries an empty emoji and triggers nothing.
		if cm.ReactionEmoji == "" {
			return RouteIgnored
		}
		return d.routeReaction(ctx, cm, raw)
	}

	if cm.IsReply {
		if reg, ok := d.reg.ConsumeReply(cm.QuotedMessageID); ok {
			d.stats.Replies.Add(1)
			d.invoke(fmt.Sprintf("reply:%s", cm.QuotedMessageID), reg.Callback, d.handlerContext(ctx, cm, raw))
			return RouteReply
		}
		// No registration for the quoted message: treat the reply as a
		// normal message so commands still work when quoting.
	}

	prefix := d.reg.PrefixFor(cm.ChatID, d.cfg.PrefixFor(cm.ChatID))
	if strings.HasPrefix(cm.PlainText, prefix) {
		d.routeCommand(ctx, cm, raw, prefix)
		return RouteCommand
	}

	d.routeChat(ctx, cm, raw)
	return RouteChat
}

func (d *Dispatcher) routeReaction(ctx context.Context, cm *message.Classified, raw *message.RawEvent) Route {
	reg, ok := d.reg.ConsumeReaction(cm.ReactionTargetID, cm.ReactionEmoji)
	if !ok {
		return RouteReaction
	}
	d.stats.Reactions.Add(1)
	logger.DebugCF("dispatch", "Reaction matched", map[string]interface{}{
		logger.FieldReaction: cm.ReactionEmoji,
		logger.FieldSender:   cm.SenderDigits,
		"target":             cm.ReactionTargetID,
	})

	hctx := d.handlerContext(ctx, cm, raw)
	hctx.Reaction = cm.ReactionEmoji
	d.invoke(fmt.Sprintf("reaction:%s", reg.Key), reg.Callback, hctx)
	return RouteReaction
}

func (d *Dispatcher) routeCommand(ctx context.Context, cm *message.Classified, raw *message.RawEvent, prefix string) {
	hctx := d.handlerContext(ctx, cm, raw)
	hctx.Prefix = prefix

	name, args := splitCommand(strings.TrimPrefix(cm.PlainText, prefix))
	if name == "" {
		d.notify(hctx, d.lang.Get("handler.noCommandProvided", prefix))
		return
	}

	cmd, ok := d.reg.Resolve(name)
	if !ok {
		d.notify(hctx, d.lang.Get("handler.unknownCommand", name, prefix))
		return
	}

	hctx.Command = cmd.Name
	hctx.Args = args

	groupAdmin := false
	if hctx.IsGroup && cmd.Permission > 0 && !d.guard.IsAdmin(cm.SenderDigits) {
		groupAdmin = d.senderIsGroupAdmin(ctx, cm)
	}

	decision := d.guard.CheckCommand(cm.SenderDigits, cmd, cm.FromSelf, hctx.IsGroup, groupAdmin)
	if !decision.Allowed {
		d.stats.Denied.Add(1)
		d.notifyDenial(hctx, cmd, decision)
		return
	}

	if secs := d.guard.CommandCooldown(cmd); secs > 0 {
		d.guard.ArmCooldown(cmd.Name, cm.SenderDigits, secs)
	}

	d.stats.Commands.Add(1)
	logger.InfoCF("dispatch", "Executing command", map[string]interface{}{
		logger.FieldCommand: cmd.Name,
		logger.FieldSender:  cm.SenderDigits,
		logger.FieldChatID:  cm.ChatID,
	})
	d.invoke("command:"+cmd.Name, registry.HandlerFunc(cmd.Run), hctx)
}

func (d *Dispatcher) routeChat(ctx context.Context, cm *message.Classified, raw *message.RawEvent) {
	if cm.PlainText == "" {
		return
	}
	if !d.guard.CheckSend(cm.SenderDigits, cm.FromSelf) {
		d.stats.Denied.Add(1)
		return
	}

	for _, match := range d.reg.MatchChatPatterns(cm.PlainText) {
		hctx := d.handlerContext(ctx, cm, raw)
		hctx.Match = match.Submatches
		d.invoke("chat", match.Pattern.Callback, hctx)
	}
}

// runSecondary fires named-event subscribers whose configured thread scope
// covers the chat. It runs after primary routing for every message.
func (d *Dispatcher) runSecondary(ctx context.Context, cm *message.Classified, raw *message.RawEvent) {
	for _, reg := range d.reg.ActiveEventSubscribers(cm.ChatID) {
		hctx := d.handlerContext(ctx, cm, raw)
		hctx.EventName = reg.Key
		d.invoke("event:"+reg.Key, reg.Callback, hctx)
	}
}

func (d *Dispatcher) senderIsGroupAdmin(ctx context.Context, cm *message.Classified) bool {
	meta := safelyGetGroupMetadata(ctx, d.tr, d.lang, cm.ChatID)
	for _, p := range meta.Participants {
		if message.Digits(p.JID) == cm.SenderDigits {
			return p.IsAdmin
		}
	}
	return false
}

func (d *Dispatcher) handlerContext(ctx context.Context, cm *message.Classified, raw *message.RawEvent) *registry.Context {
	return &registry.Context{
		Ctx:       ctx,
		Transport: d.tr,
		Lang:      d.lang,
		Registry:  d.reg,
		Message:   cm,
		Raw:       raw,
		IsGroup:   cm.ChatKind == message.ChatGroup,
	}
}

// invoke runs one handler with panic isolation: a panicking handler is
// logged with its stack and never takes down the pipeline.
func (d *Dispatcher) invoke(name string, cb registry.HandlerFunc, hctx *registry.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.Errors.Add(1)
			logger.ErrorCF("dispatch", "Handler panicked", map[string]interface{}{
				"handler":         name,
				logger.FieldError: fmt.Sprint(r),
				"stack":           string(debug.Stack()),
			})
		}
	}()
	if err := cb(hctx); err != nil {
		d.stats.Errors.Add(1)
		logger.ErrorCF("dispatch", "Handler failed", map[string]interface{}{
			"handler":         name,
			logger.FieldError: err.Error(),
		})
	}
}

func (d *Dispatcher) notify(hctx *registry.Context, text string) {
	if _, err := d.tr.SendText(hctx.Ctx, hctx.Message.ChatID, text, nil); err != nil {
		logger.WarnCF("dispatch", "Failed to send notice", map[string]interface{}{
			logger.FieldChatID: hctx.Message.ChatID,
			logger.FieldError:  err.Error(),
		})
	}
}

func (d *Dispatcher) notifyDenial(hctx *registry.Context, cmd *registry.Command, decision policy.Decision) {
	sender := hctx.Message.SenderDigits
	switch decision.Reason {
	case policy.DenyBanned:
		logger.InfoCF("dispatch", "Banned sender blocked", map[string]interface{}{
			logger.FieldSender: sender,
		})
		d.notify(hctx, d.lang.Get("handler.userBanned"))
	case policy.DenyAdminOnly:
		logger.InfoCF("dispatch", "Command blocked in admin-only mode", map[string]interface{}{
			logger.FieldSender:  sender,
			logger.FieldCommand: cmd.Name,
		})
		d.notify(hctx, d.lang.Get("handler.adminOnlyMode", hctx.Prefix, cmd.Name))
	case policy.DenyNotWhitelisted:
		d.notify(hctx, d.lang.Get("handler.notWhitelisted"))
	case policy.DenyGroupOnly:
		d.notify(hctx, d.lang.Get("handler.groupOnly"))
	case policy.DenyPermission:
		logger.InfoCF("dispatch", "Permission denied", map[string]interface{}{
			logger.FieldSender:  sender,
			logger.FieldCommand: cmd.Name,
			"required":          decision.RequiredLevel,
			"actual":            decision.SenderLevel,
		})
		d.notify(hctx, d.lang.Get("handler.permissionDenied", fmt.Sprint(decision.RequiredLevel)))
	case policy.DenyCooldown:
		d.notify(hctx, d.lang.Get("handler.cooldownActive", decision.WaitSeconds))
	}
}

func (d *Dispatcher) logTraffic(cm *message.Classified, route Route) {
	preview := message.Truncate(cm.PlainText, 60)
	logger.DebugCF("dispatch", "Message dispatched", map[string]interface{}{
		logger.FieldChatID:  cm.ChatID,
		logger.FieldSender:  cm.SenderDigits,
		logger.FieldPreview: preview,
		"chat":              cm.ChatName,
		"kind":              cm.ChatKind.String(),
		"content":           cm.ContentType.String(),
		"route":             string(route),
		"from_self":         cm.FromSelf,
	})
}

// splitCommand separates the command name from its arguments. Whitespace
// between arguments is collapsed.
func splitCommand(body string) (string, []string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// Uptime tracking for the status server and the uptime command.
var startedAt = time.Now()

func Uptime() time.Duration {
	return time.Since(startedAt)
}
