package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"lunabot/pkg/config"
	"lunabot/pkg/logger"
	"lunabot/pkg/message"
)

// Outbound sends are throttled to stay under WhatsApp's spam heuristics.
const (
	sendInterval = 800 * time.Millisecond
	sendBurst    = 3
)

// Whatsmeow is the production Transport backed by the whatsmeow socket
// library with a SQLite session store.
type Whatsmeow struct {
	client  *whatsmeow.Client
	limiter *rate.Limiter
	phone   string

	mu       sync.RWMutex
	handlers Handlers
}

var _ Transport = (*Whatsmeow)(nil)

// NewWhatsmeow opens (or creates) the session store and builds the client.
// Connect performs the actual login.
func NewWhatsmeow(ctx context.Context, cfg *config.Config) (*Whatsmeow, error) {
	sessionPath := cfg.Account.SessionPath
	if err := os.MkdirAll(sessionPath, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dbLog := waLog.Stdout("Database", "WARN", true)
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.Join(sessionPath, "store.db"))
	container, err := sqlstore.New(ctx, "sqlite", dsn, dbLog)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	w := &Whatsmeow{
		client:  whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true)),
		limiter: rate.NewLimiter(rate.Every(sendInterval), sendBurst),
		phone:   message.Digits(cfg.Account.PhoneNumber),
	}
	w.client.AddEventHandler(w.handleEvent)
	return w, nil
}

// Connect logs in. A fresh device pairs via phone linking code when a
// number is configured, otherwise a QR code is rendered on the terminal.
func (w *Whatsmeow) Connect(ctx context.Context) error {
	if w.client.Store.ID != nil {
		return w.client.Connect()
	}

	if w.phone != "" {
		if err := w.client.Connect(); err != nil {
			return err
		}
		code, err := w.client.PairPhone(ctx, w.phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
		if err != nil {
			return fmt.Errorf("pair phone: %w", err)
		}
		logger.InfoCF("transport", "Enter this linking code on your phone", map[string]interface{}{
			"code": code,
		})
		return nil
	}

	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return err
	}
	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				logger.InfoC("transport", "Scan the QR code above with WhatsApp")
			case "success":
				logger.InfoC("transport", "QR pairing complete")
			default:
				logger.WarnCF("transport", "QR login event", map[string]interface{}{
					logger.FieldEvent: evt.Event,
				})
			}
		}
	}()
	return nil
}

func (w *Whatsmeow) Disconnect() {
	w.client.Disconnect()
}

func (w *Whatsmeow) SelfJID() string {
	if w.client.Store.ID == nil {
		return ""
	}
	return w.client.Store.ID.ToNonAD().String()
}

func (w *Whatsmeow) Subscribe(h Handlers) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = h
}

func (w *Whatsmeow) subscribed() Handlers {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handlers
}

func (w *Whatsmeow) handleEvent(rawEvt interface{}) {
	h := w.subscribed()
	switch evt := rawEvt.(type) {
	case *events.Message:
		if invite := evt.Message.GetGroupInviteMessage(); invite != nil {
			if h.GroupInvite != nil {
				h.GroupInvite(&GroupInvite{
					GroupID:    invite.GetGroupJID(),
					GroupName:  invite.GetGroupName(),
					Inviter:    evt.Info.Sender.ToNonAD().String(),
					InviteCode: invite.GetInviteCode(),
					Expiration: invite.GetInviteExpiration(),
				})
			}
			return
		}
		if h.Message != nil {
			h.Message(convertMessage(evt))
		}
	case *events.GroupInfo:
		if h.GroupUpdate == nil {
			return
		}
		for action, jids := range map[ParticipantAction][]types.JID{
			ParticipantAdd:     evt.Join,
			ParticipantRemove:  evt.Leave,
			ParticipantPromote: evt.Promote,
			ParticipantDemote:  evt.Demote,
		} {
			if len(jids) == 0 {
				continue
			}
			participants := make([]string, len(jids))
			for i, jid := range jids {
				participants[i] = jid.ToNonAD().String()
			}
			h.GroupUpdate(&GroupUpdate{
				GroupID:      evt.JID.String(),
				Action:       action,
				Participants: participants,
			})
		}
	case *events.CallOffer:
		if h.Call != nil {
			h.Call(&CallEvent{
				CallID:    evt.CallID,
				CallerID:  evt.From.ToNonAD().String(),
				Status:    CallIncoming,
				Timestamp: evt.Timestamp,
			})
		}
	case *events.CallTerminate:
		if h.Call != nil && evt.Reason == "timeout" {
			h.Call(&CallEvent{
				CallID:    evt.CallID,
				CallerID:  evt.From.ToNonAD().String(),
				Status:    CallMissed,
				Timestamp: evt.Timestamp,
			})
		}
	case *events.PushName:
		if h.Contact != nil {
			h.Contact(&ContactEvent{
				ContactID:   evt.JID.ToNonAD().String(),
				ContactName: evt.NewPushName,
			})
		}
	case *events.Connected:
		w.notifyConnection(h, ConnectionOpen)
	case *events.Disconnected:
		w.notifyConnection(h, ConnectionClosed)
	case *events.StreamReplaced:
		w.notifyConnection(h, ConnectionReplaced)
	case *events.LoggedOut:
		w.notifyConnection(h, ConnectionLoggedOut)
	}
}

func (w *Whatsmeow) notifyConnection(h Handlers, state ConnectionState) {
	if h.Connection != nil {
		h.Connection(&ConnectionUpdate{State: state})
	}
}

// SendText sends a text message, optionally quoting an earlier message and
// tagging participants. Sends are rate limited.
func (w *Whatsmeow) SendText(ctx context.Context, chatID, text string, opts *SendOptions) (string, error) {
	if !w.client.IsConnected() {
		return "", ErrNotConnected
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return "", err
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse chat jid: %w", err)
	}

	msg := buildTextMessage(text, opts)
	resp, err := w.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func buildTextMessage(text string, opts *SendOptions) *waE2E.Message {
	if opts == nil || (opts.QuotedID == "" && len(opts.Mentions) == 0) {
		return &waE2E.Message{Conversation: proto.String(text)}
	}

	ci := &waE2E.ContextInfo{}
	if opts.QuotedID != "" {
		ci.StanzaID = proto.String(opts.QuotedID)
		ci.Participant = proto.String(opts.QuotedSender)
		ci.QuotedMessage = &waE2E.Message{Conversation: proto.String(opts.QuotedText)}
	}
	if len(opts.Mentions) > 0 {
		ci.MentionedJID = opts.Mentions
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: ci,
		},
	}
}

func (w *Whatsmeow) GetGroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, err
	}
	info, err := w.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, err
	}

	participants := make([]Participant, len(info.Participants))
	for i, p := range info.Participants {
		participants[i] = Participant{
			JID:     p.JID.ToNonAD().String(),
			IsAdmin: p.IsAdmin || p.IsSuperAdmin,
		}
	}
	return &GroupMetadata{
		Subject:      info.GroupName.Name,
		Participants: participants,
	}, nil
}

func (w *Whatsmeow) GetChannelMetadata(ctx context.Context, chatID string) (*ChannelMetadata, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, err
	}
	info, err := w.client.GetNewsletterInfo(ctx, jid)
	if err != nil {
		return nil, err
	}
	return &ChannelMetadata{Subject: info.ThreadMeta.Name.Text}, nil
}

func (w *Whatsmeow) ContactName(ctx context.Context, jidStr string) (string, error) {
	jid, err := types.ParseJID(jidStr)
	if err != nil {
		return "", err
	}
	contact, err := w.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return "", err
	}
	switch {
	case contact.FullName != "":
		return contact.FullName, nil
	case contact.PushName != "":
		return contact.PushName, nil
	default:
		return "", nil
	}
}

func (w *Whatsmeow) UpdateGroupParticipants(ctx context.Context, groupID string, participants []string, action ParticipantAction) ([]ParticipantResult, error) {
	group, err := types.ParseJID(groupID)
	if err != nil {
		return nil, err
	}
	jids := make([]types.JID, 0, len(participants))
	for _, p := range participants {
		jid, err := types.ParseJID(p)
		if err != nil {
			return nil, fmt.Errorf("parse participant %q: %w", p, err)
		}
		jids = append(jids, jid)
	}

	change, err := participantChange(action)
	if err != nil {
		return nil, err
	}
	updated, err := w.client.UpdateGroupParticipants(ctx, group, jids, change)
	if err != nil {
		return nil, err
	}

	results := make([]ParticipantResult, len(updated))
	for i, p := range updated {
		status := p.Error
		if status == 0 {
			status = 200
		}
		results[i] = ParticipantResult{JID: p.JID.ToNonAD().String(), Status: status}
	}
	return results, nil
}

func participantChange(action ParticipantAction) (whatsmeow.ParticipantChange, error) {
	switch action {
	case ParticipantAdd:
		return whatsmeow.ParticipantChangeAdd, nil
	case ParticipantRemove:
		return whatsmeow.ParticipantChangeRemove, nil
	case ParticipantPromote:
		return whatsmeow.ParticipantChangePromote, nil
	case ParticipantDemote:
		return whatsmeow.ParticipantChangeDemote, nil
	default:
		return "", fmt.Errorf("unknown participant action %q", action)
	}
}

func (w *Whatsmeow) RejectCall(ctx context.Context, callID, callerID string) error {
	caller, err := types.ParseJID(callerID)
	if err != nil {
		return err
	}
	return w.client.RejectCall(ctx, caller, callID)
}

func (w *Whatsmeow) AcceptGroupInvite(ctx context.Context, invite *GroupInvite) error {
	group, err := types.ParseJID(invite.GroupID)
	if err != nil {
		return err
	}
	inviter, err := types.ParseJID(invite.Inviter)
	if err != nil {
		return err
	}
	return w.client.JoinGroupWithInvite(ctx, group, inviter, invite.InviteCode, invite.Expiration)
}

func (w *Whatsmeow) UpdatePresence(ctx context.Context, state PresenceState, chatID string) error {
	switch state {
	case PresenceComposing:
		jid, err := types.ParseJID(chatID)
		if err != nil {
			return err
		}
		return w.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
	case PresenceUnavailable:
		return w.client.SendPresence(ctx, types.PresenceUnavailable)
	default:
		return w.client.SendPresence(ctx, types.PresenceAvailable)
	}
}
