package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lunabot/pkg/config"
	"lunabot/pkg/lang"
	"lunabot/pkg/message"
	"lunabot/pkg/policy"
	"lunabot/pkg/registry"
	"lunabot/pkg/transport"
)

const (
	selfJID   = "999000@s.whatsapp.net"
	groupJID  = "12036304@g.us"
	aliceJID  = "5511111111@s.whatsapp.net"
	aliceNum  = "5511111111"
	directJID = aliceJID
)

type sentMessage struct {
	ChatID string
	Text   string
	Opts   *transport.SendOptions
}

// fakeTransport records outbound calls and serves canned metadata.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage

	groupMeta     map[string]*transport.GroupMetadata
	groupMetaErr  error
	groupMetaFail int // fail this many calls before succeeding

	rejectedCalls  []string
	acceptedGroups []string
	removed        []string

	handlers transport.Handlers
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		groupMeta: map[string]*transport.GroupMetadata{
			groupJID: {
				Subject: "Go Nuts",
				Participants: []transport.Participant{
					{JID: aliceJID, IsAdmin: false},
					{JID: selfJID, IsAdmin: true},
				},
			},
		},
	}
}

func (f *fakeTransport) SelfJID() string                { return selfJID }
func (f *fakeTransport) Subscribe(h transport.Handlers) { f.handlers = h }

func (f *fakeTransport) SendText(_ context.Context, chatID, text string, opts *transport.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return "SENT1", nil
}

func (f *fakeTransport) GetGroupMetadata(_ context.Context, chatID string) (*transport.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupMetaFail > 0 {
		f.groupMetaFail--
		return nil, errors.New("stream error")
	}
	if f.groupMetaErr != nil {
		return nil, f.groupMetaErr
	}
	if meta, ok := f.groupMeta[chatID]; ok {
		return meta, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeTransport) GetChannelMetadata(context.Context, string) (*transport.ChannelMetadata, error) {
	return &transport.ChannelMetadata{Subject: "News"}, nil
}

func (f *fakeTransport) ContactName(_ context.Context, jid string) (string, error) {
	if jid == aliceJID {
		return "Alice", nil
	}
	return "", errors.New("unknown contact")
}

func (f *fakeTransport) UpdateGroupParticipants(_ context.Context, _ string, participants []string, action transport.ParticipantAction) ([]transport.ParticipantResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if action == transport.ParticipantRemove {
		f.removed = append(f.removed, participants...)
	}
	out := make([]transport.ParticipantResult, len(participants))
	for i, p := range participants {
		out[i] = transport.ParticipantResult{JID: p, Status: 200}
	}
	return out, nil
}

func (f *fakeTransport) RejectCall(_ context.Context, callID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectedCalls = append(f.rejectedCalls, callID)
	return nil
}

func (f *fakeTransport) AcceptGroupInvite(_ context.Context, invite *transport.GroupInvite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptedGroups = append(f.acceptedGroups, invite.GroupID)
	return nil
}

func (f *fakeTransport) UpdatePresence(context.Context, transport.PresenceState, string) error {
	return nil
}

func (f *fakeTransport) sentTexts() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func testDispatcher(t *testing.T, mutate func(*config.Config)) (*Dispatcher, *fakeTransport, *registry.Registry) {
	t.Helper()
	metadataInitialDelay = time.Millisecond

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	ts := lang.NewStore("", "en")
	tr := newFakeTransport()
	reg := registry.New()
	d := New(cfg, tr, reg, policy.NewGuard(cfg), ts)
	return d, tr, reg
}

func textEvent(chatID, sender, id, text string) *message.RawEvent {
	return &message.RawEvent{
		Key:       message.Key{ChatID: chatID, Participant: sender, ID: id},
		Timestamp: time.Now(),
		PushName:  "Alice",
		Content:   &message.Content{Conversation: text},
	}
}

func TestCommandRouting(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)

	var gotArgs []string
	reg.LoadCommands([]*registry.Command{{
		Name: "echo",
		Run: func(c *registry.Context) error {
			gotArgs = c.Args
			return c.Send(strings.Join(c.Args, " "))
		},
	}})

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!echo hello  world"))

	if len(gotArgs) != 2 || gotArgs[0] != "hello" || gotArgs[1] != "world" {
		t.Fatalf("args = %v", gotArgs)
	}
	sent := tr.sentTexts()
	if len(sent) != 1 || sent[0].Text != "hello world" {
		t.Fatalf("sent = %+v", sent)
	}
	if d.Stats().Commands.Load() != 1 {
		t.Fatalf("command counter = %d", d.Stats().Commands.Load())
	}
}

func TestUnknownCommandNotice(t *testing.T) {
	d, tr, _ := testDispatcher(t, nil)

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!nosuch"))

	sent := tr.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Unknown command: nosuch") {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestBarePrefixNotice(t *testing.T) {
	d, tr, _ := testDispatcher(t, nil)

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!"))

	sent := tr.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "No command provided") {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestPerGroupPrefixOverride(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)
	reg.SetGroupPrefix(groupJID, "?")

	ran := false
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { ran = true; return nil },
	}})

	// Default prefix no longer triggers in this group.
	d.HandleMessage(context.Background(), textEvent(groupJID, aliceJID, "M1", "!ping"))
	if ran {
		t.Fatal("default prefix should be inert after override")
	}

	d.HandleMessage(context.Background(), textEvent(groupJID, aliceJID, "M2", "?ping"))
	if !ran {
		t.Fatal("override prefix did not trigger")
	}
	if len(tr.sentTexts()) != 0 {
		t.Fatalf("unexpected notices: %+v", tr.sentTexts())
	}
}

func TestReplyRoutingConsumesOneTime(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	fired := 0
	reg.RegisterReply("TARGET", func(*registry.Context) error { fired++; return nil }, true)

	reply := textEvent(directJID, aliceJID, "M1", "")
	reply.Content = &message.Content{ExtendedText: &message.ExtendedText{
		Text: "sure",
		ContextInfo: &message.ContextInfo{
			StanzaID:      "TARGET",
			Participant:   aliceJID,
			QuotedMessage: &message.Content{Conversation: "question?"},
		},
	}}

	d.HandleMessage(context.Background(), reply)
	d.HandleMessage(context.Background(), reply)

	if fired != 1 {
		t.Fatalf("one-time reply handler fired %d times", fired)
	}
}

func TestUnregisteredReplyFallsThroughToCommand(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	ran := false
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { ran = true; return nil },
	}})

	reply := textEvent(directJID, aliceJID, "M1", "")
	reply.Content = &message.Content{ExtendedText: &message.ExtendedText{
		Text: "!ping",
		ContextInfo: &message.ContextInfo{
			StanzaID:      "NOBODY",
			Participant:   aliceJID,
			QuotedMessage: &message.Content{Conversation: "old"},
		},
	}}

	d.HandleMessage(context.Background(), reply)
	if !ran {
		t.Fatal("reply without a registration must still run commands")
	}
}

func TestReactionRoutingPrecedesEverything(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	var gotEmoji string
	reg.RegisterReaction("TARGET:*", func(c *registry.Context) error {
		gotEmoji = c.Reaction
		return nil
	}, false)

	ran := false
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { ran = true; return nil },
	}})

	raw := &message.RawEvent{
		Key:     message.Key{ChatID: directJID, Participant: aliceJID, ID: "M1"},
		Content: &message.Content{Reaction: &message.Reaction{Emoji: "🔥", TargetID: "TARGET"}},
	}
	d.HandleMessage(context.Background(), raw)

	if gotEmoji != "🔥" {
		t.Fatalf("reaction handler got %q", gotEmoji)
	}
	if ran {
		t.Fatal("a reaction must never reach the command route")
	}
}

func TestChatPatternRouting(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)

	reg.RegisterChatPattern("hello bot", func(c *registry.Context) error {
		return c.Send("hi " + c.Message.SenderName)
	})

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "Hello Bot"))

	sent := tr.sentTexts()
	if len(sent) != 1 || sent[0].Text != "hi Alice" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestChatSilentDropForBanned(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)
	d.guard.Ban(aliceNum)

	fired := false
	reg.RegisterChatPattern("hello", func(*registry.Context) error { fired = true; return nil })

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "hello"))

	if fired {
		t.Fatal("banned sender must not reach chat handlers")
	}
	if len(tr.sentTexts()) != 0 {
		t.Fatal("chat denial must be silent")
	}
}

func TestCommandDenialNotices(t *testing.T) {
	d, tr, reg := testDispatcher(t, func(c *config.Config) {
		c.AdminOnly.Enabled = true
		c.AdminOnly.Numbers = []string{"999"}
	})
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { return nil },
	}})

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!ping"))

	sent := tr.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "admin-only mode") {
		t.Fatalf("sent = %+v", sent)
	}
	if d.Stats().Denied.Load() != 1 {
		t.Fatalf("denied counter = %d", d.Stats().Denied.Load())
	}
}

func TestCooldownArmsAfterRun(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)

	runs := 0
	reg.LoadCommands([]*registry.Command{{
		Name:            "slow",
		CooldownSeconds: 30,
		Run:             func(*registry.Context) error { runs++; return nil },
	}})

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!slow"))
	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M2", "!slow"))

	if runs != 1 {
		t.Fatalf("command ran %d times during cooldown", runs)
	}
	sent := tr.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Try again in") {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestGroupAdminElevation(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)
	d.tr.(*fakeTransport).groupMeta[groupJID].Participants[0].IsAdmin = true

	ran := false
	reg.LoadCommands([]*registry.Command{{
		Name:       "kick",
		Permission: policy.LevelGroupAdmin,
		GroupOnly:  true,
		Run:        func(*registry.Context) error { ran = true; return nil },
	}})

	d.HandleMessage(context.Background(), textEvent(groupJID, aliceJID, "M1", "!kick"))
	if !ran {
		t.Fatal("group admin should pass a level-1 command")
	}
}

func TestStatusBroadcastIgnored(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)

	ran := false
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { ran = true; return nil },
	}})

	d.HandleMessage(context.Background(), textEvent("status@broadcast", aliceJID, "M1", "!ping"))

	if ran || len(tr.sentTexts()) != 0 {
		t.Fatal("status broadcast must not be routed")
	}
}

func TestSecondaryDispatchAlwaysRuns(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	var seen []string
	reg.RegisterEvent("observer", func(c *registry.Context) error {
		seen = append(seen, c.Message.MessageID)
		return nil
	})
	reg.SetActiveEvent("observer", registry.ScopeThreads(groupJID))

	ran := false
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { ran = true; return nil },
	}})

	// Both a command message and a plain chat message reach the observer.
	d.HandleMessage(context.Background(), textEvent(groupJID, aliceJID, "M1", "!ping"))
	d.HandleMessage(context.Background(), textEvent(groupJID, aliceJID, "M2", "just chatting"))
	// A message in another chat does not.
	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M3", "elsewhere"))

	if !ran {
		t.Fatal("primary command route should have run")
	}
	if len(seen) != 2 || seen[0] != "M1" || seen[1] != "M2" {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestHandlerPanicIsolation(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	reg.LoadCommands([]*registry.Command{
		{Name: "boom", Run: func(*registry.Context) error { panic("kaboom") }},
		{Name: "ping", Run: func(*registry.Context) error { return nil }},
	})

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!boom"))
	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M2", "!ping"))

	if d.Stats().Errors.Load() != 1 {
		t.Fatalf("error counter = %d", d.Stats().Errors.Load())
	}
}

func TestWelcomeAnnouncement(t *testing.T) {
	d, tr, _ := testDispatcher(t, func(c *config.Config) {
		c.Welcome.Enabled = true
		c.Welcome.Template = "Hi {user}, welcome to {group}!"
	})

	d.HandleGroupUpdate(context.Background(), &transport.GroupUpdate{
		GroupID:      groupJID,
		Action:       transport.ParticipantAdd,
		Participants: []string{aliceJID},
	})

	sent := tr.sentTexts()
	if len(sent) != 1 {
		t.Fatalf("sent = %+v", sent)
	}
	want := "Hi @" + aliceNum + ", welcome to Go Nuts!"
	if sent[0].Text != want {
		t.Fatalf("text = %q, want %q", sent[0].Text, want)
	}
	if sent[0].Opts == nil || len(sent[0].Opts.Mentions) != 1 || sent[0].Opts.Mentions[0] != aliceJID {
		t.Fatalf("mentions = %+v", sent[0].Opts)
	}
}

func TestWelcomeDegradesWhenMetadataUnavailable(t *testing.T) {
	d, tr, _ := testDispatcher(t, func(c *config.Config) {
		c.Welcome.Enabled = true
		c.Welcome.Template = "{user} joined {group}"
	})
	tr.groupMetaErr = errors.New("rate limited")

	d.HandleGroupUpdate(context.Background(), &transport.GroupUpdate{
		GroupID:      groupJID,
		Action:       transport.ParticipantAdd,
		Participants: []string{aliceJID},
	})

	sent := tr.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Unknown Group") {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestGroupMetadataRetriesThenSucceeds(t *testing.T) {
	d, tr, _ := testDispatcher(t, func(c *config.Config) {
		c.Welcome.Enabled = true
		c.Welcome.Template = "{group}"
	})
	tr.groupMetaFail = 2

	d.HandleGroupUpdate(context.Background(), &transport.GroupUpdate{
		GroupID:      groupJID,
		Action:       transport.ParticipantAdd,
		Participants: []string{aliceJID},
	})

	sent := tr.sentTexts()
	if len(sent) != 1 || sent[0].Text != "Go Nuts" {
		t.Fatalf("third attempt should have succeeded, sent = %+v", sent)
	}
}

func TestLeaveAnnouncementDisabledByDefault(t *testing.T) {
	d, tr, _ := testDispatcher(t, nil)

	d.HandleGroupUpdate(context.Background(), &transport.GroupUpdate{
		GroupID:      groupJID,
		Action:       transport.ParticipantRemove,
		Participants: []string{aliceJID},
	})

	if len(tr.sentTexts()) != 0 {
		t.Fatalf("sent = %+v", tr.sentTexts())
	}
}

func TestCallAutoReject(t *testing.T) {
	d, tr, _ := testDispatcher(t, func(c *config.Config) {
		c.Calls.Reject = true
		c.Calls.RejectMessage = "No calls please."
	})

	d.HandleCall(context.Background(), &transport.CallEvent{
		CallID:   "CALL1",
		CallerID: aliceJID,
		Status:   transport.CallIncoming,
	})

	if len(tr.rejectedCalls) != 1 || tr.rejectedCalls[0] != "CALL1" {
		t.Fatalf("rejected = %v", tr.rejectedCalls)
	}
	sent := tr.sentTexts()
	if len(sent) != 1 || sent[0].Text != "No calls please." || sent[0].ChatID != aliceJID {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestCallRejectDisabled(t *testing.T) {
	d, tr, _ := testDispatcher(t, nil)

	d.HandleCall(context.Background(), &transport.CallEvent{
		CallID:   "CALL1",
		CallerID: aliceJID,
		Status:   transport.CallIncoming,
	})

	if len(tr.rejectedCalls) != 0 || len(tr.sentTexts()) != 0 {
		t.Fatal("calls must be left alone when rejection is disabled")
	}
}

func TestInviteAcceptanceAdminGate(t *testing.T) {
	d, tr, _ := testDispatcher(t, func(c *config.Config) {
		c.Invites.Enabled = true
		c.Invites.AdminsOnly = true
		c.AdminOnly.Numbers = []string{"999"}
	})

	d.HandleGroupInvite(context.Background(), &transport.GroupInvite{
		GroupID: groupJID,
		Inviter: aliceJID,
	})
	if len(tr.acceptedGroups) != 0 {
		t.Fatal("invite from non-admin must be ignored")
	}

	d.HandleGroupInvite(context.Background(), &transport.GroupInvite{
		GroupID: groupJID,
		Inviter: "999@s.whatsapp.net",
	})
	if len(tr.acceptedGroups) != 1 || tr.acceptedGroups[0] != groupJID {
		t.Fatalf("accepted = %v", tr.acceptedGroups)
	}
}

func TestGroupEventSubscriber(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	var got *transport.GroupUpdate
	reg.RegisterEvent(EventGroupJoin, func(c *registry.Context) error {
		got = c.GroupUpdate
		return nil
	})

	d.HandleGroupUpdate(context.Background(), &transport.GroupUpdate{
		GroupID:      groupJID,
		Action:       transport.ParticipantAdd,
		Participants: []string{aliceJID},
	})

	if got == nil || got.GroupID != groupJID {
		t.Fatalf("subscriber payload = %+v", got)
	}
}

func TestSplitCommand(t *testing.T) {
	name, args := splitCommand("Echo  one   two ")
	if name != "echo" || len(args) != 2 || args[0] != "one" || args[1] != "two" {
		t.Fatalf("splitCommand = %q %v", name, args)
	}
	if name, args := splitCommand("   "); name != "" || args != nil {
		t.Fatalf("blank body = %q %v", name, args)
	}
}

func TestReactionRemovalFiresNothing(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	fired := 0
	reg.RegisterReaction("TARGET:*", func(*registry.Context) error { fired++; return nil }, false)

	unreact := &message.RawEvent{
		Key:     message.Key{ChatID: directJID, Participant: aliceJID, ID: "M1"},
		Content: &message.Content{Reaction: &message.Reaction{Emoji: "", TargetID: "TARGET"}},
	}
	d.HandleMessage(context.Background(), unreact)

	if fired != 0 {
		t.Fatalf("handler fired %d times on reaction removal", fired)
	}
	if d.Stats().Reactions.Load() != 0 {
		t.Fatalf("reaction counter = %d", d.Stats().Reactions.Load())
	}

	// The registration survives and still matches a real reaction.
	react := &message.RawEvent{
		Key:     message.Key{ChatID: directJID, Participant: aliceJID, ID: "M2"},
		Content: &message.Content{Reaction: &message.Reaction{Emoji: "👍", TargetID: "TARGET"}},
	}
	d.HandleMessage(context.Background(), react)
	if fired != 1 {
		t.Fatalf("handler fired %d times after a real reaction", fired)
	}
}

func TestStatusBroadcastSkipsSecondaryDispatch(t *testing.T) {
	d, _, reg := testDispatcher(t, nil)

	fired := 0
	reg.RegisterEvent("observer", func(*registry.Context) error { fired++; return nil })
	reg.SetActiveEvent("observer", registry.ScopeAll())

	d.HandleMessage(context.Background(), textEvent("status@broadcast", aliceJID, "M1", "story"))
	if fired != 0 {
		t.Fatalf("subscriber fired %d times for a status broadcast", fired)
	}

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M2", "hello"))
	if fired != 1 {
		t.Fatalf("subscriber fired %d times for a normal message", fired)
	}
}

func TestDefaultCooldownAppliesWithoutExplicit(t *testing.T) {
	d, tr, reg := testDispatcher(t, nil)

	runs := 0
	reg.LoadCommands([]*registry.Command{{
		Name: "ping",
		Run:  func(*registry.Context) error { runs++; return nil },
	}})

	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M1", "!ping"))
	d.HandleMessage(context.Background(), textEvent(directJID, aliceJID, "M2", "!ping"))

	if runs != 1 {
		t.Fatalf("command ran %d times inside the default cooldown", runs)
	}
	sent := tr.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Try again in") {
		t.Fatalf("sent = %+v", sent)
	}
}
