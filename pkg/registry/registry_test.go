package registry

import (
	"regexp"
	"testing"
)

func noop(*Context) error { return nil }

func TestLoadCommandsValidation(t *testing.T) {
	r := New()
	r.LoadCommands([]*Command{
		{Name: "ping", Run: noop},
		{Name: "", Run: noop},    // missing name
		{Name: "broken"},         // missing run
		nil,                      // nil definition
		{Name: "Ping", Run: noop, Description: "later wins"},
	})

	cmds := r.Commands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	cmd, ok := r.Resolve("ping")
	if !ok || cmd.Description != "later wins" {
		t.Fatalf("collision: later definition should win, got %+v", cmd)
	}
}

func TestResolveAliasFallback(t *testing.T) {
	r := New()
	r.LoadCommands([]*Command{
		{Name: "adduser", Aliases: []string{"add"}, Run: noop},
	})

	if _, ok := r.Resolve("adduser"); !ok {
		t.Fatal("direct name lookup failed")
	}
	if cmd, ok := r.Resolve("ADD"); !ok || cmd.Name != "adduser" {
		t.Fatal("alias lookup failed")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Fatal("unexpected resolve hit")
	}
}

func TestLoadCommandsReloadIsIdempotent(t *testing.T) {
	r := New()
	r.LoadCommands([]*Command{{Name: "a", Run: noop}, {Name: "b", Run: noop}})
	r.LoadCommands([]*Command{{Name: "c", Run: noop}})

	if _, ok := r.Resolve("a"); ok {
		t.Fatal("reload should clear previous index")
	}
	if _, ok := r.Resolve("c"); !ok {
		t.Fatal("reload should populate new index")
	}
}

func TestConsumeReplyOneTime(t *testing.T) {
	r := New()
	r.RegisterReply("M1", noop, true)

	if _, ok := r.ConsumeReply("M1"); !ok {
		t.Fatal("first consume should find the registration")
	}
	if _, ok := r.ConsumeReply("M1"); ok {
		t.Fatal("oneTime registration must be gone after first consume")
	}
}

func TestConsumeReplyPersistent(t *testing.T) {
	r := New()
	r.RegisterReply("M1", noop, false)

	for i := 0; i < 3; i++ {
		if _, ok := r.ConsumeReply("M1"); !ok {
			t.Fatalf("persistent registration vanished on consume %d", i)
		}
	}
	r.DeleteReply("M1")
	if _, ok := r.ConsumeReply("M1"); ok {
		t.Fatal("explicit delete should remove the registration")
	}
}

func TestConsumeReactionPrecedence(t *testing.T) {
	r := New()
	var order []string
	r.RegisterReaction("M1:👍", func(*Context) error { order = append(order, "specific"); return nil }, false)
	r.RegisterReaction("M1:*", func(*Context) error { order = append(order, "wildcard"); return nil }, false)

	reg, ok := r.ConsumeReaction("M1", "👍")
	if !ok {
		t.Fatal("expected a match")
	}
	reg.Callback(nil)
	if len(order) != 1 || order[0] != "specific" {
		t.Fatalf("specific handler must win over wildcard, got %v", order)
	}

	reg, ok = r.ConsumeReaction("M1", "🔥")
	if !ok {
		t.Fatal("expected wildcard match for other emoji")
	}
	reg.Callback(nil)
	if order[len(order)-1] != "wildcard" {
		t.Fatalf("wildcard should catch unlisted emoji, got %v", order)
	}
}

func TestConsumeReactionBarePatternScan(t *testing.T) {
	r := New()
	r.RegisterReaction("🔥", noop, false)

	if _, ok := r.ConsumeReaction("ANY", "🔥"); !ok {
		t.Fatal("bare emoji pattern should match any target")
	}
	if _, ok := r.ConsumeReaction("ANY", "💧"); ok {
		t.Fatal("bare pattern should not match a different emoji")
	}

	r.RegisterReaction("*", noop, false)
	if _, ok := r.ConsumeReaction("ANY", "💧"); !ok {
		t.Fatal("bare * should match every reaction")
	}
}

func TestConsumeReactionOneTime(t *testing.T) {
	r := New()
	r.RegisterReaction("M1:*", noop, true)

	if _, ok := r.ConsumeReaction("M1", "👍"); !ok {
		t.Fatal("first consume should hit")
	}
	if _, ok := r.ConsumeReaction("M1", "👍"); ok {
		t.Fatal("oneTime reaction must not fire twice")
	}
}

func TestMatchChatPatterns(t *testing.T) {
	r := New()
	r.RegisterChatPattern("hello bot", noop)
	r.RegisterChatRegexp(regexp.MustCompile(`(?i)^good (morning|night)$`), noop)

	if got := r.MatchChatPatterns("HELLO BOT"); len(got) != 1 {
		t.Fatalf("exact match should be case-insensitive, got %d matches", len(got))
	}

	got := r.MatchChatPatterns("good night")
	if len(got) != 1 {
		t.Fatalf("regex should match, got %d", len(got))
	}
	if got[0].Submatches[1] != "night" {
		t.Fatalf("submatches = %v", got[0].Submatches)
	}

	if got := r.MatchChatPatterns("unrelated"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestMatchChatPatternsMultipleFire(t *testing.T) {
	r := New()
	r.RegisterChatPattern("ping", noop)
	r.RegisterChatRegexp(regexp.MustCompile(`^ping$`), noop)

	if got := r.MatchChatPatterns("ping"); len(got) != 2 {
		t.Fatalf("chat handlers are not exclusive, got %d matches", len(got))
	}
}

func TestActiveEventScopes(t *testing.T) {
	r := New()
	r.RegisterEvent("observer", noop)
	r.RegisterEvent("scoped", noop)
	r.SetActiveEvent("observer", ScopeAll())
	r.SetActiveEvent("scoped", ScopeThreads("A@g.us", "B@g.us"))

	if subs := r.ActiveEventSubscribers("A@g.us"); len(subs) != 2 {
		t.Fatalf("A@g.us should see both subscribers, got %d", len(subs))
	}
	if subs := r.ActiveEventSubscribers("C@g.us"); len(subs) != 1 {
		t.Fatalf("C@g.us should see only the wildcard subscriber, got %d", len(subs))
	}

	r.ClearActiveEvent("observer")
	if subs := r.ActiveEventSubscribers("C@g.us"); len(subs) != 0 {
		t.Fatalf("cleared event still firing, got %d", len(subs))
	}
}

func TestEventWithoutActiveConfigDoesNotFire(t *testing.T) {
	r := New()
	r.RegisterEvent("silent", noop)

	if subs := r.ActiveEventSubscribers("anything"); len(subs) != 0 {
		t.Fatal("subscriber without active-event config must not fire in secondary dispatch")
	}
}

func TestGroupPrefix(t *testing.T) {
	r := New()
	if got := r.PrefixFor("G@g.us", "!"); got != "!" {
		t.Fatalf("default prefix = %q", got)
	}
	r.SetGroupPrefix("G@g.us", "?")
	if got := r.PrefixFor("G@g.us", "!"); got != "?" {
		t.Fatalf("override prefix = %q", got)
	}
	r.SetGroupPrefix("G@g.us", "")
	if got := r.PrefixFor("G@g.us", "!"); got != "!" {
		t.Fatalf("cleared prefix = %q", got)
	}
}
