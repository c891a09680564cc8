package lang

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLangFile(t *testing.T) {
	content := "# comment line\n\nfoo.bar=Hello {0}\nspaced.key =  value with = sign  \nnoequals\n"
	got := parseLangFile(content)

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %#v", len(got), got)
	}
	if got["foo.bar"] != "Hello {0}" {
		t.Fatalf("unexpected foo.bar: %q", got["foo.bar"])
	}
	if got["spaced.key"] != "value with = sign" {
		t.Fatalf("unexpected spaced.key: %q", got["spaced.key"])
	}
}

func TestGetSubstitution(t *testing.T) {
	s := NewStore("", "en")

	got := s.Get("handler.cooldownActive", "2.5")
	if got != "Slow down. Try again in 2.5 seconds." {
		t.Fatalf("unexpected substitution: %q", got)
	}

	got = s.Get("handler.unknownCommand", "doesnotexist", "!")
	want := "Unknown command: doesnotexist. Type !help for the list of commands."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGetMissingKeyReturnsKey(t *testing.T) {
	s := NewStore("", "en")
	if got := s.Get("no.such.key"); got != "no.such.key" {
		t.Fatalf("missing key should fall back to key, got %q", got)
	}
}

func TestFallbackToEnglish(t *testing.T) {
	s := NewStore(t.TempDir(), "np")
	if s.CurrentLanguage() != "en" {
		t.Fatalf("expected fallback to en, got %s", s.CurrentLanguage())
	}
}

func TestExternalFileOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "en.lang")
	if err := os.WriteFile(path, []byte("handler.userBanned=custom ban text\n"), 0644); err != nil {
		t.Fatalf("write lang file: %v", err)
	}

	s := NewStore(dir, "en")
	if got := s.Get("handler.userBanned"); got != "custom ban text" {
		t.Fatalf("external file should win, got %q", got)
	}
}

func TestChangeLanguageKeepsTableOnFailure(t *testing.T) {
	s := NewStore("", "en")
	if ok := s.ChangeLanguage("xx"); ok {
		t.Fatal("expected failure for unknown language")
	}
	if s.CurrentLanguage() != "en" {
		t.Fatalf("language should stay en, got %s", s.CurrentLanguage())
	}
	if got := s.Get("classifier.unknownGroup"); got != "Unknown Group" {
		t.Fatalf("table should survive failed switch, got %q", got)
	}
}
