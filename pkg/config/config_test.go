package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Prefix != "!" {
		t.Fatalf("default prefix = %q, want !", cfg.Bot.Prefix)
	}
	if !cfg.AntiSpam.Enabled || cfg.AntiSpam.DefaultCooldownSeconds != 5 {
		t.Fatalf("unexpected anti-spam defaults: %+v", cfg.AntiSpam)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"not_a_field": true}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"bot": {"prefix": "?", "group_prefixes": {"123@g.us": "."}}, "admin_only": {"enabled": true, "numbers": ["9779800000001"]}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Prefix != "?" {
		t.Fatalf("prefix = %q, want ?", cfg.Bot.Prefix)
	}
	if !cfg.AdminOnly.Enabled || len(cfg.AdminOnly.Numbers) != 1 {
		t.Fatalf("unexpected admin-only: %+v", cfg.AdminOnly)
	}
	if cfg.PrefixFor("123@g.us") != "." {
		t.Fatalf("group prefix override not honored")
	}
	if cfg.PrefixFor("other@g.us") != "?" {
		t.Fatalf("fallback prefix not honored")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LUNABOT_BOT_PREFIX", "#")
	t.Setenv("LUNABOT_ADMIN_ONLY_NUMBERS", "111,222")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Prefix != "#" {
		t.Fatalf("env prefix = %q, want #", cfg.Bot.Prefix)
	}
	if len(cfg.AdminOnly.Numbers) != 2 || cfg.AdminOnly.Numbers[0] != "111" {
		t.Fatalf("env numbers = %#v", cfg.AdminOnly.Numbers)
	}
}
