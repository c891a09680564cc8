package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Account     AccountConfig     `json:"account"`
	Bot         BotConfig         `json:"bot"`
	AdminOnly   AdminOnlyConfig   `json:"admin_only"`
	WhiteList   WhiteListConfig   `json:"white_list"`
	AntiSpam    AntiSpamConfig    `json:"anti_spam"`
	Welcome     WelcomeConfig     `json:"welcome_message"`
	Leave       LeaveConfig       `json:"leave_message"`
	Invites     InvitesConfig     `json:"auto_accept_invites"`
	Calls       CallsConfig       `json:"calls"`
	AutoRestart AutoRestartConfig `json:"auto_restart"`
	Heartbeat   HeartbeatConfig   `json:"presence_heartbeat"`
	Server      ServerConfig      `json:"status_server"`
	Logging     LoggingConfig     `json:"logging"`
}

type AccountConfig struct {
	PhoneNumber string `json:"phone_number" env:"LUNABOT_ACCOUNT_PHONE_NUMBER"`
	SessionPath string `json:"session_path" env:"LUNABOT_ACCOUNT_SESSION_PATH"`
}

type BotConfig struct {
	Prefix   string `json:"prefix" env:"LUNABOT_BOT_PREFIX"`
	Language string `json:"language" env:"LUNABOT_BOT_LANGUAGE"`
	LangDir  string `json:"lang_dir" env:"LUNABOT_BOT_LANG_DIR"`
	// Per-group prefix overrides, group JID -> prefix.
	GroupPrefixes map[string]string `json:"group_prefixes"`
}

type AdminOnlyConfig struct {
	Enabled bool     `json:"enabled" env:"LUNABOT_ADMIN_ONLY_ENABLED"`
	Numbers []string `json:"numbers" env:"LUNABOT_ADMIN_ONLY_NUMBERS"`
}

type WhiteListConfig struct {
	Enabled bool     `json:"enabled" env:"LUNABOT_WHITE_LIST_ENABLED"`
	Numbers []string `json:"numbers" env:"LUNABOT_WHITE_LIST_NUMBERS"`
}

type AntiSpamConfig struct {
	Enabled                bool `json:"enabled" env:"LUNABOT_ANTI_SPAM_ENABLED"`
	DefaultCooldownSeconds int  `json:"default_cooldown_seconds" env:"LUNABOT_ANTI_SPAM_DEFAULT_COOLDOWN_SECONDS"`
}

type WelcomeConfig struct {
	Enabled  bool   `json:"enabled" env:"LUNABOT_WELCOME_ENABLED"`
	Template string `json:"template" env:"LUNABOT_WELCOME_TEMPLATE"`
}

type LeaveConfig struct {
	Enabled  bool   `json:"enabled" env:"LUNABOT_LEAVE_ENABLED"`
	Template string `json:"template" env:"LUNABOT_LEAVE_TEMPLATE"`
}

type InvitesConfig struct {
	Enabled    bool `json:"enabled" env:"LUNABOT_INVITES_ENABLED"`
	AdminsOnly bool `json:"admins_only" env:"LUNABOT_INVITES_ADMINS_ONLY"`
}

type CallsConfig struct {
	Reject        bool   `json:"reject" env:"LUNABOT_CALLS_REJECT"`
	RejectMessage string `json:"reject_message" env:"LUNABOT_CALLS_REJECT_MESSAGE"`
}

type AutoRestartConfig struct {
	Enabled bool `json:"enabled" env:"LUNABOT_AUTO_RESTART_ENABLED"`
	Minutes int  `json:"minutes" env:"LUNABOT_AUTO_RESTART_MINUTES"`
}

type HeartbeatConfig struct {
	Enabled bool `json:"enabled" env:"LUNABOT_HEARTBEAT_ENABLED"`
	Minutes int  `json:"minutes" env:"LUNABOT_HEARTBEAT_MINUTES"`
}

type ServerConfig struct {
	Enabled bool `json:"enabled" env:"LUNABOT_SERVER_ENABLED"`
	Port    int  `json:"port" env:"LUNABOT_SERVER_PORT"`
}

type LoggingConfig struct {
	FileEnabled   bool   `json:"file_enabled" env:"LUNABOT_LOGGING_FILE_ENABLED"`
	Dir           string `json:"dir" env:"LUNABOT_LOGGING_DIR"`
	Filename      string `json:"filename" env:"LUNABOT_LOGGING_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"LUNABOT_LOGGING_MAX_SIZE_MB"`
	RetentionDays int    `json:"retention_days" env:"LUNABOT_LOGGING_RETENTION_DAYS"`
	Debug         bool   `json:"debug" env:"LUNABOT_LOGGING_DEBUG"`
}

func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			SessionPath: "./auth/session",
		},
		Bot: BotConfig{
			Prefix:        "!",
			Language:      "en",
			GroupPrefixes: map[string]string{},
		},
		AdminOnly: AdminOnlyConfig{
			Numbers: []string{},
		},
		WhiteList: WhiteListConfig{
			Numbers: []string{},
		},
		AntiSpam: AntiSpamConfig{
			Enabled:                true,
			DefaultCooldownSeconds: 5,
		},
		Welcome: WelcomeConfig{},
		Leave:   LeaveConfig{},
		Invites: InvitesConfig{},
		Calls: CallsConfig{
			Reject: false,
		},
		AutoRestart: AutoRestartConfig{
			Minutes: 360,
		},
		Heartbeat: HeartbeatConfig{
			Enabled: true,
			Minutes: 30,
		},
		Server: ServerConfig{
			Port: 3001,
		},
		Logging: LoggingConfig{
			FileEnabled:   true,
			Dir:           "./logs",
			Filename:      "lunabot.log",
			MaxSizeMB:     20,
			RetentionDays: 3,
		},
	}
}

// LoadConfig reads the JSON config at path on top of the defaults, then
// applies env overrides. A missing file is not an error: env-only setups
// are valid.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := unmarshalConfigStrict(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfigStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) LogFilePath() string {
	filename := c.Logging.Filename
	if filename == "" {
		filename = "lunabot.log"
	}
	return filepath.Join(c.Logging.Dir, filename)
}

// PrefixFor returns the command prefix for a chat, honoring per-group
// overrides.
func (c *Config) PrefixFor(chatID string) string {
	if p, ok := c.Bot.GroupPrefixes[chatID]; ok && p != "" {
		return p
	}
	return c.Bot.Prefix
}
