// Package policy evaluates the cross-cutting rules applied before a
// command runs: ban list, admin-only mode, whitelist, permission level,
// and per-sender cooldown.
package policy

import (
	"fmt"
	"sync"
	"time"

	"lunabot/pkg/config"
	"lunabot/pkg/registry"
)

type DenyReason string

const (
	DenyBanned         DenyReason = "banned"
	DenyAdminOnly      DenyReason = "admin-only"
	DenyNotWhitelisted DenyReason = "not-whitelisted"
	DenyPermission     DenyReason = "permission"
	DenyCooldown       DenyReason = "cooldown"
	DenyGroupOnly      DenyReason = "group-only"
)

// Decision is the outcome of a policy check. When denied, Reason and the
// reason-specific fields describe the user-facing notice.
type Decision struct {
	Allowed bool
	Reason  DenyReason

	RequiredLevel int
	SenderLevel   int
	// WaitSeconds is the remaining cooldown, one decimal place.
	WaitSeconds string
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func denied(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Sender permission levels.
const (
	LevelEveryone   = 0
	LevelGroupAdmin = 1
	LevelBotAdmin   = 2
)

// Guard holds the policy configuration and the live cooldown table. The
// ban list is mutated by administrative commands; everything else is
// immutable process configuration.
type Guard struct {
	adminOnly        bool
	whitelistEnabled bool
	antiSpam         bool
	defaultCooldown  int

	admins    map[string]struct{}
	whitelist map[string]struct{}

	mu     sync.RWMutex
	banned map[string]struct{}

	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time

	now func() time.Time
}

func NewGuard(cfg *config.Config) *Guard {
	g := &Guard{
		adminOnly:        cfg.AdminOnly.Enabled,
		whitelistEnabled: cfg.WhiteList.Enabled,
		antiSpam:         cfg.AntiSpam.Enabled,
		defaultCooldown:  cfg.AntiSpam.DefaultCooldownSeconds,
		admins:           toSet(cfg.AdminOnly.Numbers),
		whitelist:        toSet(cfg.WhiteList.Numbers),
		banned:           make(map[string]struct{}),
		cooldowns:        make(map[string]time.Time),
		now:              time.Now,
	}
	return g
}

func toSet(numbers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		set[n] = struct{}{}
	}
	return set
}

func (g *Guard) Ban(digits string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.banned[digits] = struct{}{}
}

// Unban reports whether the number was banned.
func (g *Guard) Unban(digits string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.banned[digits]
	delete(g.banned, digits)
	return ok
}

func (g *Guard) IsBanned(digits string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.banned[digits]
	return ok
}

func (g *Guard) IsAdmin(digits string) bool {
	_, ok := g.admins[digits]
	return ok
}

// CheckSend decides whether free chat from a sender is processed at all.
// Denials here are silent: no notice is sent for plain chat.
func (g *Guard) CheckSend(senderDigits string, fromSelf bool) bool {
	if fromSelf {
		return true
	}
	if g.IsBanned(senderDigits) {
		return false
	}
	if g.adminOnly && !g.IsAdmin(senderDigits) {
		return false
	}
	if g.whitelistEnabled {
		if _, ok := g.whitelist[senderDigits]; !ok {
			return false
		}
	}
	return true
}

// PermissionLevel computes a sender's effective level: bot admins outrank
// group admins, who outrank everyone else.
func (g *Guard) PermissionLevel(senderDigits string, groupAdmin bool) int {
	if g.IsAdmin(senderDigits) {
		return LevelBotAdmin
	}
	if groupAdmin {
		return LevelGroupAdmin
	}
	return LevelEveryone
}

// CheckCommand runs the gauntlet in fixed order: ban, admin-only,
// whitelist, group-only, permission, cooldown. The earliest failing rule
// is reported. fromSelf bypasses ban/admin-only/whitelist but never
// group-only, permission, or cooldown.
func (g *Guard) CheckCommand(senderDigits string, cmd *registry.Command, fromSelf, isGroup, groupAdmin bool) Decision {
	if !fromSelf {
		if g.IsBanned(senderDigits) {
			return denied(DenyBanned)
		}
		if g.adminOnly && !g.IsAdmin(senderDigits) {
			return denied(DenyAdminOnly)
		}
		if g.whitelistEnabled {
			if _, ok := g.whitelist[senderDigits]; !ok {
				return denied(DenyNotWhitelisted)
			}
		}
	}

	if cmd.GroupOnly && !isGroup {
		return denied(DenyGroupOnly)
	}

	if cmd.Permission > 0 {
		level := g.PermissionLevel(senderDigits, groupAdmin)
		if level < cmd.Permission {
			d := denied(DenyPermission)
			d.RequiredLevel = cmd.Permission
			d.SenderLevel = level
			return d
		}
	}

	if secs := g.CommandCooldown(cmd); secs > 0 {
		if wait, active := g.CheckCooldown(cmd.Name, senderDigits, secs); active {
			d := denied(DenyCooldown)
			d.WaitSeconds = wait
			return d
		}
	}

	return allowed()
}

// CommandCooldown resolves the effective cooldown for a command: its own
// CooldownSeconds, or the configured default when it declares none. Zero
// when anti-spam is disabled.
func (g *Guard) CommandCooldown(cmd *registry.Command) int {
	if !g.antiSpam {
		return 0
	}
	if cmd.CooldownSeconds > 0 {
		return cmd.CooldownSeconds
	}
	return g.defaultCooldown
}

func cooldownKey(command, senderDigits string) string {
	return command + "_" + senderDigits
}

// CheckCooldown reports whether (command, sender) is still cooling down
// and, if so, the remaining time formatted with one decimal place.
func (g *Guard) CheckCooldown(command, senderDigits string, cooldownSeconds int) (string, bool) {
	g.cooldownMu.Lock()
	defer g.cooldownMu.Unlock()

	started, ok := g.cooldowns[cooldownKey(command, senderDigits)]
	if !ok {
		return "", false
	}
	remaining := time.Duration(cooldownSeconds)*time.Second - g.now().Sub(started)
	if remaining <= 0 {
		return "", false
	}
	return fmt.Sprintf("%.1f", remaining.Seconds()), true
}

// ArmCooldown (re)starts the cooldown timer for (command, sender) and
// schedules its expiry.
func (g *Guard) ArmCooldown(command, senderDigits string, cooldownSeconds int) {
	if cooldownSeconds <= 0 {
		return
	}
	key := cooldownKey(command, senderDigits)
	started := g.now()

	g.cooldownMu.Lock()
	g.cooldowns[key] = started
	g.cooldownMu.Unlock()

	time.AfterFunc(time.Duration(cooldownSeconds)*time.Second, func() {
		g.cooldownMu.Lock()
		defer g.cooldownMu.Unlock()
		// A rearm may have replaced the entry; only expire our own.
		if t, ok := g.cooldowns[key]; ok && t.Equal(started) {
			delete(g.cooldowns, key)
		}
	})
}
