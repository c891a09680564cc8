// Package commands defines the built-in command set. All returns the
// definitions the registry loads at startup; the dispatcher handles
// permission and cooldown enforcement before Run is called.
package commands

import (
	"time"

	"lunabot/pkg/config"
	"lunabot/pkg/policy"
	"lunabot/pkg/registry"
)

// Deps carries the shared state commands close over.
type Deps struct {
	Guard      *policy.Guard
	Config     *config.Config
	ConfigPath string
	StartedAt  time.Time
}

// All builds the built-in command set.
func All(deps *Deps) []*registry.Command {
	return []*registry.Command{
		pingCommand(),
		helpCommand(),
		uptimeCommand(deps),
		kickCommand(),
		addCommand(),
		banCommand(deps),
		unbanCommand(deps),
		prefixCommand(deps),
		langCommand(),
	}
}
