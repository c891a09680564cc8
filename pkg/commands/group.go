package commands

import (
	"lunabot/pkg/message"
	"lunabot/pkg/registry"
	"lunabot/pkg/transport"
)

// kickTarget resolves the user a group command acts on: an explicit
// mention, the author of the quoted message, or a number argument.
func kickTarget(c *registry.Context) string {
	if len(c.Message.Mentions) > 0 {
		return c.Message.Mentions[0]
	}
	if c.Message.QuotedParticipant != "" {
		return c.Message.QuotedParticipant
	}
	if len(c.Args) > 0 {
		if digits := message.Digits(c.Args[0]); digits != "" {
			return message.UserJID(digits)
		}
	}
	return ""
}

func kickCommand() *registry.Command {
	return &registry.Command{
		Name:        "kick",
		Aliases:     []string{"remove"},
		Description: "Remove a member from the group",
		Usage:       "<@mention|number>",
		Permission:  1,
		GroupOnly:   true,
		Run: func(c *registry.Context) error {
			target := kickTarget(c)
			if target == "" {
				return c.Reply(c.Lang.Get("command.kick.usage"))
			}

			results, err := c.Transport.UpdateGroupParticipants(c.Ctx, c.Message.ChatID, []string{target}, transport.ParticipantRemove)
			if err != nil {
				return err
			}
			return c.Reply(participantResultText(c, results, target,
				"command.kick.done", "command.kick.denied", "command.kick.failed"))
		},
	}
}

func addCommand() *registry.Command {
	return &registry.Command{
		Name:            "add",
		Description:     "Add a member to the group",
		Usage:           "<number>",
		Permission:      1,
		GroupOnly:       true,
		CooldownSeconds: 5,
		Run: func(c *registry.Context) error {
			if len(c.Args) == 0 {
				return c.Reply(c.Lang.Get("command.add.usage", c.Prefix))
			}
			digits := message.Digits(c.Args[0])
			if digits == "" {
				return c.Reply(c.Lang.Get("command.add.usage", c.Prefix))
			}
			target := message.UserJID(digits)

			results, err := c.Transport.UpdateGroupParticipants(c.Ctx, c.Message.ChatID, []string{target}, transport.ParticipantAdd)
			if err != nil {
				return err
			}
			return c.Reply(participantResultText(c, results, target,
				"command.add.done", "command.add.denied", "command.add.failed"))
		},
	}
}

// participantResultText maps the per-participant status code onto the
// right translation: 200 success, 403/406 privacy or permission denial,
// anything else a generic failure with the code.
func participantResultText(c *registry.Context, results []transport.ParticipantResult, target, doneKey, deniedKey, failedKey string) string {
	digits := message.Digits(target)
	for _, r := range results {
		if message.Digits(r.JID) != digits {
			continue
		}
		switch r.Status {
		case 200:
			return c.Lang.Get(doneKey, digits)
		case 403, 406:
			return c.Lang.Get(deniedKey)
		default:
			return c.Lang.Get(failedKey, r.Status)
		}
	}
	return c.Lang.Get(failedKey, 0)
}

func prefixCommand(deps *Deps) *registry.Command {
	return &registry.Command{
		Name:        "prefix",
		Description: "Change the command prefix for this group",
		Usage:       "<prefix>",
		Permission:  1,
		GroupOnly:   true,
		Run: func(c *registry.Context) error {
			if len(c.Args) == 0 {
				return c.Reply(c.Lang.Get("command.prefix.usage", c.Prefix))
			}
			newPrefix := c.Args[0]
			c.Registry.SetGroupPrefix(c.Message.ChatID, newPrefix)

			// Persist so the override survives restarts; best effort.
			if deps.ConfigPath != "" {
				deps.Config.Bot.GroupPrefixes[c.Message.ChatID] = newPrefix
				_ = saveConfig(deps)
			}
			return c.Reply(c.Lang.Get("command.prefix.done", newPrefix))
		},
	}
}
