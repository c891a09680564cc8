package commands

import (
	"lunabot/pkg/config"
	"lunabot/pkg/logger"
	"lunabot/pkg/message"
	"lunabot/pkg/registry"
)

func banCommand(deps *Deps) *registry.Command {
	return &registry.Command{
		Name:        "ban",
		Description: "Ban a number from using the bot",
		Usage:       "<@mention|number>",
		Permission:  2,
		Run: func(c *registry.Context) error {
			digits := targetDigits(c)
			if digits == "" {
				return c.Reply(c.Lang.Get("command.ban.usage"))
			}
			deps.Guard.Ban(digits)
			logger.InfoCF("commands", "Number banned", map[string]interface{}{
				logger.FieldSender: digits,
			})
			return c.Reply(c.Lang.Get("command.ban.done", digits))
		},
	}
}

func unbanCommand(deps *Deps) *registry.Command {
	return &registry.Command{
		Name:        "unban",
		Description: "Lift a ban",
		Usage:       "<number>",
		Permission:  2,
		Run: func(c *registry.Context) error {
			digits := targetDigits(c)
			if digits == "" {
				return c.Reply(c.Lang.Get("command.ban.usage"))
			}
			if !deps.Guard.Unban(digits) {
				return c.Reply(c.Lang.Get("command.unban.notBanned", digits))
			}
			return c.Reply(c.Lang.Get("command.unban.done", digits))
		},
	}
}

// targetDigits resolves a moderation target to its bare number.
func targetDigits(c *registry.Context) string {
	if len(c.Message.Mentions) > 0 {
		return message.Digits(c.Message.Mentions[0])
	}
	if c.Message.QuotedParticipant != "" {
		return message.Digits(c.Message.QuotedParticipant)
	}
	if len(c.Args) > 0 {
		return message.Digits(c.Args[0])
	}
	return ""
}

func saveConfig(deps *Deps) error {
	if err := config.SaveConfig(deps.ConfigPath, deps.Config); err != nil {
		logger.WarnCF("commands", "Failed to persist config", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return err
	}
	return nil
}
