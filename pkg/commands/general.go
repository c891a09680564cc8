package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lunabot/pkg/registry"
)

func pingCommand() *registry.Command {
	return &registry.Command{
		Name:        "ping",
		Description: "Measure bot responsiveness",
		Run: func(c *registry.Context) error {
			latency := time.Since(c.Message.Timestamp).Milliseconds()
			if latency < 0 {
				latency = 0
			}
			return c.Reply(c.Lang.Get("command.ping.reply", latency))
		},
	}
}

func uptimeCommand(deps *Deps) *registry.Command {
	return &registry.Command{
		Name:        "uptime",
		Description: "Show how long the bot has been running",
		Run: func(c *registry.Context) error {
			return c.Reply(c.Lang.Get("command.uptime.reply", formatDuration(time.Since(deps.StartedAt))))
		},
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := d - minutes*time.Minute

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds/time.Second)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds/time.Second)
}

// helpCommand lists the loaded commands and arms a one-time reaction on
// the help message: reacting to it sends the usage details.
func helpCommand() *registry.Command {
	return &registry.Command{
		Name:        "help",
		Aliases:     []string{"menu", "commands"},
		Description: "List available commands",
		Run: func(c *registry.Context) error {
			cmds := c.Registry.Commands()
			sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

			var b strings.Builder
			b.WriteString(c.Lang.Get("command.help.header", c.Prefix))
			for _, cmd := range cmds {
				b.WriteString(fmt.Sprintf("\n%s%s", c.Prefix, cmd.Name))
				if cmd.Description != "" {
					b.WriteString(" — " + cmd.Description)
				}
			}
			b.WriteString("\n\n" + c.Lang.Get("command.help.hint"))

			sentID, err := c.Transport.SendText(c.Ctx, c.Message.ChatID, b.String(), nil)
			if err != nil {
				return err
			}

			prefix := c.Prefix
			c.Registry.RegisterReaction(sentID+":*", func(rc *registry.Context) error {
				var usage strings.Builder
				usage.WriteString(rc.Lang.Get("command.help.usageHeader"))
				for _, cmd := range cmds {
					if cmd.Usage == "" {
						continue
					}
					usage.WriteString(fmt.Sprintf("\n%s%s %s", prefix, cmd.Name, cmd.Usage))
				}
				return rc.Send(usage.String())
			}, true)
			return nil
		},
	}
}

func langCommand() *registry.Command {
	return &registry.Command{
		Name:        "lang",
		Aliases:     []string{"language"},
		Description: "Switch the bot language",
		Usage:       "<code>",
		Permission:  2,
		Run: func(c *registry.Context) error {
			if len(c.Args) == 0 {
				return c.Reply(c.Lang.Get("command.lang.failed", "?"))
			}
			code := strings.ToLower(c.Args[0])
			if !c.Lang.ChangeLanguage(code) {
				return c.Reply(c.Lang.Get("command.lang.failed", code))
			}
			return c.Reply(c.Lang.Get("command.lang.done", code))
		},
	}
}
