// Luna - WhatsApp automation bot.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"lunabot/pkg/commands"
	"lunabot/pkg/config"
	"lunabot/pkg/dispatch"
	"lunabot/pkg/heartbeat"
	"lunabot/pkg/lang"
	"lunabot/pkg/logger"
	"lunabot/pkg/policy"
	"lunabot/pkg/registry"
	"lunabot/pkg/server"
	"lunabot/pkg/transport"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "./config.json", "Path to the JSON config file")
	debug := flag.Bool("debug", false, "Enable debug logs")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lunabot v%s\n", version)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *debug || cfg.Logging.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.LogFilePath(), cfg.Logging.MaxSizeMB, cfg.Logging.RetentionDays); err != nil {
			logger.WarnCF("main", "File logging unavailable", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}

	if err := run(cfg, *configPath); err != nil {
		logger.FatalCF("main", "Bot exited with error", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}

func run(cfg *config.Config, configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startedAt := time.Now()

	ts := lang.NewStore(cfg.Bot.LangDir, cfg.Bot.Language)
	guard := policy.NewGuard(cfg)
	reg := registry.New()

	wa, err := transport.NewWhatsmeow(ctx, cfg)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	dispatcher := dispatch.New(cfg, wa, reg, guard, ts)
	dispatcher.OnLoggedOut = cancel
	dispatcher.Attach(ctx)

	logger.InfoC("main", ts.Get("bot.loadingCommands"))
	reg.LoadCommands(commands.All(&commands.Deps{
		Guard:      guard,
		Config:     cfg,
		ConfigPath: configPath,
		StartedAt:  startedAt,
	}))
	for chatID, prefix := range cfg.Bot.GroupPrefixes {
		reg.SetGroupPrefix(chatID, prefix)
	}

	if err := wa.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer wa.Disconnect()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		statusServer := server.NewServer(cfg, func() server.Status {
			up := time.Since(startedAt)
			return server.Status{
				Uptime:    up.Round(time.Second).String(),
				UptimeSec: int64(up.Seconds()),
				Language:  ts.CurrentLanguage(),
				Stats:     dispatcher.Stats().Snapshot(),
				Time:      time.Now(),
			}
		})
		if err := statusServer.Start(); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		defer func() {
			shutdownCtx, release := context.WithTimeout(context.Background(), 5*time.Second)
			defer release()
			statusServer.Stop(shutdownCtx)
		}()
	}

	if cfg.Heartbeat.Enabled && cfg.Heartbeat.Minutes > 0 {
		beat := heartbeat.NewService(wa, time.Duration(cfg.Heartbeat.Minutes)*time.Minute)
		beat.Start(ctx)
		defer beat.Stop()
	}

	if cfg.AutoRestart.Enabled && cfg.AutoRestart.Minutes > 0 {
		scheduler := cron.New()
		spec := fmt.Sprintf("@every %dm", cfg.AutoRestart.Minutes)
		if _, err := scheduler.AddFunc(spec, func() {
			logger.InfoC("main", ts.Get("bot.restartScheduled", cfg.AutoRestart.Minutes))
			cancel()
		}); err != nil {
			return fmt.Errorf("auto-restart schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case s := <-sig:
			logger.InfoCF("main", "Signal received, shutting down", map[string]interface{}{
				"signal": s.String(),
			})
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	logger.InfoCF("main", "Bot is running", map[string]interface{}{
		"version": version,
		"prefix":  cfg.Bot.Prefix,
	})

	return g.Wait()
}
