// Package heartbeat keeps the bot's presence fresh: WhatsApp deprioritizes
// event delivery to clients that never reassert availability.
package heartbeat

import (
	"context"
	"time"

	"lunabot/pkg/lifecycle"
	"lunabot/pkg/logger"
	"lunabot/pkg/transport"
)

type Service struct {
	tr       transport.Transport
	interval time.Duration
	runner   *lifecycle.LoopRunner
}

func NewService(tr transport.Transport, interval time.Duration) *Service {
	return &Service{
		tr:       tr,
		interval: interval,
		runner:   lifecycle.NewLoopRunner(),
	}
}

func (s *Service) Start(ctx context.Context) bool {
	if s.interval <= 0 {
		return false
	}
	return s.runner.Start(func(stop <-chan struct{}) {
		s.runLoop(ctx, stop)
	})
}

func (s *Service) Stop() {
	s.runner.Stop()
}

func (s *Service) Running() bool {
	return s.runner.Running()
}

func (s *Service) runLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.beat(ctx)
		}
	}
}

func (s *Service) beat(ctx context.Context) {
	if err := s.tr.UpdatePresence(ctx, transport.PresenceAvailable, ""); err != nil {
		logger.DebugCF("heartbeat", "Presence update failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}
