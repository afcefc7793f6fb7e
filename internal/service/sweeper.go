package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// HandoffSweeper ends conversations whose handoff request waited longer than
// the timeout without a specialist joining.
type HandoffSweeper struct {
	conversations *ConversationService
	handoffs      store.HandoffRepository
	timeout       time.Duration
	interval      time.Duration
	logger        *logger.Logger
	now           func() time.Time
}

// NewHandoffSweeper creates a sweeper.
func NewHandoffSweeper(conversations *ConversationService, handoffs store.HandoffRepository, timeout, interval time.Duration, log *logger.Logger) *HandoffSweeper {
	return &HandoffSweeper{
		conversations: conversations,
		handoffs:      handoffs,
		timeout:       timeout,
		interval:      interval,
		logger:        log.Component("handoff-sweeper"),
		now:           conversations.now,
	}
}

// Run sweeps on every interval until ctx is cancelled.
func (s *HandoffSweeper) Run(ctx context.Context) error {
	s.logger.Info("handoff sweeper started",
		zap.Duration("timeout", s.timeout),
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("handoff sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("handoff sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires every stale handoff once and returns how many conversations it ended.
func (s *HandoffSweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.handoffs.StaleHandoffs(ctx, s.now().Add(-s.timeout))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range stale {
		ok, err := s.conversations.ExpireHandoff(ctx, req.ConversationID)
		if err != nil {
			s.logger.Warn("failed to expire handoff",
				zap.String("conversation_id", req.ConversationID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
