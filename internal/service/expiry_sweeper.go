package service

import (
	"context"
	"log/slog"
	"time"
)

const sweepBatch = 500

// ExpirySweeper periodically removes expired messages so they disappear
// even when no client reports them.
type ExpirySweeper struct {
	chat  *ChatService
	every time.Duration
}

func NewExpirySweeper(chat *ChatService, every time.Duration) *ExpirySweeper {
	if every <= 0 {
		every = 30 * time.Second
	}
	return &ExpirySweeper{chat: chat, every: every}
}

// Run sweeps until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	total := 0
	for {
		n, err := s.chat.SweepExpired(ctx, sweepBatch)
		total += n
		if err != nil {
			slog.Error("expiry sweep failed", "err", err)
			return total
		}
		if n < sweepBatch {
			break
		}
	}
	if total > 0 {
		slog.Info("expired messages swept", "count", total)
	}
	return total
}
