package account

import (
	"context"
	"fmt"
	"time"

	"github.com/kuitang/hostdesk/internal/metrics"
	"github.com/kuitang/hostdesk/internal/obs"
)

// PurgeExpiredTokens deletes every stored token whose expiry has passed.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.db.Queries().DeleteExpiredSplitTokens(ctx, s.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	metrics.RecordTokensPurged(n)
	if n > 0 {
		obs.From(ctx).With("pkg", "account").Info("expired_tokens_purged", "count", n)
	}
	return n, nil
}

// RunCleanup purges expired tokens every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpiredTokens(ctx); err != nil && ctx.Err() == nil {
				obs.From(ctx).With("pkg", "account").Error("token_cleanup_failed", "error", err)
			}
		}
	}
}
