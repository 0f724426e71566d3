// README: Background sweep that finishes finalizations interrupted after the second confirmation.
package ride

import (
	"context"
	"errors"
	"time"
)

// RunFinalizeSweeper periodically finalizes rides left fully confirmed. It returns when ctx is done.
func (s *Service) RunFinalizeSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
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
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce finalizes every fully confirmed ride still in the store and reports how many it removed.
func (s *Service) SweepOnce(ctx context.Context) int {
	rides, err := s.store.ListByAccepted(ctx, true)
	if err != nil {
		s.log.WithError(err).Warn("sweep: list accepted rides failed")
		return 0
	}
	removed := 0
	for _, r := range rides {
		if r.Phase() != PhaseBothConfirmed {
			continue
		}
		warning, err := s.finalize(ctx, r)
		if err != nil {
			s.log.WithError(err).WithField("ride_id", r.ID).Warn("sweep: finalize failed")
			continue
		}
		if errors.Is(warning, errSettlementPending) {
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.WithField("count", removed).Info("sweep finalized rides")
	}
	return removed
}
