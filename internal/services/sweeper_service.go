package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/config"
)

// SweeperService periodically reclaims seats whose holds expired without
// being confirmed or released. It releases through the same ledger path as
// an explicit release, so a sweep can never free a seat that was confirmed
// in the meantime. Sweeps are idempotent; running twice in a row changes
// nothing the second time.
type SweeperService struct {
	reservations *ReservationService
	ledger       SeatLedger
	holds        HoldStore
	limits       *RateLimitService
	cron         *cron.Cron
	cfg          config.BookingConfig
	logger       *logrus.Logger
}

// NewSweeperService creates a new sweeper service. limits may be nil when
// rate limit bookkeeping is not in use.
func NewSweeperService(reservations *ReservationService, ledger SeatLedger, holds HoldStore, limits *RateLimitService, cfg config.BookingConfig, logger *logrus.Logger) *SweeperService {
	return &SweeperService{
		reservations: reservations,
		ledger:       ledger,
		holds:        holds,
		limits:       limits,
		cron:         cron.New(cron.WithSeconds()),
		cfg:          cfg,
		logger:       logger,
	}
}

// Start schedules the sweep at the configured interval and starts the
// scheduler.
func (s *SweeperService) Start() error {
	schedule := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepInterval)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	if s.limits != nil {
		_, err = s.cron.AddFunc("@every 1h", func() {
			removed, err := s.limits.CleanupExpiredRateLimits()
			if err != nil {
				s.logger.WithError(err).Error("Failed to clean up rate limit records")
				return
			}
			if removed > 0 {
				s.logger.WithField("removed", removed).Debug("Rate limit records cleaned up")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup: %w", err)
		}
	}

	s.cron.Start()
	s.logger.WithField("interval", s.cfg.SweepInterval.String()).Info("Expiry sweeper started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SweeperService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Expiry sweeper stopped")
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	HoldsExpired  int `json:"holds_expired"`
	SeatsReleased int `json:"seats_released"`
	TripsFailed   int `json:"trips_failed"`
}

// RunOnce performs a single sweep pass. Each hold is released on its own,
// so a failure on one trip's holds does not block the rest.
func (s *SweeperService) RunOnce(ctx context.Context) SweepResult {
	var result SweepResult
	now := time.Now().UTC()

	holds, err := s.holds.GetExpiredActiveHolds(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list expired holds")
	} else {
		for i := range holds {
			released, err := s.reservations.ReleaseExpiredHold(ctx, &holds[i])
			if err != nil {
				result.TripsFailed++
				s.logger.WithError(err).WithFields(logrus.Fields{
					"hold_id": holds[i].ID,
					"trip_id": holds[i].TripID,
				}).Error("Failed to release expired hold")
				continue
			}
			result.HoldsExpired++
			result.SeatsReleased += released
		}
	}

	// Second pass catches held seats whose hold record is missing or was
	// already flipped without the seats being freed.
	result = s.sweepOrphans(ctx, result)

	if result.HoldsExpired > 0 || result.SeatsReleased > 0 || result.TripsFailed > 0 {
		s.logger.WithFields(logrus.Fields{
			"holds_expired":  result.HoldsExpired,
			"seats_released": result.SeatsReleased,
			"trips_failed":   result.TripsFailed,
		}).Info("Expiry sweep completed")
	}
	return result
}

func (s *SweeperService) sweepOrphans(ctx context.Context, result SweepResult) SweepResult {
	tripIDs, err := s.ledger.ListTripsWithExpiredHolds(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list trips with expired holds")
		return result
	}
	for _, tripID := range tripIDs {
		released, err := s.ledger.SweepTripExpired(ctx, tripID)
		if err != nil {
			result.TripsFailed++
			s.logger.WithError(err).WithField("trip_id", tripID).Error("Failed to sweep orphaned holds")
			continue
		}
		result.SeatsReleased += released
	}
	return result
}
