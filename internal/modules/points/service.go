// README: Points service opens accounts at the starting balance and records transfers.
package points

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"rideshare/internal/config"
	"rideshare/internal/logging"
	"rideshare/internal/types"
)

type Service struct {
	ledger Ledger
	cfg    config.PointsConfig
	log    *logrus.Entry
}

func NewService(ledger Ledger, cfg config.PointsConfig) *Service {
	if cfg.StartingBalance == 0 {
		cfg.StartingBalance = StartingBalance
	}
	return &Service{ledger: ledger, cfg: cfg, log: logging.Module(nil, "points")}
}

func (s *Service) WithLogger(logger *logrus.Logger) *Service {
	s.log = logging.Module(logger, "points")
	return s
}

// OpenAccount gives a new user the starting balance. Reopening is a no-op.
func (s *Service) OpenAccount(ctx context.Context, userID types.ID) error {
	err := s.ledger.Open(ctx, userID, s.cfg.StartingBalance)
	if errors.Is(err, ErrAccountExists) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "balance": s.cfg.StartingBalance}).Info("points account opened")
	return nil
}

func (s *Service) Balance(ctx context.Context, userID types.ID) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *Service) Increment(ctx context.Context, userID types.ID, delta int64) error {
	if err := s.ledger.Increment(ctx, userID, delta); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "delta": delta}).Warn("points increment failed")
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "delta": delta}).Debug("points moved")
	return nil
}

// Settle moves points from rider to driver once per ride.
func (s *Service) Settle(ctx context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error) {
	fields := logrus.Fields{"ride_id": rideID, "driver_id": driverID, "rider_id": riderID, "points": points}
	settled, err := s.ledger.Settle(ctx, rideID, driverID, riderID, points)
	if err != nil {
		s.log.WithError(err).WithFields(fields).Warn("ride settlement failed")
		return false, err
	}
	if !settled {
		s.log.WithFields(fields).Info("ride already settled")
		return false, nil
	}
	s.log.WithFields(fields).Debug("ride settled")
	return true, nil
}
