// README: Feed service turns lifecycle events into per-viewer view snapshots.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"rideshare/internal/logging"
	"rideshare/internal/modules/points"
	"rideshare/internal/modules/ride"
	"rideshare/internal/observability"
	"rideshare/internal/types"
)

type RideLister interface {
	List(ctx context.Context, viewer types.ID, v ride.View) ([]*ride.Ride, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID types.ID) (int64, error)
}

// Snapshot is the full content of one view for one viewer at a point in time.
type Snapshot struct {
	View    ride.View
	Rides   []*ride.Ride
	Balance int64
	At      time.Time
}

type Service struct {
	broker Broker
	rides  RideLister
	points BalanceReader
	log    *logrus.Entry
	now    func() time.Time
}

func NewService(broker Broker, rides RideLister, points BalanceReader) *Service {
	return &Service{
		broker: broker,
		rides:  rides,
		points: points,
		log:    logging.Module(nil, "feed"),
		now:    time.Now,
	}
}

func (s *Service) WithLogger(logger *logrus.Logger) *Service {
	s.log = logging.Module(logger, "feed")
	return s
}

// Watch streams snapshots of view v for viewer: one immediately, then one after every
// relevant event. A reader that falls behind only sees the latest snapshot. The channel is
// closed when ctx is done.
func (s *Service) Watch(ctx context.Context, viewer types.ID, v ride.View) (<-chan Snapshot, error) {
	events, cancel, err := s.broker.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	first, err := s.Snapshot(ctx, viewer, v)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- first
	observability.FeedSubscribers.Inc()

	go func() {
		defer observability.FeedSubscribers.Dec()
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if !relevant(e, viewer, v) {
					continue
				}
				snap, err := s.Snapshot(ctx, viewer, v)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.log.WithError(err).WithFields(logrus.Fields{"viewer": viewer, "view": v}).Warn("refresh snapshot failed")
					continue
				}
				replaceLatest(out, snap)
			}
		}
	}()
	return out, nil
}

// Snapshot reads view v once. A viewer without a points account reads as balance zero.
func (s *Service) Snapshot(ctx context.Context, viewer types.ID, v ride.View) (Snapshot, error) {
	rides, err := s.rides.List(ctx, viewer, v)
	if err != nil {
		return Snapshot{}, err
	}
	balance, err := s.points.Balance(ctx, viewer)
	if err != nil && !errors.Is(err, points.ErrNoAccount) {
		return Snapshot{}, err
	}
	return Snapshot{View: v, Rides: rides, Balance: balance, At: s.now()}, nil
}

// replaceLatest sends snap, discarding an unread older snapshot. Only the Watch goroutine sends on out.
func replaceLatest(out chan Snapshot, snap Snapshot) {
	for {
		select {
		case out <- snap:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

func relevant(e ride.Event, viewer types.ID, v ride.View) bool {
	involved := e.ActorID == viewer || e.DriverID == viewer || e.RiderID == viewer
	if involved {
		return true
	}
	switch v {
	case ride.ViewOthersOffers, ride.ViewOthersRequests:
		// Any change to an open ride can add or remove one from these views.
		switch e.Type {
		case ride.EventPosted, ride.EventEdited, ride.EventDeleted, ride.EventAccepted:
			return true
		}
	}
	return false
}
