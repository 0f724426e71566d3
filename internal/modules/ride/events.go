// README: Lifecycle events emitted after each successful transition.
package ride

import (
	"context"
	"errors"
	"time"

	"rideshare/internal/types"
)

type EventType string

const (
	EventPosted    EventType = "ride.posted"
	EventEdited    EventType = "ride.edited"
	EventDeleted   EventType = "ride.deleted"
	EventAccepted  EventType = "ride.accepted"
	EventConfirmed EventType = "ride.confirmed"
	EventFinalized EventType = "ride.finalized"
)

type Event struct {
	Type     EventType `json:"type"`
	RideID   types.ID  `json:"ride_id"`
	ActorID  types.ID  `json:"actor_id,omitempty"`
	DriverID types.ID  `json:"driver_id,omitempty"`
	RiderID  types.ID  `json:"rider_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers lifecycle events. Delivery failures never undo a transition.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Publishers fans an event out to every member and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newEvent(t EventType, r *Ride, actor types.ID, at time.Time) Event {
	return Event{
		Type:     t,
		RideID:   r.ID,
		ActorID:  actor,
		DriverID: r.DriverID,
		RiderID:  r.RiderID,
		At:       at,
	}
}
