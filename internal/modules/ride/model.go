// README: Ride aggregate, roles, and the lifecycle phase table.
package ride

import (
	"time"

	"rideshare/internal/types"
)

// Type says who initiated the ride: a driver offering seats or a rider asking for one.
type Type string

const (
	TypeOffer   Type = "offer"
	TypeRequest Type = "request"
)

func (t Type) Valid() bool {
	return t == TypeOffer || t == TypeRequest
}

type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)

// Ride is one offer or request together with its acceptance and confirmation state.
// An empty id or email means the role is vacant.
type Ride struct {
	ID              types.ID
	Type            Type
	DriverID        types.ID
	RiderID         types.ID
	DriverEmail     string
	RiderEmail      string
	From            string
	To              string
	ScheduledAt     time.Time
	Accepted        bool
	DriverConfirmed bool
	RiderConfirmed  bool
	// Version is bumped by every conditional write; stores compare it to detect lost updates.
	Version int64
}

// Phase is the lifecycle position of a ride, derived from its flags.
type Phase string

const (
	PhaseNone          Phase = "none"
	PhasePosted        Phase = "posted"
	PhaseAccepted      Phase = "accepted"
	PhaseOneConfirmed  Phase = "one_confirmed"
	PhaseBothConfirmed Phase = "both_confirmed"
	PhaseRemoved       Phase = "removed"
)

// AllowedTransitions represents the ride lifecycle as code. PhasePosted -> PhasePosted is an edit.
var AllowedTransitions = map[Phase][]Phase{
	PhaseNone:          {PhasePosted},
	PhasePosted:        {PhasePosted, PhaseAccepted, PhaseRemoved},
	PhaseAccepted:      {PhaseOneConfirmed},
	PhaseOneConfirmed:  {PhaseBothConfirmed},
	PhaseBothConfirmed: {PhaseRemoved},
}

func CanTransition(from, to Phase) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, p := range next {
		if p == to {
			return true
		}
	}
	return false
}

func (r *Ride) Phase() Phase {
	switch {
	case r == nil:
		return PhaseNone
	case !r.Accepted:
		return PhasePosted
	case r.DriverConfirmed && r.RiderConfirmed:
		return PhaseBothConfirmed
	case r.DriverConfirmed || r.RiderConfirmed:
		return PhaseOneConfirmed
	default:
		return PhaseAccepted
	}
}

// AuthorRole is the role filled at post time.
func (r *Ride) AuthorRole() Role {
	if r.Type == TypeRequest {
		return RoleRider
	}
	return RoleDriver
}

// AuthorID returns the id of the user who posted the ride.
func (r *Ride) AuthorID() types.ID {
	return r.idFor(r.AuthorRole())
}

// VacantRole is the role an accepter takes.
func (r *Ride) VacantRole() Role {
	if r.AuthorRole() == RoleDriver {
		return RoleRider
	}
	return RoleDriver
}

func (r *Ride) idFor(role Role) types.ID {
	if role == RoleDriver {
		return r.DriverID
	}
	return r.RiderID
}

// RoleOf reports which role uid holds on the ride, if any.
func (r *Ride) RoleOf(uid types.ID) (Role, bool) {
	if uid == "" {
		return "", false
	}
	if r.DriverID == uid {
		return RoleDriver, true
	}
	if r.RiderID == uid {
		return RoleRider, true
	}
	return "", false
}

func (r *Ride) Involves(uid types.ID) bool {
	_, ok := r.RoleOf(uid)
	return ok
}

func (r *Ride) Confirmed(role Role) bool {
	if role == RoleDriver {
		return r.DriverConfirmed
	}
	return r.RiderConfirmed
}

func (r *Ride) setConfirmed(role Role) {
	if role == RoleDriver {
		r.DriverConfirmed = true
		return
	}
	r.RiderConfirmed = true
}

func (r *Ride) fill(role Role, uid types.ID, email string) {
	if role == RoleDriver {
		r.DriverID, r.DriverEmail = uid, email
		return
	}
	r.RiderID, r.RiderEmail = uid, email
}

// WellFormed checks the role invariants: exactly the author's role is set before
// acceptance, both roles after.
func (r *Ride) WellFormed() bool {
	if r == nil || !r.Type.Valid() {
		return false
	}
	author := r.AuthorID() != ""
	vacant := r.idFor(r.VacantRole()) != ""
	if r.Accepted {
		return author && vacant
	}
	return author && !vacant && !r.DriverConfirmed && !r.RiderConfirmed
}

func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
