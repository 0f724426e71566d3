// README: Ride service implements the lifecycle transitions, finalization, and views.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rideshare/internal/config"
	"rideshare/internal/logging"
	"rideshare/internal/observability"
	"rideshare/internal/types"
)

// Ledger is the slice of the points ledger finalization needs.
type Ledger interface {
	Balance(ctx context.Context, userID types.ID) (int64, error)
	// Settle moves points from rider to driver and returns true exactly once per ride id.
	// A failed call applies nothing.
	Settle(ctx context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error)
}

// EndpointResolver normalizes free-text endpoints. Failures keep the text as entered.
type EndpointResolver interface {
	Resolve(ctx context.Context, text string) (string, error)
}

type Service struct {
	store    Store
	ledger   Ledger
	cfg      config.RideConfig
	events   Publisher
	resolver EndpointResolver
	log      *logrus.Entry
	now      func() time.Time
	floor    *int64
}

func NewService(store Store, ledger Ledger, cfg config.RideConfig) *Service {
	if cfg.Points <= 0 {
		cfg.Points = 50
	}
	if cfg.ConfirmRetries <= 0 {
		cfg.ConfirmRetries = 3
	}
	if cfg.DeleteRetries <= 0 {
		cfg.DeleteRetries = 3
	}
	return &Service{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		log:    logging.Module(nil, "ride"),
		now:    time.Now,
	}
}

func (s *Service) WithEvents(p Publisher) *Service {
	s.events = p
	return s
}

func (s *Service) WithResolver(r EndpointResolver) *Service {
	s.resolver = r
	return s
}

func (s *Service) WithLogger(logger *logrus.Logger) *Service {
	s.log = logging.Module(logger, "ride")
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithFloor rejects acceptances that would take the paying rider below floor.
func (s *Service) WithFloor(floor int64) *Service {
	s.floor = &floor
	return s
}

type PostCommand struct {
	Type        Type
	AuthorID    types.ID
	AuthorEmail string
	From        string
	To          string
	ScheduledAt time.Time
}

type AcceptCommand struct {
	RideID        types.ID
	AccepterID    types.ID
	AccepterEmail string
}

type EditCommand struct {
	RideID      types.ID
	EditorID    types.ID
	From        string
	To          string
	ScheduledAt time.Time
}

type DeleteCommand struct {
	RideID      types.ID
	RequesterID types.ID
}

type ConfirmCommand struct {
	RideID      types.ID
	ConfirmerID types.ID
}

// ConfirmResult carries the ride as last written. Warning wraps ErrLedger when the points
// transfer failed; the ride is then kept, unfinalized, for the sweeper.
type ConfirmResult struct {
	Ride      *Ride
	Finalized bool
	Warning   error
}

func (s *Service) Post(ctx context.Context, cmd PostCommand) (r *Ride, err error) {
	defer func() { s.record("post", err) }()

	if !cmd.Type.Valid() {
		return nil, validationf("ride type must be %q or %q", TypeOffer, TypeRequest)
	}
	if cmd.AuthorID == "" {
		return nil, permissionf("sign in to post a ride")
	}
	from, to, at, err := s.validateTrip(ctx, cmd.From, cmd.To, cmd.ScheduledAt)
	if err != nil {
		return nil, err
	}

	r = &Ride{Type: cmd.Type, From: from, To: to, ScheduledAt: at}
	r.fill(r.AuthorRole(), cmd.AuthorID, cmd.AuthorEmail)
	if _, err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "type": r.Type, "author": cmd.AuthorID}).Info("ride posted")
	s.publish(ctx, newEvent(EventPosted, r, cmd.AuthorID, s.now()))
	return r, nil
}

func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (r *Ride, err error) {
	defer func() { s.record("accept", err) }()

	r, err = s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Accepted {
		return nil, conflictf("ride was already accepted")
	}
	if !r.WellFormed() {
		return nil, conflictf("ride has no open seat")
	}
	if cmd.AccepterID == "" {
		return nil, permissionf("sign in to accept a ride")
	}
	if cmd.AccepterID == r.AuthorID() {
		return nil, permissionf("you cannot accept your own ride")
	}
	if err := s.checkFloor(ctx, r, cmd.AccepterID); err != nil {
		return nil, err
	}

	expected := r.Version
	r.fill(r.VacantRole(), cmd.AccepterID, cmd.AccepterEmail)
	r.Accepted = true
	ok, err := s.store.Replace(ctx, r, expected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostRace(ctx, r.ID, "ride was accepted by someone else")
	}
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "driver": r.DriverID, "rider": r.RiderID}).Info("ride accepted")
	s.publish(ctx, newEvent(EventAccepted, r, cmd.AccepterID, s.now()))
	return r, nil
}

func (s *Service) Edit(ctx context.Context, cmd EditCommand) (r *Ride, err error) {
	defer func() { s.record("edit", err) }()

	r, err = s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if cmd.EditorID == "" || cmd.EditorID != r.AuthorID() {
		return nil, permissionf("only the author can edit this ride")
	}
	if r.Accepted {
		return nil, conflictf("accepted rides cannot be edited")
	}
	from, to, at, err := s.validateTrip(ctx, cmd.From, cmd.To, cmd.ScheduledAt)
	if err != nil {
		return nil, err
	}

	expected := r.Version
	r.From, r.To, r.ScheduledAt = from, to, at
	ok, err := s.store.Replace(ctx, r, expected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostRace(ctx, r.ID, "ride changed while editing")
	}
	s.publish(ctx, newEvent(EventEdited, r, cmd.EditorID, s.now()))
	return r, nil
}

func (s *Service) Delete(ctx context.Context, cmd DeleteCommand) (err error) {
	defer func() { s.record("delete", err) }()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if cmd.RequesterID == "" || cmd.RequesterID != r.AuthorID() {
		return permissionf("only the author can delete this ride")
	}
	if r.Accepted {
		return permissionf("accepted rides cannot be deleted")
	}
	ok, err := s.store.DeleteIf(ctx, r.ID, r.Version)
	if err != nil {
		return err
	}
	if !ok {
		return s.lostRace(ctx, r.ID, "ride changed before it could be deleted")
	}
	s.log.WithField("ride_id", r.ID).Info("ride deleted")
	s.publish(ctx, newEvent(EventDeleted, r, cmd.RequesterID, s.now()))
	return nil
}

// Confirm records the caller's confirmation. The write that completes both confirmations
// also finalizes the ride; the returned error is nil even when the ledger part of that fails.
func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) (res *ConfirmResult, err error) {
	defer func() { s.record("confirm", err) }()

	for attempt := 0; attempt < s.cfg.ConfirmRetries; attempt++ {
		r, err := s.store.Get(ctx, cmd.RideID)
		if err != nil {
			return nil, err
		}
		if !r.Accepted {
			return nil, conflictf("ride has not been accepted yet")
		}
		role, ok := r.RoleOf(cmd.ConfirmerID)
		if !ok {
			return nil, permissionf("only the driver or rider can confirm")
		}

		if r.Confirmed(role) {
			if r.Phase() == PhaseBothConfirmed {
				// A previous finalization did not complete. Settle applies once per ride, so retrying is safe.
				return s.settle(ctx, r)
			}
			return &ConfirmResult{Ride: r}, nil
		}

		expected := r.Version
		r.setConfirmed(role)
		ok, err = s.store.Replace(ctx, r, expected)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.WithFields(logrus.Fields{"ride_id": r.ID, "attempt": attempt + 1}).Debug("confirm lost a race, retrying")
			continue
		}
		s.publish(ctx, newEvent(EventConfirmed, r, cmd.ConfirmerID, s.now()))
		if r.Phase() == PhaseBothConfirmed {
			return s.settle(ctx, r)
		}
		return &ConfirmResult{Ride: r}, nil
	}
	return nil, conflictf("ride keeps changing, refresh and try again")
}

// Finalize settles and removes a ride both parties confirmed. Calling it again after the
// ride is gone is a no-op.
func (s *Service) Finalize(ctx context.Context, id types.ID) (warning error, err error) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.Phase() != PhaseBothConfirmed {
		return nil, conflictf("ride is not confirmed by both parties")
	}
	return s.finalize(ctx, r)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// Lookup is Get scoped to what viewer may see: open rides, or accepted rides viewer is part of.
// Anything else reads as not found.
func (s *Service) Lookup(ctx context.Context, id, viewer types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Accepted && !r.Involves(viewer) {
		return nil, ErrNotFound
	}
	return r, nil
}

// List returns the rides in view v for viewer, ordered by scheduled time.
func (s *Service) List(ctx context.Context, viewer types.ID, v View) ([]*Ride, error) {
	rides, err := s.store.ListByAccepted(ctx, v.Accepted())
	if err != nil {
		return nil, err
	}
	return Filter(rides, viewer, v), nil
}

func (s *Service) settle(ctx context.Context, r *Ride) (*ConfirmResult, error) {
	warning, err := s.finalize(ctx, r)
	if err != nil {
		return nil, err
	}
	res := &ConfirmResult{Ride: r, Finalized: true, Warning: warning}
	if errors.Is(warning, errSettlementPending) {
		res.Finalized = false
	}
	return res, nil
}

var errSettlementPending = errors.New("settlement deferred to the sweeper")

// finalize transfers points and removes the ride. It runs detached from the caller's
// cancellation so a dropped request cannot leave the transfer half done.
func (s *Service) finalize(ctx context.Context, r *Ride) (warning error, err error) {
	ctx = context.WithoutCancel(ctx)
	log := s.log.WithFields(logrus.Fields{"ride_id": r.ID, "driver": r.DriverID, "rider": r.RiderID})

	settled, err := s.ledger.Settle(ctx, r.ID, r.DriverID, r.RiderID, s.cfg.Points)
	if err != nil {
		// Nothing was applied. The ride stays so the sweeper can settle it later.
		log.WithError(err).Warn("points transfer failed, leaving ride for the sweeper")
		observability.Finalizations.WithLabelValues("deferred").Inc()
		return fmt.Errorf("%w: %w: %v", ErrLedger, errSettlementPending, err), nil
	}
	if !settled {
		log.Info("settlement already applied")
	}

	if err := s.deleteWithRetry(ctx, r.ID); err != nil {
		log.WithError(err).Error("removing finalized ride failed")
		observability.Finalizations.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.Finalizations.WithLabelValues("ok").Inc()
	log.WithField("points", s.cfg.Points).Info("ride finalized")
	s.publish(ctx, newEvent(EventFinalized, r, "", s.now()))
	return nil, nil
}

func (s *Service) deleteWithRetry(ctx context.Context, id types.ID) error {
	var err error
	for attempt := 1; attempt <= s.cfg.DeleteRetries; attempt++ {
		if err = s.store.Delete(ctx, id); err == nil {
			return nil
		}
		if attempt < s.cfg.DeleteRetries {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
	}
	return err
}

func (s *Service) validateTrip(ctx context.Context, from, to string, at time.Time) (string, string, time.Time, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return "", "", time.Time{}, validationf("from is required")
	}
	if to == "" {
		return "", "", time.Time{}, validationf("to is required")
	}
	if at.IsZero() {
		return "", "", time.Time{}, validationf("date and time are required")
	}
	at = at.Truncate(time.Minute)
	if !at.After(s.now()) {
		return "", "", time.Time{}, validationf("scheduled time must be in the future")
	}
	return s.resolve(ctx, from), s.resolve(ctx, to), at, nil
}

func (s *Service) resolve(ctx context.Context, text string) string {
	if s.resolver == nil {
		return text
	}
	out, err := s.resolver.Resolve(ctx, text)
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			s.log.WithError(err).WithField("text", text).Debug("endpoint left unresolved")
		}
		return text
	}
	return out
}

// checkFloor applies the optional balance floor to whoever would pay for the ride.
func (s *Service) checkFloor(ctx context.Context, r *Ride, accepter types.ID) error {
	if s.floor == nil {
		return nil
	}
	payer := r.RiderID
	if r.VacantRole() == RoleRider {
		payer = accepter
	}
	balance, err := s.ledger.Balance(ctx, payer)
	if err != nil {
		return err
	}
	if balance-s.cfg.Points < *s.floor {
		return validationf("rider has %d points, %d needed", balance, s.cfg.Points+*s.floor)
	}
	return nil
}

// lostRace turns a failed conditional write into NotFound or Conflict.
func (s *Service) lostRace(ctx context.Context, id types.ID, msg string) error {
	if _, err := s.store.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return conflictf("%s", msg)
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"event": e.Type, "ride_id": e.RideID}).Warn("publish event failed")
	}
}

func (s *Service) record(op string, err error) {
	observability.Transitions.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch Kind(err) {
	case nil:
		if err != nil {
			return "error"
		}
		return "ok"
	case ErrValidation:
		return "validation"
	case ErrPermission:
		return "permission"
	case ErrConflict:
		return "conflict"
	case ErrNotFound:
		return "not_found"
	default:
		return "ledger"
	}
}
