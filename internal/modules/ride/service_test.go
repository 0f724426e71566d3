// README: Ride service tests (lifecycle scenarios, permissions, finalization).
package ride

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rideshare/internal/config"
	"rideshare/internal/logging"
	"rideshare/internal/types"
)

var testNow = time.Date(2030, time.January, 1, 10, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu       sync.Mutex
	balances map[types.ID]int64
	settled  map[types.ID]bool
	// failSettle, when set, is returned by the next Settle before anything is applied.
	failSettle error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[types.ID]int64{}, settled: map[types.ID]bool{}}
}

func (l *fakeLedger) Balance(_ context.Context, uid types.ID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[uid], nil
}

func (l *fakeLedger) Settle(_ context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failSettle; err != nil {
		l.failSettle = nil
		return false, err
	}
	if l.settled[rideID] {
		return false, nil
	}
	l.settled[rideID] = true
	l.balances[driverID] += points
	l.balances[riderID] -= points
	return true, nil
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Balance(ctx context.Context, uid types.ID) (int64, error) {
	args := m.Called(ctx, uid)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedger) Settle(ctx context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error) {
	args := m.Called(ctx, rideID, driverID, riderID, points)
	return args.Bool(0), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func testConfig() config.RideConfig {
	return config.RideConfig{Points: 50, ConfirmRetries: 3, DeleteRetries: 3, SweepInterval: time.Minute}
}

func newTestService(store Store, ledger Ledger) *Service {
	return NewService(store, ledger, testConfig()).
		WithClock(func() time.Time { return testNow }).
		WithLogger(logging.Discard())
}

func tomorrow() time.Time {
	return testNow.Add(24 * time.Hour)
}

func mustPost(t *testing.T, svc *Service, typ Type, author types.ID) *Ride {
	t.Helper()
	r, err := svc.Post(context.Background(), PostCommand{
		Type:        typ,
		AuthorID:    author,
		AuthorEmail: string(author) + "@example.com",
		From:        "A",
		To:          "B",
		ScheduledAt: tomorrow(),
	})
	require.NoError(t, err)
	return r
}

func mustAccept(t *testing.T, svc *Service, id, accepter types.ID) *Ride {
	t.Helper()
	r, err := svc.Accept(context.Background(), AcceptCommand{RideID: id, AccepterID: accepter, AccepterEmail: string(accepter) + "@example.com"})
	require.NoError(t, err)
	return r
}

func TestPostOffer(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, newFakeLedger())
	ctx := context.Background()

	r := mustPost(t, svc, TypeOffer, "uid1")

	all, err := store.ListByAccepted(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, got.Accepted)
	assert.Equal(t, types.ID("uid1"), got.DriverID)
	assert.Equal(t, "uid1@example.com", got.DriverEmail)
	assert.Empty(t, got.RiderID)
	assert.Empty(t, got.RiderEmail)
	assert.False(t, got.DriverConfirmed || got.RiderConfirmed)
}

func TestPostRequestFillsRider(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	r := mustPost(t, svc, TypeRequest, "uid2")
	assert.Equal(t, types.ID("uid2"), r.RiderID)
	assert.Empty(t, r.DriverID)
}

func TestPostValidation(t *testing.T) {
	cases := []struct {
		name string
		cmd  PostCommand
		want error
	}{
		{"past time", PostCommand{Type: TypeOffer, AuthorID: "u1", From: "A", To: "B", ScheduledAt: testNow.Add(-time.Hour)}, ErrValidation},
		{"now is not future", PostCommand{Type: TypeOffer, AuthorID: "u1", From: "A", To: "B", ScheduledAt: testNow.Add(30 * time.Second)}, ErrValidation},
		{"empty from", PostCommand{Type: TypeOffer, AuthorID: "u1", From: "  ", To: "B", ScheduledAt: tomorrow()}, ErrValidation},
		{"empty to", PostCommand{Type: TypeOffer, AuthorID: "u1", From: "A", ScheduledAt: tomorrow()}, ErrValidation},
		{"missing time", PostCommand{Type: TypeOffer, AuthorID: "u1", From: "A", To: "B"}, ErrValidation},
		{"bad type", PostCommand{Type: "carpool", AuthorID: "u1", From: "A", To: "B", ScheduledAt: tomorrow()}, ErrValidation},
		{"anonymous", PostCommand{Type: TypeOffer, From: "A", To: "B", ScheduledAt: tomorrow()}, ErrPermission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			svc := newTestService(store, newFakeLedger())
			_, err := svc.Post(context.Background(), tc.cmd)
			assert.ErrorIs(t, err, tc.want)

			all, _ := store.ListByAccepted(context.Background(), false)
			assert.Empty(t, all, "no record is created")
		})
	}
}

func TestPostTruncatesToMinute(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	r, err := svc.Post(context.Background(), PostCommand{
		Type: TypeOffer, AuthorID: "u1", From: "A", To: "B",
		ScheduledAt: tomorrow().Add(42 * time.Second),
	})
	require.NoError(t, err)
	assert.True(t, r.ScheduledAt.Equal(tomorrow()))

	_, err = svc.Post(context.Background(), PostCommand{
		Type: TypeOffer, AuthorID: "u1", From: "A", To: "B",
		ScheduledAt: testNow.Add(30 * time.Second),
	})
	assert.ErrorIs(t, err, ErrValidation, "later in the current minute truncates to now")
}

type upperResolver struct{ fail bool }

func (r upperResolver) Resolve(_ context.Context, text string) (string, error) {
	if r.fail {
		return "", errors.New("quota exceeded")
	}
	return text + ", Springfield", nil
}

func TestPostResolvesEndpoints(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger()).WithResolver(upperResolver{})
	r := mustPost(t, svc, TypeOffer, "u1")
	assert.Equal(t, "A, Springfield", r.From)
	assert.Equal(t, "B, Springfield", r.To)

	svc = newTestService(NewMemoryStore(), newFakeLedger()).WithResolver(upperResolver{fail: true})
	r = mustPost(t, svc, TypeOffer, "u1")
	assert.Equal(t, "A", r.From, "resolver failure keeps the entered text")
}

func TestAcceptOffer(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")

	r := mustAccept(t, svc, posted.ID, "uid2")
	assert.True(t, r.Accepted)
	assert.Equal(t, types.ID("uid2"), r.RiderID)
	assert.Equal(t, "uid2@example.com", r.RiderEmail)
	assert.Equal(t, types.ID("uid1"), r.DriverID)

	_, err := svc.Accept(ctx, AcceptCommand{RideID: posted.ID, AccepterID: "uid3"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAcceptRequestFillsDriver(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	posted := mustPost(t, svc, TypeRequest, "rider")
	r := mustAccept(t, svc, posted.ID, "driver")
	assert.Equal(t, types.ID("driver"), r.DriverID)
	assert.Equal(t, types.ID("rider"), r.RiderID)
}

func TestAcceptRejections(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")

	_, err := svc.Accept(ctx, AcceptCommand{RideID: posted.ID, AccepterID: "uid1"})
	assert.ErrorIs(t, err, ErrPermission, "self-accept")

	_, err = svc.Accept(ctx, AcceptCommand{RideID: "missing", AccepterID: "uid2"})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(ctx, posted.ID)
	require.NoError(t, err)
	assert.False(t, got.Accepted)
}

func TestAcceptFloorPolicy(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances["poor"] = 40
	ledger.balances["rich"] = 200
	svc := newTestService(NewMemoryStore(), ledger).WithFloor(0)
	ctx := context.Background()

	offer := mustPost(t, svc, TypeOffer, "driver")
	_, err := svc.Accept(ctx, AcceptCommand{RideID: offer.ID, AccepterID: "poor"})
	assert.ErrorIs(t, err, ErrValidation)
	mustAccept(t, svc, offer.ID, "rich")

	// On a request the author pays, whoever accepts.
	request := mustPost(t, svc, TypeRequest, "poor")
	_, err = svc.Accept(ctx, AcceptCommand{RideID: request.ID, AccepterID: "rich"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEdit(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")

	later := tomorrow().Add(2 * time.Hour)
	r, err := svc.Edit(ctx, EditCommand{RideID: posted.ID, EditorID: "uid1", From: "C", To: "D", ScheduledAt: later})
	require.NoError(t, err)
	assert.Equal(t, "C", r.From)
	assert.Equal(t, "D", r.To)
	assert.True(t, r.ScheduledAt.Equal(later))
	assert.Equal(t, posted.ID, r.ID)
	assert.Equal(t, types.ID("uid1"), r.DriverID)

	_, err = svc.Edit(ctx, EditCommand{RideID: posted.ID, EditorID: "uid2", From: "C", To: "D", ScheduledAt: later})
	assert.ErrorIs(t, err, ErrPermission)

	_, err = svc.Edit(ctx, EditCommand{RideID: posted.ID, EditorID: "uid1", From: "C", To: "D", ScheduledAt: testNow})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Edit(ctx, EditCommand{RideID: "missing", EditorID: "uid1", From: "C", To: "D", ScheduledAt: later})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditAcceptedRideLeavesRecordUnchanged(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")
	accepted := mustAccept(t, svc, posted.ID, "uid2")

	for _, editor := range []types.ID{"uid1", "uid2"} {
		_, err := svc.Edit(ctx, EditCommand{RideID: posted.ID, EditorID: editor, From: "X", To: "Y", ScheduledAt: tomorrow()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConflict) || errors.Is(err, ErrPermission), "got %v", err)
	}

	got, err := svc.Get(ctx, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, accepted, got)
}

func TestDelete(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeRequest, "uid1")

	assert.ErrorIs(t, svc.Delete(ctx, DeleteCommand{RideID: posted.ID, RequesterID: "uid2"}), ErrPermission)
	require.NoError(t, svc.Delete(ctx, DeleteCommand{RideID: posted.ID, RequesterID: "uid1"}))

	_, err := svc.Get(ctx, posted.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, DeleteCommand{RideID: posted.ID, RequesterID: "uid1"}), ErrNotFound)
}

func TestDeleteAcceptedRideIsForbidden(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")

	for _, who := range []types.ID{"uid1", "uid2"} {
		assert.ErrorIs(t, svc.Delete(ctx, DeleteCommand{RideID: posted.ID, RequesterID: who}), ErrPermission)
	}
	_, err := svc.Get(ctx, posted.ID)
	assert.NoError(t, err)
}

func TestLookupHidesOthersAcceptedRides(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	open := mustPost(t, svc, TypeRequest, "uid1")
	taken := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, taken.ID, "uid2")

	got, err := svc.Lookup(ctx, open.ID, "uid3")
	require.NoError(t, err)
	assert.Equal(t, open.ID, got.ID)

	for _, who := range []types.ID{"uid1", "uid2"} {
		got, err := svc.Lookup(ctx, taken.ID, who)
		require.NoError(t, err, who)
		assert.Equal(t, taken.ID, got.ID)
	}
	_, err = svc.Lookup(ctx, taken.ID, "uid3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmAndFinalize(t *testing.T) {
	store := NewMemoryStore()
	ledger := newFakeLedger()
	events := &recordingPublisher{}
	svc := newTestService(store, ledger).WithEvents(events)
	ctx := context.Background()

	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")

	res, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid1"})
	require.NoError(t, err)
	assert.False(t, res.Finalized)
	assert.True(t, res.Ride.DriverConfirmed)
	assert.False(t, res.Ride.RiderConfirmed)

	active, err := svc.List(ctx, "uid2", ViewActive)
	require.NoError(t, err)
	require.Len(t, active, 1, "one confirmation keeps the ride active")

	res, err = svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.NoError(t, res.Warning)

	_, err = store.Get(ctx, posted.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(50), ledger.balances["uid1"])
	assert.Equal(t, int64(-50), ledger.balances["uid2"])

	assert.Equal(t, []EventType{EventPosted, EventAccepted, EventConfirmed, EventConfirmed, EventFinalized}, events.kinds())
}

func TestConfirmIsIdempotentPerParty(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")

	first, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	second, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	assert.Equal(t, first.Ride.Version, second.Ride.Version, "repeat confirmation does not write")
	assert.False(t, second.Ride.DriverConfirmed)
}

func TestConfirmRejections(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	posted := mustPost(t, svc, TypeOffer, "uid1")

	_, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid1"})
	assert.ErrorIs(t, err, ErrConflict, "not accepted yet")

	mustAccept(t, svc, posted.ID, "uid2")
	_, err = svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid3"})
	assert.ErrorIs(t, err, ErrPermission)

	_, err = svc.Confirm(ctx, ConfirmCommand{RideID: "missing", ConfirmerID: "uid1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ledger := newFakeLedger()
	svc := newTestService(store, ledger)
	ctx := context.Background()

	r := &Ride{Type: TypeOffer, DriverID: "d", RiderID: "r", Accepted: true, DriverConfirmed: true, RiderConfirmed: true, From: "A", To: "B", ScheduledAt: tomorrow()}
	_, err := store.Create(ctx, r)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		warning, err := svc.Finalize(ctx, r.ID)
		require.NoError(t, err)
		require.NoError(t, warning)
	}
	// A duplicate observation of the same ride, as if the record had been written back.
	_, err = store.Create(ctx, r.Clone())
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(50), ledger.balances["d"])
	assert.Equal(t, int64(-50), ledger.balances["r"])
	_, err = store.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeRejectsUnconfirmedRide(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")

	_, err := svc.Finalize(context.Background(), posted.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFinalizeSettleFailureMovesNoPoints(t *testing.T) {
	store := NewMemoryStore()
	ledger := newFakeLedger()
	svc := newTestService(store, ledger)
	ctx := context.Background()

	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")
	_, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid1"})
	require.NoError(t, err)

	ledger.failSettle = errors.New("connection reset")
	res, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	assert.False(t, res.Finalized)
	assert.ErrorIs(t, res.Warning, ErrLedger)
	assert.Zero(t, ledger.balances["uid1"], "driver is not credited")
	assert.Zero(t, ledger.balances["uid2"], "rider is not debited")
	_, err = store.Get(ctx, posted.ID)
	require.NoError(t, err, "ride is kept until the transfer succeeds")

	res, err = svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.NoError(t, res.Warning)
	assert.Equal(t, int64(50), ledger.balances["uid1"])
	assert.Equal(t, int64(-50), ledger.balances["uid2"])
	_, err = store.Get(ctx, posted.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeSettleFailureLeavesRideForSweeper(t *testing.T) {
	store := NewMemoryStore()
	ledger := new(mockLedger)
	svc := newTestService(store, ledger)
	ctx := context.Background()

	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")
	_, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid1"})
	require.NoError(t, err)

	ledger.On("Settle", mock.Anything, posted.ID, types.ID("uid1"), types.ID("uid2"), int64(50)).Return(false, errors.New("redis down")).Once()
	res, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	assert.False(t, res.Finalized)
	assert.ErrorIs(t, res.Warning, ErrLedger)

	got, err := store.Get(ctx, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseBothConfirmed, got.Phase())

	active, err := svc.List(ctx, "uid1", ViewActive)
	require.NoError(t, err)
	assert.Empty(t, active, "fully confirmed rides are not active")

	ledger.On("Settle", mock.Anything, posted.ID, types.ID("uid1"), types.ID("uid2"), int64(50)).Return(true, nil).Once()
	assert.Equal(t, 1, svc.SweepOnce(ctx))

	_, err = store.Get(ctx, posted.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	ledger.AssertExpectations(t)
}

func TestConfirmAfterInterruptedFinalizeCompletesIt(t *testing.T) {
	store := NewMemoryStore()
	ledger := newFakeLedger()
	svc := newTestService(store, ledger)
	ctx := context.Background()

	r := &Ride{Type: TypeRequest, DriverID: "d", RiderID: "r", Accepted: true, DriverConfirmed: true, RiderConfirmed: true, From: "A", To: "B", ScheduledAt: tomorrow()}
	_, err := store.Create(ctx, r)
	require.NoError(t, err)

	res, err := svc.Confirm(ctx, ConfirmCommand{RideID: r.ID, ConfirmerID: "r"})
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.Equal(t, int64(50), ledger.balances["d"])
}

type flakyDeleteStore struct {
	*MemoryStore
	failures int
}

func (s *flakyDeleteStore) Delete(ctx context.Context, id types.ID) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("timeout")
	}
	return s.MemoryStore.Delete(ctx, id)
}

func TestFinalizeRetriesDelete(t *testing.T) {
	store := &flakyDeleteStore{MemoryStore: NewMemoryStore(), failures: 2}
	ledger := newFakeLedger()
	svc := newTestService(store, ledger)
	ctx := context.Background()

	posted := mustPost(t, svc, TypeOffer, "uid1")
	mustAccept(t, svc, posted.ID, "uid2")
	_, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid1"})
	require.NoError(t, err)
	res, err := svc.Confirm(ctx, ConfirmCommand{RideID: posted.ID, ConfirmerID: "uid2"})
	require.NoError(t, err)
	assert.True(t, res.Finalized)

	_, err = store.Get(ctx, posted.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListViews(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeLedger())
	ctx := context.Background()
	mine := mustPost(t, svc, TypeOffer, "me")
	other := mustPost(t, svc, TypeRequest, "u2")

	offers, err := svc.List(ctx, "me", ViewMyOffers)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{mine.ID}, ids(offers))

	requests, err := svc.List(ctx, "me", ViewOthersRequests)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{other.ID}, ids(requests))

	mustAccept(t, svc, other.ID, "me")
	active, err := svc.List(ctx, "me", ViewActive)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{other.ID}, ids(active))
}

// TestRoleInvariantsUnderRandomOperations drives random operations and checks the ride
// invariants after every step.
func TestRoleInvariantsUnderRandomOperations(t *testing.T) {
	store := NewMemoryStore()
	ledger := newFakeLedger()
	svc := newTestService(store, ledger)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	users := []types.ID{"u1", "u2", "u3", "u4"}
	var rideIDs []types.ID

	for step := 0; step < 500; step++ {
		user := users[rng.Intn(len(users))]
		switch op := rng.Intn(5); {
		case op == 0 || len(rideIDs) == 0:
			typ := TypeOffer
			if rng.Intn(2) == 0 {
				typ = TypeRequest
			}
			r, err := svc.Post(ctx, PostCommand{Type: typ, AuthorID: user, From: "A", To: "B", ScheduledAt: tomorrow()})
			require.NoError(t, err)
			rideIDs = append(rideIDs, r.ID)
		case op == 1:
			_, _ = svc.Accept(ctx, AcceptCommand{RideID: rideIDs[rng.Intn(len(rideIDs))], AccepterID: user})
		case op == 2:
			before, _ := store.Get(ctx, rideIDs[rng.Intn(len(rideIDs))])
			res, err := svc.Confirm(ctx, ConfirmCommand{RideID: rideIDsOr(before), ConfirmerID: user})
			if err == nil && before != nil && !res.Finalized {
				role, _ := res.Ride.RoleOf(user)
				assert.True(t, res.Ride.Confirmed(role))
				other := RoleDriver
				if role == RoleDriver {
					other = RoleRider
				}
				assert.Equal(t, before.Confirmed(other), res.Ride.Confirmed(other), "confirming never sets the other party's flag")
			}
		case op == 3:
			_, _ = svc.Edit(ctx, EditCommand{RideID: rideIDs[rng.Intn(len(rideIDs))], EditorID: user, From: "C", To: "D", ScheduledAt: tomorrow()})
		default:
			_ = svc.Delete(ctx, DeleteCommand{RideID: rideIDs[rng.Intn(len(rideIDs))], RequesterID: user})
		}

		for _, accepted := range []bool{false, true} {
			rides, err := store.ListByAccepted(ctx, accepted)
			require.NoError(t, err)
			for _, r := range rides {
				require.True(t, r.WellFormed(), "step %d: ride %+v", step, r)
				require.NotEqual(t, PhaseBothConfirmed, r.Phase(), "step %d: fully confirmed ride left behind", step)
			}
		}
	}

	var total int64
	for _, b := range ledger.balances {
		total += b
	}
	assert.Zero(t, total, "points are only moved, never created")
}

func rideIDsOr(r *Ride) types.ID {
	if r == nil {
		return "missing"
	}
	return r.ID
}
