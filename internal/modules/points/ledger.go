// README: Points ledger contract, defaults, and the in-memory implementation.
package points

import (
	"context"
	"errors"
	"sync"

	"rideshare/internal/types"
)

const (
	StartingBalance int64 = 150
	RidePoints      int64 = 50
)

var (
	ErrNoAccount     = errors.New("points account not found")
	ErrAccountExists = errors.New("points account already exists")
)

// Ledger keeps one integer balance per user. Increment is atomic per user and creates the
// balance at zero when it is missing.
type Ledger interface {
	Open(ctx context.Context, userID types.ID, initial int64) error
	Balance(ctx context.Context, userID types.ID) (int64, error)
	Increment(ctx context.Context, userID types.ID, delta int64) error
	// Settle records the ride as settled and moves points from rider to driver in one
	// unit. It returns false without moving anything when the ride was already settled.
	// On error nothing is recorded and the call may be retried.
	Settle(ctx context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error)
}

type MemoryLedger struct {
	mu       sync.Mutex
	balances map[types.ID]int64
	settled  map[types.ID]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[types.ID]int64),
		settled:  make(map[types.ID]struct{}),
	}
}

func (m *MemoryLedger) Open(_ context.Context, userID types.ID, initial int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[userID]; ok {
		return ErrAccountExists
	}
	m.balances[userID] = initial
	return nil
}

func (m *MemoryLedger) Balance(_ context.Context, userID types.ID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return 0, ErrNoAccount
	}
	return b, nil
}

func (m *MemoryLedger) Increment(_ context.Context, userID types.ID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += delta
	return nil
}

func (m *MemoryLedger) Settle(_ context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settled[rideID]; ok {
		return false, nil
	}
	m.settled[rideID] = struct{}{}
	m.balances[driverID] += points
	m.balances[riderID] -= points
	return true, nil
}
