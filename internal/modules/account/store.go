// README: Account persistence (Postgres and in-memory).
package account

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideshare/internal/types"
)

type Store interface {
	// Create fails with ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, a *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *Account) error {
	err := s.db.QueryRow(ctx, `
        INSERT INTO accounts (id, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING created_at`,
		string(a.ID), a.Email, a.PasswordHash,
	).Scan(&a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	var id string
	err := s.db.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at
        FROM accounts
        WHERE email = $1`, email,
	).Scan(&id, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ID = types.ID(id)
	return &a, nil
}

type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]Account)}
}

func (m *MemoryStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrEmailTaken
	}
	m.byEmail[a.Email] = *a
	return nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}
