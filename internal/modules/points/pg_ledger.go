// README: Points ledger on PostgreSQL (row-level atomic increments, transactional settlements).
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideshare/internal/types"
)

type PostgresLedger struct {
	db *pgxpool.Pool
	// afterClaim runs inside the settlement transaction once the claim row is written.
	afterClaim func(ctx context.Context) error
}

func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Open(ctx context.Context, userID types.ID, initial int64) error {
	tag, err := l.db.Exec(ctx, `
        INSERT INTO points (user_id, balance)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO NOTHING`,
		string(userID), initial,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

func (l *PostgresLedger) Balance(ctx context.Context, userID types.ID) (int64, error) {
	var b int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM points WHERE user_id = $1`, string(userID)).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoAccount
	}
	return b, err
}

const incrementSQL = `
        INSERT INTO points (user_id, balance)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE
        SET balance = points.balance + EXCLUDED.balance,
            updated_at = NOW()`

func (l *PostgresLedger) Increment(ctx context.Context, userID types.ID, delta int64) error {
	_, err := l.db.Exec(ctx, incrementSQL, string(userID), delta)
	return err
}

func (l *PostgresLedger) Settle(ctx context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error) {
	claimed := false
	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
        INSERT INTO ride_settlements (ride_id)
        VALUES ($1)
        ON CONFLICT (ride_id) DO NOTHING`,
			string(rideID),
		)
		if err != nil {
			return fmt.Errorf("claim settlement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if l.afterClaim != nil {
			if err := l.afterClaim(ctx); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, incrementSQL, string(driverID), points); err != nil {
			return fmt.Errorf("credit driver: %w", err)
		}
		if _, err := tx.Exec(ctx, incrementSQL, string(riderID), -points); err != nil {
			return fmt.Errorf("debit rider: %w", err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
