// README: Ride store backed by PostgreSQL with version-guarded writes.
package ride

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideshare/internal/types"
)

const rideColumns = `id, ride_type, driver_id, rider_id, driver_email, rider_email,
       from_place, to_place, scheduled_at, accepted, driver_confirmed, rider_confirmed, version`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *Ride) (types.ID, error) {
	if r.ID == "" {
		r.ID = types.NewID()
	}
	r.Version = 1
	_, err := s.db.Exec(ctx, `
        INSERT INTO rides (
            id, ride_type, driver_id, rider_id, driver_email, rider_email,
            from_place, to_place, scheduled_at, accepted, driver_confirmed, rider_confirmed, version
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(r.ID),
		string(r.Type),
		optional(string(r.DriverID)),
		optional(string(r.RiderID)),
		optional(r.DriverEmail),
		optional(r.RiderEmail),
		r.From,
		r.To,
		r.ScheduledAt,
		r.Accepted,
		r.DriverConfirmed,
		r.RiderConfirmed,
		r.Version,
	)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) Replace(ctx context.Context, r *Ride, expected int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE rides
        SET driver_id = $1,
            rider_id = $2,
            driver_email = $3,
            rider_email = $4,
            from_place = $5,
            to_place = $6,
            scheduled_at = $7,
            accepted = $8,
            driver_confirmed = $9,
            rider_confirmed = $10,
            version = version + 1,
            updated_at = NOW()
        WHERE id = $11 AND version = $12`,
		optional(string(r.DriverID)),
		optional(string(r.RiderID)),
		optional(r.DriverEmail),
		optional(r.RiderEmail),
		r.From,
		r.To,
		r.ScheduledAt,
		r.Accepted,
		r.DriverConfirmed,
		r.RiderConfirmed,
		string(r.ID),
		expected,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	r.Version = expected + 1
	return true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM rides WHERE id = $1`, string(id))
	return err
}

func (s *PostgresStore) DeleteIf(ctx context.Context, id types.ID, expected int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rides WHERE id = $1 AND version = $2`, string(id), expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListByAccepted(ctx context.Context, accepted bool) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rideColumns+` FROM rides WHERE accepted = $1 ORDER BY scheduled_at`, accepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var id, rideType string
	var driverID, riderID, driverEmail, riderEmail *string
	err := row.Scan(
		&id, &rideType, &driverID, &riderID, &driverEmail, &riderEmail,
		&r.From, &r.To, &r.ScheduledAt, &r.Accepted, &r.DriverConfirmed, &r.RiderConfirmed, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.Type = Type(rideType)
	r.DriverID = types.ID(deref(driverID))
	r.RiderID = types.ID(deref(riderID))
	r.DriverEmail = deref(driverEmail)
	r.RiderEmail = deref(riderEmail)
	return &r, nil
}
