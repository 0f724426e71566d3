// README: Ride store backed by Firebase Realtime Database; conditional writes use RTDB transactions.
package ride

import (
	"context"
	"errors"
	"time"

	"firebase.google.com/go/v4/db"

	"rideshare/internal/types"
)

const ridesPath = "rides"

var errStaleVersion = errors.New("stale ride version")

// FirebaseStore keeps rides under /rides/<key> in the persisted Record shape.
type FirebaseStore struct {
	rides *db.Ref
	loc   *time.Location
}

func NewFirebaseStore(client *db.Client, loc *time.Location) *FirebaseStore {
	return &FirebaseStore{rides: client.NewRef(ridesPath), loc: loc}
}

func (s *FirebaseStore) Create(ctx context.Context, r *Ride) (types.ID, error) {
	r.Version = 1
	rec := ToRecord(r, s.loc)
	if r.ID != "" {
		if err := s.rides.Child(string(r.ID)).Set(ctx, rec); err != nil {
			return "", err
		}
		return r.ID, nil
	}
	ref, err := s.rides.Push(ctx, rec)
	if err != nil {
		return "", err
	}
	r.ID = types.ID(ref.Key)
	return r.ID, nil
}

func (s *FirebaseStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	var rec *Record
	if err := s.rides.Child(string(id)).Get(ctx, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return FromRecord(id, *rec, s.loc)
}

func (s *FirebaseStore) Replace(ctx context.Context, r *Ride, expected int64) (bool, error) {
	next := ToRecord(r, s.loc)
	next.Version = expected + 1
	err := s.rides.Child(string(r.ID)).Transaction(ctx, func(node db.TransactionNode) (interface{}, error) {
		var cur *Record
		if err := node.Unmarshal(&cur); err != nil {
			return nil, err
		}
		if cur == nil || cur.Version != expected {
			return nil, errStaleVersion
		}
		return next, nil
	})
	if errors.Is(err, errStaleVersion) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.Version = next.Version
	return true, nil
}

func (s *FirebaseStore) Delete(ctx context.Context, id types.ID) error {
	return s.rides.Child(string(id)).Delete(ctx)
}

func (s *FirebaseStore) DeleteIf(ctx context.Context, id types.ID, expected int64) (bool, error) {
	err := s.rides.Child(string(id)).Transaction(ctx, func(node db.TransactionNode) (interface{}, error) {
		var cur *Record
		if err := node.Unmarshal(&cur); err != nil {
			return nil, err
		}
		if cur == nil || cur.Version != expected {
			return nil, errStaleVersion
		}
		// A nil value removes the node.
		return nil, nil
	})
	if errors.Is(err, errStaleVersion) {
		return false, nil
	}
	return err == nil, err
}

// ListByAccepted needs ".indexOn": ["accepted"] on /rides in the database rules.
func (s *FirebaseStore) ListByAccepted(ctx context.Context, accepted bool) ([]*Ride, error) {
	var recs map[string]Record
	if err := s.rides.OrderByChild("accepted").EqualTo(accepted).Get(ctx, &recs); err != nil {
		return nil, err
	}
	out := make([]*Ride, 0, len(recs))
	for key, rec := range recs {
		r, err := FromRecord(types.ID(key), rec, s.loc)
		if err != nil {
			// Unparseable entries are left out of every view.
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
