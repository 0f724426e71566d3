// README: Store contract tests shared by the memory, Postgres, and RTDB stores.
package ride

import (
	"context"
	"os"
	"testing"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"rideshare/internal/testutil"
	"rideshare/internal/types"
)

func contractStores() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"postgres": func(t *testing.T) Store {
			return NewPostgresStore(testutil.OpenDB(t, "rides"))
		},
		"firebase": openFirebaseStore,
	}
}

// openFirebaseStore targets RIDESHARE_TEST_FIREBASE_URL, normally the RTDB emulator
// (FIREBASE_DATABASE_EMULATOR_HOST set as well).
func openFirebaseStore(t *testing.T) Store {
	t.Helper()
	url := os.Getenv("RIDESHARE_TEST_FIREBASE_URL")
	if url == "" {
		t.Skip("RIDESHARE_TEST_FIREBASE_URL not set; skipping RTDB store tests")
	}
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: url}, option.WithoutAuthentication())
	require.NoError(t, err)
	client, err := app.Database(ctx)
	require.NoError(t, err)
	require.NoError(t, client.NewRef(ridesPath).Delete(ctx))
	return NewFirebaseStore(client, time.UTC)
}

func sampleRide() *Ride {
	return &Ride{
		Type:        TypeOffer,
		DriverID:    "d1",
		DriverEmail: "d1@example.com",
		From:        "Campus",
		To:          "Station",
		ScheduledAt: time.Date(2031, time.May, 4, 17, 30, 0, 0, time.UTC),
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range contractStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			r := sampleRide()
			id, err := store.Create(ctx, r)
			require.NoError(t, err)
			require.NotEmpty(t, id)
			assert.Equal(t, int64(1), r.Version)

			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, TypeOffer, got.Type)
			assert.Equal(t, types.ID("d1"), got.DriverID)
			assert.Empty(t, got.RiderID)
			assert.True(t, got.ScheduledAt.Equal(r.ScheduledAt))

			// A stale version loses.
			stale := got.Clone()
			got.RiderID, got.RiderEmail, got.Accepted = "r1", "r1@example.com", true
			ok, err := store.Replace(ctx, got, 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(2), got.Version)

			stale.From = "Elsewhere"
			ok, err = store.Replace(ctx, stale, 1)
			require.NoError(t, err)
			assert.False(t, ok)

			unaccepted, err := store.ListByAccepted(ctx, false)
			require.NoError(t, err)
			assert.Empty(t, unaccepted)
			accepted, err := store.ListByAccepted(ctx, true)
			require.NoError(t, err)
			require.Len(t, accepted, 1)
			assert.Equal(t, "Campus", accepted[0].From)
			assert.Equal(t, types.ID("r1"), accepted[0].RiderID)

			ok, err = store.DeleteIf(ctx, id, 1)
			require.NoError(t, err)
			assert.False(t, ok, "stale conditional delete")

			ok, err = store.DeleteIf(ctx, id, 2)
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = store.Get(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, store.Delete(ctx, id), "deleting an absent ride succeeds")

			ok, err = store.Replace(ctx, got, 2)
			require.NoError(t, err)
			assert.False(t, ok, "replace of a removed ride")
		})
	}
}
