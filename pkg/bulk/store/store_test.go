package store

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/database"
	"github.com/hashicorp-forge/bulkflow/pkg/models"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BulkStatus{}))
	t.Cleanup(func() { _ = database.Close(db) })
	return NewGormStore(db, nil)
}

func newPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := OpenPebble("status", vfs.NewMem(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// storeContract runs the behaviour every bulk.StatusStore must have.
func storeContract(t *testing.T, s bulk.StatusStore) {
	ctx := context.Background()

	t.Run("absent id is unknown", func(t *testing.T) {
		st, err := s.GetStatus(ctx, "missing")
		require.NoError(t, err)
		assert.True(t, st.IsUnknown())
		assert.Equal(t, "missing", st.ID)
	})

	t.Run("set then get", func(t *testing.T) {
		submitted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		st := bulk.NewStatus("cmd-1", bulk.StateRunning)
		st.Action = "setProperties"
		st.Username = "alice"
		st.SubmitTime = bulk.Time(submitted)
		st.Total = bulk.Int64(10)
		st.Processed = bulk.Int64(4)

		payload, err := s.SetStatus(ctx, st)
		require.NoError(t, err)

		decoded, err := bulk.StatusCodec.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, st, decoded)

		got, err := s.GetStatus(ctx, "cmd-1")
		require.NoError(t, err)
		assert.Equal(t, bulk.StateRunning, got.State)
		assert.Equal(t, int64(10), got.TotalCount())
		assert.Equal(t, int64(4), got.ProcessedCount())
		assert.True(t, submitted.Equal(*got.SubmitTime))
	})

	t.Run("set overwrites", func(t *testing.T) {
		st := bulk.NewStatus("cmd-2", bulk.StateScheduled)
		_, err := s.SetStatus(ctx, st)
		require.NoError(t, err)

		st.State = bulk.StateCompleted
		st.InError("Invalid query")
		_, err = s.SetStatus(ctx, st)
		require.NoError(t, err)

		got, err := s.GetStatus(ctx, "cmd-2")
		require.NoError(t, err)
		assert.Equal(t, bulk.StateCompleted, got.State)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "Invalid query", *got.ErrorMessage)
	})

	t.Run("delta is rejected", func(t *testing.T) {
		_, err := s.SetStatus(ctx, bulk.DeltaOf("cmd-3"))
		assert.ErrorIs(t, err, bulk.ErrDeltaNotPersistable)

		st, err := s.GetStatus(ctx, "cmd-3")
		require.NoError(t, err)
		assert.True(t, st.IsUnknown())
	})
}

func TestGormStore(t *testing.T) {
	storeContract(t, newGormStore(t))
}

func TestPebbleStore(t *testing.T) {
	storeContract(t, newPebbleStore(t))
}

func TestGormStore_ListByState(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		state := bulk.StateRunning
		if id == "b" {
			state = bulk.StateCompleted
		}
		_, err := s.SetStatus(ctx, bulk.NewStatus(id, state))
		require.NoError(t, err)
	}

	running, err := s.ListByState(ctx, bulk.StateRunning, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(running))
	for _, st := range running {
		ids = append(ids, st.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Driver: DriverSQLite, SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	storeContract(t, s)
	require.NoError(t, s.Close())

	s, err = Open(Config{Driver: DriverPebble, PebblePath: t.TempDir() + "/status"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(Config{Driver: "redis"}, nil)
	assert.Error(t, err)
}
