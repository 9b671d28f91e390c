package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type memStore struct {
	statuses map[string]*bulk.Status
	getErr   error
	writes   int
}

func newMemStore() *memStore {
	return &memStore{statuses: map[string]*bulk.Status{}}
}

func (s *memStore) GetStatus(_ context.Context, id string) (*bulk.Status, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if st, ok := s.statuses[id]; ok {
		return st.Clone(), nil
	}
	return bulk.UnknownStatus(id), nil
}

func (s *memStore) SetStatus(_ context.Context, st *bulk.Status) ([]byte, error) {
	if st.Delta {
		return nil, bulk.ErrDeltaNotPersistable
	}
	s.writes++
	s.statuses[st.ID] = st.Clone()
	return bulk.StatusCodec.Encode(st)
}

type recordingContext struct {
	done       []stream.Record
	checkpoint bool
}

func (r *recordingContext) ProduceRecord(_ context.Context, name string, rec stream.Record) error {
	if name != bulk.DefaultDoneStream {
		return errors.New("unexpected stream " + name)
	}
	r.done = append(r.done, rec)
	return nil
}

func (r *recordingContext) ProduceRecordImmediate(ctx context.Context, name string, rec stream.Record) error {
	return r.ProduceRecord(ctx, name, rec)
}

func (r *recordingContext) AskForCheckpoint() { r.checkpoint = true }

func newAggregator(t *testing.T, store bulk.StatusStore) *Aggregator {
	t.Helper()
	a, err := New(Config{Store: store, Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	return a
}

func send(t *testing.T, a *Aggregator, st *bulk.Status) (*recordingContext, error) {
	t.Helper()
	payload, err := bulk.StatusCodec.Encode(st)
	require.NoError(t, err)
	sc := &recordingContext{}
	return sc, a.ProcessRecord(context.Background(), sc, stream.Record{Key: st.ID, Value: payload})
}

func TestAggregator_FullStatusReplaces(t *testing.T) {
	store := newMemStore()
	store.statuses["cmd"] = bulk.NewStatus("cmd", bulk.StateRunning)
	a := newAggregator(t, store)

	full := bulk.NewStatus("cmd", bulk.StateScheduled)
	full.Action = "setProperties"
	sc, err := send(t, a, full)
	require.NoError(t, err)

	assert.True(t, sc.checkpoint)
	assert.Empty(t, sc.done)
	assert.Equal(t, full, store.statuses["cmd"])
}

func TestAggregator_DeltaMerges(t *testing.T) {
	store := newMemStore()
	store.statuses["cmd"] = bulk.NewStatus("cmd", bulk.StateScheduled)
	a := newAggregator(t, store)

	delta := bulk.DeltaOf("cmd")
	delta.State = bulk.StateScrollingRunning
	delta.ScrollStartTime = bulk.Time(testNow)
	sc, err := send(t, a, delta)
	require.NoError(t, err)
	assert.True(t, sc.checkpoint)
	assert.Empty(t, sc.done)

	got := store.statuses["cmd"]
	assert.False(t, got.Delta)
	assert.Equal(t, bulk.StateScrollingRunning, got.State)
	assert.Equal(t, testNow, *got.ScrollStartTime)
}

func TestAggregator_UnknownBaseIsFatal(t *testing.T) {
	store := newMemStore()
	a := newAggregator(t, store)

	delta := bulk.DeltaOf("lost")
	delta.State = bulk.StateRunning
	sc, err := send(t, a, delta)

	require.Error(t, err)
	assert.ErrorIs(t, err, bulk.ErrInconsistentStatus)
	assert.False(t, sc.checkpoint)
	assert.Zero(t, store.writes)
	assert.Empty(t, sc.done)
}

func TestAggregator_StoreReadFailureIsReturned(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("store down")
	a := newAggregator(t, store)

	sc, err := send(t, a, bulk.DeltaOf("cmd"))
	require.Error(t, err)
	assert.False(t, sc.checkpoint)
}

func TestAggregator_CompletionEmitsDone(t *testing.T) {
	store := newMemStore()
	running := bulk.NewStatus("cmd", bulk.StateRunning)
	running.Total = bulk.Int64(10)
	running.Processed = bulk.Int64(6)
	store.statuses["cmd"] = running
	a := newAggregator(t, store)

	progress := bulk.DeltaOf("cmd")
	progress.Processed = bulk.Int64(4)
	sc, err := send(t, a, progress)
	require.NoError(t, err)
	assert.True(t, sc.checkpoint)

	require.Len(t, sc.done, 1)
	assert.Equal(t, "cmd", sc.done[0].Key)
	done, err := bulk.StatusCodec.Decode(sc.done[0].Value)
	require.NoError(t, err)
	assert.False(t, done.Delta)
	assert.Equal(t, bulk.StateCompleted, done.State)
	assert.Equal(t, int64(10), done.ProcessedCount())
	assert.Equal(t, testNow, *done.CompletedTime)
	assert.Equal(t, testNow, *done.ProcessingEndTime)
}

func TestAggregator_EmptyScrollCompletes(t *testing.T) {
	store := newMemStore()
	store.statuses["cmd"] = bulk.NewStatus("cmd", bulk.StateScrollingRunning)
	a := newAggregator(t, store)

	delta := bulk.DeltaOf("cmd")
	delta.State = bulk.StateCompleted
	delta.Total = bulk.Int64(0)
	delta.CompletedTime = bulk.Time(testNow)
	sc, err := send(t, a, delta)
	require.NoError(t, err)

	require.Len(t, sc.done, 1)
	assert.Equal(t, bulk.StateCompleted, store.statuses["cmd"].State)
}

func TestAggregator_AbortEmitsDone(t *testing.T) {
	tests := []struct {
		name    string
		current bulk.State
	}{
		{"running", bulk.StateRunning},
		{"scrolling", bulk.StateScrollingRunning},
		{"scheduled", bulk.StateScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.statuses["cmd"] = bulk.NewStatus("cmd", tt.current)
			a := newAggregator(t, store)

			delta := bulk.DeltaOf("cmd")
			delta.State = bulk.StateAborted
			delta.CompletedTime = bulk.Time(testNow)
			sc, err := send(t, a, delta)
			require.NoError(t, err)
			assert.True(t, sc.checkpoint)

			require.Len(t, sc.done, 1)
			done, err := bulk.StatusCodec.Decode(sc.done[0].Value)
			require.NoError(t, err)
			assert.Equal(t, bulk.StateAborted, done.State)
			assert.Equal(t, testNow, *done.CompletedTime)
		})
	}
}

func TestAggregator_RepeatedAbortEmitsDoneOnce(t *testing.T) {
	store := newMemStore()
	store.statuses["cmd"] = bulk.NewStatus("cmd", bulk.StateRunning)
	a := newAggregator(t, store)

	delta := bulk.DeltaOf("cmd")
	delta.State = bulk.StateAborted
	delta.CompletedTime = bulk.Time(testNow)

	first, err := send(t, a, delta)
	require.NoError(t, err)
	require.Len(t, first.done, 1)

	// A second abort request, or the same record redelivered, changes
	// nothing.
	second, err := send(t, a, delta)
	require.NoError(t, err)
	assert.True(t, second.checkpoint)
	assert.Empty(t, second.done)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, bulk.StateAborted, store.statuses["cmd"].State)
}

func TestAggregator_AbortAfterCompletionIgnored(t *testing.T) {
	store := newMemStore()
	completed := bulk.NewStatus("cmd", bulk.StateCompleted)
	completed.Total = bulk.Int64(10)
	completed.Processed = bulk.Int64(10)
	store.statuses["cmd"] = completed
	a := newAggregator(t, store)

	delta := bulk.DeltaOf("cmd")
	delta.State = bulk.StateAborted
	delta.CompletedTime = bulk.Time(testNow)
	sc, err := send(t, a, delta)
	require.NoError(t, err)

	assert.True(t, sc.checkpoint)
	assert.Empty(t, sc.done)
	assert.Zero(t, store.writes)
	assert.Equal(t, bulk.StateCompleted, store.statuses["cmd"].State)
}

func TestAggregator_DeltaAfterTerminalIgnored(t *testing.T) {
	store := newMemStore()
	completed := bulk.NewStatus("cmd", bulk.StateCompleted)
	completed.Total = bulk.Int64(3)
	completed.Processed = bulk.Int64(3)
	store.statuses["cmd"] = completed
	a := newAggregator(t, store)

	late := bulk.DeltaOf("cmd")
	late.State = bulk.StateRunning
	late.Processed = bulk.Int64(1)
	sc, err := send(t, a, late)
	require.NoError(t, err)

	assert.True(t, sc.checkpoint)
	assert.Empty(t, sc.done)
	assert.Zero(t, store.writes)
	assert.Equal(t, bulk.StateCompleted, store.statuses["cmd"].State)
	assert.Equal(t, int64(3), store.statuses["cmd"].ProcessedCount())
}

func TestAggregator_UndecodableRecordDiscarded(t *testing.T) {
	store := newMemStore()
	a := newAggregator(t, store)

	sc := &recordingContext{}
	err := a.ProcessRecord(context.Background(), sc, stream.Record{Key: "x", Value: []byte("{")})
	require.NoError(t, err)
	assert.True(t, sc.checkpoint)
	assert.Zero(t, store.writes)
}
