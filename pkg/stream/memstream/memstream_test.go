package memstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoProcessor copies every input record to out (buffered) and to audit
// (immediate), failing on keys listed in failOn.
type echoProcessor struct {
	failOn       map[string]bool
	noCheckpoint bool
	seen         []string
}

func (p *echoProcessor) Name() string { return "echo" }

func (p *echoProcessor) ProcessRecord(ctx context.Context, sc stream.Context, rec stream.Record) error {
	p.seen = append(p.seen, rec.Key)
	if err := sc.ProduceRecordImmediate(ctx, "audit", rec); err != nil {
		return err
	}
	if err := sc.ProduceRecord(ctx, "out", rec); err != nil {
		return err
	}
	if p.failOn[rec.Key] {
		return errors.New("boom")
	}
	if !p.noCheckpoint {
		sc.AskForCheckpoint()
	}
	return nil
}

func appendKeys(t *testing.T, log *Log, name string, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, log.Append(context.Background(), name, stream.Record{Key: k, Value: []byte(k)}))
	}
}

func keys(recs []stream.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Key)
	}
	return out
}

func TestRunner_DrainCommitsEachRecord(t *testing.T) {
	log := NewLog()
	appendKeys(t, log, "in", "a", "b", "c")

	p := &echoProcessor{}
	r := NewRunner(log, "in", p, nil)

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, r.Committed())
	assert.Equal(t, []string{"a", "b", "c"}, keys(log.Records("out")))
	assert.Equal(t, []string{"a", "b", "c"}, keys(log.Records("audit")))

	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_FailedAttemptRollsBackBufferedOnly(t *testing.T) {
	log := NewLog()
	appendKeys(t, log, "in", "a", "b", "c")

	p := &echoProcessor{failOn: map[string]bool{"b": true}}
	r := NewRunner(log, "in", p, nil)

	n, err := r.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Committed())

	assert.Equal(t, []string{"a"}, keys(log.Records("out")))
	// Immediate writes of the failed attempt stay.
	assert.Equal(t, []string{"a", "b"}, keys(log.Records("audit")))

	// The failed record is retried on the next drain.
	p.failOn = nil
	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "c"}, keys(log.Records("out")))
	assert.Equal(t, []string{"a", "b", "b", "c"}, keys(log.Records("audit")))
	assert.Equal(t, []string{"a", "b", "b", "c"}, p.seen)
}

func TestRunner_NoCheckpointKeepsCommittedOffset(t *testing.T) {
	log := NewLog()
	appendKeys(t, log, "in", "a", "b")

	r := NewRunner(log, "in", &echoProcessor{noCheckpoint: true}, nil)
	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, r.Committed())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	log := NewLog()
	appendKeys(t, log, "in", "a")

	r := NewRunner(log, "in", &echoProcessor{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return log.Len("out") == 1 }, time.Second, 5*time.Millisecond)
	appendKeys(t, log, "in", "b")
	require.Eventually(t, func() bool { return log.Len("out") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestTransaction_ProduceOutsideAttempt(t *testing.T) {
	tx := NewLog().Transaction()
	err := tx.ProduceRecord(context.Background(), "out", stream.Record{Key: "a"})
	assert.Error(t, err)
}
