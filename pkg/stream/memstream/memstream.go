// Package memstream is an in-process implementation of the stream contract.
// Each stream is a single ordered log; runners keep their own read position
// and committed offset. It backs tests and single-process runs.
package memstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

// Log holds every stream in memory.
type Log struct {
	mu      sync.RWMutex
	streams map[string][]stream.Record
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{streams: make(map[string][]stream.Record)}
}

// Append implements stream.Appender.
func (l *Log) Append(_ context.Context, name string, rec stream.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams[name] = append(l.streams[name], copyRecord(rec))
	return nil
}

func (l *Log) appendAll(name string, recs []stream.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams[name] = append(l.streams[name], recs...)
}

// Records returns a copy of every record on stream name.
func (l *Log) Records(name string) []stream.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]stream.Record, len(l.streams[name]))
	copy(out, l.streams[name])
	return out
}

// Len returns the number of records on stream name.
func (l *Log) Len(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.streams[name])
}

func (l *Log) at(name string, offset int) (stream.Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.streams[name]
	if offset >= len(recs) {
		return stream.Record{}, false
	}
	return recs[offset], true
}

// Transaction returns a processing-attempt transaction writing to l.
func (l *Log) Transaction() stream.Transaction {
	return &transaction{log: l}
}

type pending struct {
	stream string
	rec    stream.Record
}

type transaction struct {
	log        *Log
	active     bool
	buffered   []pending
	checkpoint bool
}

func (t *transaction) Begin(context.Context) error {
	if t.active {
		return fmt.Errorf("attempt already in progress")
	}
	t.active = true
	t.buffered = t.buffered[:0]
	t.checkpoint = false
	return nil
}

func (t *transaction) ProduceRecord(_ context.Context, name string, rec stream.Record) error {
	if !t.active {
		return fmt.Errorf("produce outside of an attempt")
	}
	t.buffered = append(t.buffered, pending{stream: name, rec: copyRecord(rec)})
	return nil
}

func (t *transaction) ProduceRecordImmediate(ctx context.Context, name string, rec stream.Record) error {
	return t.log.Append(ctx, name, rec)
}

func (t *transaction) AskForCheckpoint() {
	t.checkpoint = true
}

func (t *transaction) CheckpointRequested() bool {
	return t.checkpoint
}

func (t *transaction) Commit(context.Context) error {
	if !t.active {
		return fmt.Errorf("commit outside of an attempt")
	}
	// Group by stream while keeping per-stream order.
	byStream := make(map[string][]stream.Record)
	var order []string
	for _, p := range t.buffered {
		if _, seen := byStream[p.stream]; !seen {
			order = append(order, p.stream)
		}
		byStream[p.stream] = append(byStream[p.stream], p.rec)
	}
	for _, name := range order {
		t.log.appendAll(name, byStream[name])
	}
	t.buffered = t.buffered[:0]
	t.active = false
	return nil
}

func (t *transaction) Rollback(context.Context) error {
	t.buffered = t.buffered[:0]
	t.checkpoint = false
	t.active = false
	return nil
}

func copyRecord(rec stream.Record) stream.Record {
	v := make([]byte, len(rec.Value))
	copy(v, rec.Value)
	return stream.Record{Key: rec.Key, Value: v}
}

// Runner feeds one input stream of a Log to a processor.
type Runner struct {
	log       *Log
	input     string
	processor stream.Processor
	tx        stream.Transaction
	logger    hclog.Logger

	position  int
	committed int
}

// NewRunner returns a runner reading input from the start.
func NewRunner(log *Log, input string, p stream.Processor, logger hclog.Logger) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runner{
		log:       log,
		input:     input,
		processor: p,
		tx:        log.Transaction(),
		logger:    logger.Named("memstream-runner"),
	}
}

// Drain processes every record currently available and returns how many were
// processed. It stops at the first processing error; the failed record stays
// uncommitted and is retried by the next call.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, ok := r.log.at(r.input, r.position)
		if !ok {
			return n, nil
		}

		checkpoint, err := stream.Attempt(ctx, r.tx, r.processor, rec)
		if err != nil {
			r.position = r.committed
			return n, err
		}
		r.position++
		n++
		if checkpoint {
			r.committed = r.position
		} else {
			r.logger.Warn("record processed without checkpoint",
				"stream", r.input,
				"processor", r.processor.Name(),
				"offset", r.position-1,
			)
		}
	}
}

// Run drains the input every pollInterval until ctx is done or processing
// fails.
func (r *Runner) Run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Committed returns the committed offset of the input stream.
func (r *Runner) Committed() int {
	return r.committed
}
