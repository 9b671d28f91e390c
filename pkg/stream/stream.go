// Package stream defines the record transport contract the bulk stages are
// written against: keyed records on named streams, a buffered and an
// immediate produce path, explicit checkpoints, and processing attempts with
// begin/commit/rollback controlled by the transport.
package stream

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Record is a keyed payload on a named stream. Records with the same key land
// on the same partition and keep their order.
type Record struct {
	Key   string
	Value []byte
}

// Appender writes records outside of any processing attempt.
type Appender interface {
	Append(ctx context.Context, stream string, rec Record) error
}

// Context is what a Processor sees during one processing attempt.
type Context interface {
	// ProduceRecord buffers rec; it becomes visible only if the attempt
	// commits.
	ProduceRecord(ctx context.Context, stream string, rec Record) error

	// ProduceRecordImmediate writes rec right away. It is not undone if the
	// attempt rolls back.
	ProduceRecordImmediate(ctx context.Context, stream string, rec Record) error

	// AskForCheckpoint requests the input offset to be committed once the
	// attempt commits.
	AskForCheckpoint()
}

// Processor handles one input record at a time.
type Processor interface {
	Name() string

	// ProcessRecord handles rec. A returned error rolls back the attempt and
	// stops the stage: processors turn recoverable conditions into output
	// records and only return errors that must not be checkpointed past.
	ProcessRecord(ctx context.Context, sc Context, rec Record) error
}

// Transaction is the transport side of a processing attempt.
type Transaction interface {
	Context

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// CheckpointRequested reports whether AskForCheckpoint was called since
	// the last Begin.
	CheckpointRequested() bool
}

// Attempt runs p over rec inside tx. Buffered records are committed only if
// p succeeds. It returns whether the input offset should be committed.
func Attempt(ctx context.Context, tx Transaction, p Processor, rec Record) (bool, error) {
	if err := tx.Begin(ctx); err != nil {
		return false, fmt.Errorf("%s: failed to begin attempt: %w", p.Name(), err)
	}

	if err := p.ProcessRecord(ctx, tx, rec); err != nil {
		var result error = fmt.Errorf("%s: failed to process record %q: %w", p.Name(), rec.Key, err)
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			result = multierror.Append(result, fmt.Errorf("rollback: %w", rbErr))
		}
		return false, result
	}

	if err := tx.Commit(ctx); err != nil {
		var result error = fmt.Errorf("%s: failed to commit attempt: %w", p.Name(), err)
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			result = multierror.Append(result, fmt.Errorf("rollback: %w", rbErr))
		}
		return false, result
	}

	return tx.CheckpointRequested(), nil
}
