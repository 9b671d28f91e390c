// Package aggregator implements the stage that merges status records into
// the authoritative status of each command and publishes final statuses.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

// Config holds the collaborators of an Aggregator.
type Config struct {
	Store      bulk.StatusStore
	DoneStream string

	Logger hclog.Logger
	Now    func() time.Time
}

// Aggregator is the status stage. It implements stream.Processor.
type Aggregator struct {
	store      bulk.StatusStore
	doneStream string

	logger hclog.Logger
	now    func() time.Time
}

// New returns an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if cfg.DoneStream == "" {
		cfg.DoneStream = bulk.DefaultDoneStream
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Aggregator{
		store:      cfg.Store,
		doneStream: cfg.DoneStream,
		logger:     cfg.Logger.Named("bulk-status"),
		now:        cfg.Now,
	}, nil
}

// Name implements stream.Processor.
func (a *Aggregator) Name() string {
	return "bulk-status"
}

// ProcessRecord implements stream.Processor.
//
// A delta for a command the store does not know is returned as an error
// wrapping bulk.ErrInconsistentStatus and is not checkpointed: the store has
// lost state and merging would fabricate it.
func (a *Aggregator) ProcessRecord(ctx context.Context, sc stream.Context, rec stream.Record) error {
	incoming, err := bulk.StatusCodec.Decode(rec.Value)
	if err != nil || incoming.ID == "" {
		a.logger.Error("discarding undecodable status",
			"key", rec.Key,
			"error", err,
		)
		bulk.RecordsDiscarded.WithLabelValues("status").Inc()
		sc.AskForCheckpoint()
		return nil
	}

	status := incoming
	if incoming.Delta {
		current, err := a.store.GetStatus(ctx, incoming.ID)
		if err != nil {
			return fmt.Errorf("failed to read status %s: %w", incoming.ID, err)
		}
		if current.IsUnknown() {
			return fmt.Errorf("%w: command %s", bulk.ErrInconsistentStatus, incoming.ID)
		}

		applied, err := current.Merge(incoming, a.now())
		if err != nil {
			return fmt.Errorf("failed to merge status %s: %w", incoming.ID, err)
		}
		if !applied {
			bulk.StatusMerged.WithLabelValues("ignored").Inc()
			a.logger.Warn("ignoring delta for terminated command",
				"command_id", incoming.ID,
				"state", current.State,
				"delta_state", incoming.State,
			)
			sc.AskForCheckpoint()
			return nil
		}
		status = current
		bulk.StatusMerged.WithLabelValues("delta").Inc()
	} else {
		bulk.StatusMerged.WithLabelValues("full").Inc()
	}

	payload, err := a.store.SetStatus(ctx, status)
	if err != nil {
		return fmt.Errorf("failed to store status %s: %w", status.ID, err)
	}

	if status.State == bulk.StateCompleted || (incoming.Delta && incoming.State == bulk.StateAborted) {
		if err := sc.ProduceRecord(ctx, a.doneStream, stream.Record{Key: status.ID, Value: payload}); err != nil {
			return fmt.Errorf("failed to publish final status %s: %w", status.ID, err)
		}
		bulk.DoneEmitted.WithLabelValues(status.State.String()).Inc()
		a.logger.Info("command done",
			"command_id", status.ID,
			"state", status.State,
			"total", status.TotalCount(),
			"processed", status.ProcessedCount(),
		)
	}

	sc.AskForCheckpoint()
	return nil
}
