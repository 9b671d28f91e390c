// Package scroller implements the stage that turns bulk commands into
// buckets of document ids on the action streams.
package scroller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/scroll"
	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

const (
	// MaxScrollSize caps both the scroll size and the bucket size.
	MaxScrollSize = 4000

	// DefaultScrollBatchSize is the number of ids fetched per scroll call
	// when the bucket size does not require more.
	DefaultScrollBatchSize = 100

	// Status error messages.
	MsgInvalidQuery   = "Invalid query"
	MsgInvalidCommand = "Invalid command"
)

var (
	// errAborted ends a scroll that observed an ABORTED status.
	errAborted = errors.New("command aborted")

	// errHalt marks failures of the transport or the status store. They are
	// returned to the runner so the attempt rolls back and the command is
	// retried instead of being reported as failed.
	errHalt = errors.New("scroller halted")
)

// Config holds the collaborators and policy of a Scroller.
type Config struct {
	Admin  bulk.Admin
	Scroll scroll.Service
	Store  bulk.StatusStore

	StatusStream string

	// ScrollBatchSize is the number of ids per scroll call; it is raised to
	// the bucket size when that is larger.
	ScrollBatchSize int

	// KeepAlive bounds the idle time of scroll cursors.
	KeepAlive time.Duration

	// ProduceImmediate sends buckets and status deltas immediately instead
	// of buffering them in the processing attempt.
	ProduceImmediate bool

	Logger hclog.Logger
	Now    func() time.Time
}

// Scroller is the command stage. It implements stream.Processor.
type Scroller struct {
	admin  bulk.Admin
	scroll scroll.Service
	store  bulk.StatusStore

	statusStream     string
	scrollBatchSize  int
	keepAlive        time.Duration
	produceImmediate bool

	logger hclog.Logger
	now    func() time.Time
}

// New returns a Scroller.
func New(cfg Config) (*Scroller, error) {
	if cfg.Admin == nil {
		return nil, fmt.Errorf("admin is required")
	}
	if cfg.Scroll == nil {
		return nil, fmt.Errorf("scroll service is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if cfg.StatusStream == "" {
		cfg.StatusStream = bulk.DefaultStatusStream
	}
	if cfg.ScrollBatchSize <= 0 {
		cfg.ScrollBatchSize = DefaultScrollBatchSize
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = scroll.DefaultKeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scroller{
		admin:            cfg.Admin,
		scroll:           cfg.Scroll,
		store:            cfg.Store,
		statusStream:     cfg.StatusStream,
		scrollBatchSize:  cfg.ScrollBatchSize,
		keepAlive:        cfg.KeepAlive,
		produceImmediate: cfg.ProduceImmediate,
		logger:           cfg.Logger.Named("bulk-scroller"),
		now:              cfg.Now,
	}, nil
}

// Name implements stream.Processor.
func (s *Scroller) Name() string {
	return "bulk-scroller"
}

// ResolveSizes returns the scroll size and bucket size to use for a command.
// The scroll size is the scroll batch size raised to the bucket size; both
// are capped at MaxScrollSize, and clamped reports whether the bucket size
// had to be lowered.
func ResolveSizes(bucketSize, scrollBatchSize int) (scrollSize, bucket int, clamped bool) {
	bucket = bucketSize
	if bucket > MaxScrollSize {
		bucket = MaxScrollSize
		clamped = true
	}
	scrollSize = max(scrollBatchSize, bucket)
	if scrollSize > MaxScrollSize {
		scrollSize = MaxScrollSize
	}
	return scrollSize, bucket, clamped
}

// ProcessRecord implements stream.Processor. Every handled outcome asks for a
// checkpoint; only transport and status store failures are returned.
func (s *Scroller) ProcessRecord(ctx context.Context, sc stream.Context, rec stream.Record) error {
	cmd, err := bulk.CommandCodec.Decode(rec.Value)
	if err != nil || cmd.ID == "" {
		s.logger.Error("discarding undecodable command",
			"key", rec.Key,
			"error", err,
		)
		bulk.RecordsDiscarded.WithLabelValues("scroller").Inc()
		sc.AskForCheckpoint()
		return nil
	}

	logger := s.logger.With("command_id", cmd.ID, "action", cmd.Action)

	total, err := s.run(ctx, sc, logger, cmd)
	switch {
	case err == nil:
		outcome := bulk.OutcomeScrolled
		if total == 0 {
			outcome = bulk.OutcomeEmpty
		}
		bulk.CommandsScrolled.WithLabelValues(cmd.Action, outcome).Inc()
		logger.Info("command scrolled", "total", total)

	case errors.Is(err, errHalt):
		return err

	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", errHalt, ctx.Err())

	case errors.Is(err, errAborted):
		bulk.CommandsScrolled.WithLabelValues(cmd.Action, bulk.OutcomeAborted).Inc()
		logger.Info("command aborted during scroll", "scrolled", total)

	case scroll.IsQueryError(err):
		bulk.CommandsScrolled.WithLabelValues(cmd.Action, bulk.OutcomeInvalidQuery).Inc()
		logger.Warn("invalid query", "query", cmd.Query, "error", err)
		if err := s.reportFailure(ctx, sc, cmd.ID, MsgInvalidQuery); err != nil {
			return err
		}

	default:
		bulk.CommandsScrolled.WithLabelValues(cmd.Action, bulk.OutcomeInvalid).Inc()
		logger.Error("invalid command", "error", err)
		if err := s.reportFailure(ctx, sc, cmd.ID, MsgInvalidCommand); err != nil {
			return err
		}
	}

	sc.AskForCheckpoint()
	return nil
}

// run scrolls cmd and returns the number of document ids read.
func (s *Scroller) run(ctx context.Context, sc stream.Context, logger hclog.Logger, cmd *bulk.Command) (int64, error) {
	if err := cmd.Validate(); err != nil {
		return 0, err
	}

	started := bulk.DeltaOf(cmd.ID)
	started.State = bulk.StateScrollingRunning
	started.ScrollStartTime = bulk.Time(s.now())
	if err := s.produceStatus(ctx, sc, started); err != nil {
		return 0, err
	}

	bucketSize := cmd.BucketSize
	if bucketSize <= 0 {
		var err error
		if bucketSize, err = s.admin.BucketSizeFor(cmd.Action); err != nil {
			return 0, err
		}
	}
	actionStream, err := s.admin.InputStreamFor(cmd.Action)
	if err != nil {
		return 0, err
	}

	scrollSize, bucketSize, clamped := ResolveSizes(bucketSize, s.scrollBatchSize)
	if clamped {
		logger.Warn("bucket size exceeds maximum, using maximum",
			"requested", cmd.BucketSize,
			"max", MaxScrollSize,
		)
	}

	cursor, err := s.scroll.Open(ctx, scroll.Request{
		Query:      cmd.Query,
		Username:   cmd.Username,
		Repository: cmd.Repository,
		Size:       scrollSize,
		KeepAlive:  s.keepAlive,
		Strategy:   scroll.Strategy(cmd.Scroller),
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			logger.Warn("failed to close scroll cursor", "error", err)
		}
	}()

	var (
		buffer       []string
		bucketNumber int64
		total        int64
	)
	emit := func(ids []string) error {
		bucketNumber++
		return s.produceBucket(ctx, sc, actionStream, &bulk.Bucket{
			CommandID: cmd.ID,
			Number:    bucketNumber,
			IDs:       ids,
		})
	}

	for cursor.HasNext() {
		aborted, err := s.isAborted(ctx, cmd.ID)
		if err != nil {
			return total, err
		}
		if aborted {
			return total, errAborted
		}

		ids, err := cursor.Next(ctx)
		if err != nil {
			return total, err
		}
		limited := false
		if cmd.QueryLimit > 0 && total+int64(len(ids)) >= cmd.QueryLimit {
			ids = ids[:cmd.QueryLimit-total]
			limited = true
		}
		total += int64(len(ids))
		buffer = append(buffer, ids...)

		for len(buffer) >= bucketSize {
			if err := emit(buffer[:bucketSize]); err != nil {
				return total, err
			}
			buffer = buffer[bucketSize:]
		}
		if limited {
			logger.Debug("query limit reached", "limit", cmd.QueryLimit)
			break
		}
	}
	if len(buffer) > 0 {
		if err := emit(buffer); err != nil {
			return total, err
		}
	}

	bulk.DocumentsScrolled.WithLabelValues(cmd.Action).Add(float64(total))
	bulk.BucketsEmitted.WithLabelValues(cmd.Action).Add(float64(bucketNumber))

	now := s.now()
	done := bulk.DeltaOf(cmd.ID)
	done.ScrollEndTime = bulk.Time(now)
	done.Total = bulk.Int64(total)
	if total == 0 {
		done.State = bulk.StateCompleted
		done.CompletedTime = bulk.Time(now)
	} else {
		done.State = bulk.StateRunning
	}
	if err := s.produceStatus(ctx, sc, done); err != nil {
		return total, err
	}
	return total, nil
}

// reportFailure ends the command as an empty, failed result.
func (s *Scroller) reportFailure(ctx context.Context, sc stream.Context, id, msg string) error {
	now := s.now()
	delta := bulk.DeltaOf(id)
	delta.InError(msg)
	delta.State = bulk.StateCompleted
	delta.Total = bulk.Int64(0)
	delta.ScrollEndTime = bulk.Time(now)
	delta.CompletedTime = bulk.Time(now)
	return s.produceStatus(ctx, sc, delta)
}

func (s *Scroller) isAborted(ctx context.Context, id string) (bool, error) {
	st, err := s.store.GetStatus(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: abort check: %w", errHalt, err)
	}
	return st.State == bulk.StateAborted, nil
}

func (s *Scroller) produceStatus(ctx context.Context, sc stream.Context, delta *bulk.Status) error {
	payload, err := bulk.StatusCodec.Encode(delta)
	if err != nil {
		return fmt.Errorf("%w: %w", errHalt, err)
	}
	return s.produce(ctx, sc, s.statusStream, stream.Record{Key: delta.ID, Value: payload})
}

func (s *Scroller) produceBucket(ctx context.Context, sc stream.Context, actionStream string, b *bulk.Bucket) error {
	payload, err := bulk.BucketCodec.Encode(b)
	if err != nil {
		return fmt.Errorf("%w: %w", errHalt, err)
	}
	return s.produce(ctx, sc, actionStream, stream.Record{Key: b.Key(), Value: payload})
}

func (s *Scroller) produce(ctx context.Context, sc stream.Context, name string, rec stream.Record) error {
	var err error
	if s.produceImmediate {
		err = sc.ProduceRecordImmediate(ctx, name, rec)
	} else {
		err = sc.ProduceRecord(ctx, name, rec)
	}
	if err != nil {
		return fmt.Errorf("%w: produce to %s: %w", errHalt, name, err)
	}
	return nil
}
