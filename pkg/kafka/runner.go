package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

// RunnerConfig holds configuration for a Runner.
type RunnerConfig struct {
	Brokers []string

	// Topic is the stage's input stream.
	Topic         string
	ConsumerGroup string

	// TransactionalID identifies the stage's transactional producer. It
	// must be stable for one replica and unique across replicas.
	TransactionalID string

	// TransactionTimeout bounds one processing attempt, defaulting to
	// DefaultTransactionTimeout. An attempt that runs longer is rolled back
	// and halts the stage.
	TransactionTimeout time.Duration

	// Consumer offset configuration (optional, defaults to AtEnd for new
	// consumer groups).
	ConsumeFromStart bool

	Processor stream.Processor

	// Immediate serves ProduceRecordImmediate. A Producer is created when
	// nil.
	Immediate stream.Appender

	Logger hclog.Logger
}

// Runner feeds one input topic through a stream.Processor. Each record is a
// processing attempt: buffered output is written in a Kafka transaction, and
// the input offset is committed only after the transaction commits and the
// processor asked for a checkpoint.
type Runner struct {
	consumer  *kgo.Client
	tx        *transaction
	owned     *Producer
	processor stream.Processor
	topic     string
	logger    hclog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = DefaultConsumerGroup + "-" + cfg.Processor.Name()
	}
	if cfg.TransactionalID == "" {
		cfg.TransactionalID = DefaultTransactionalID + "-" + cfg.Processor.Name()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	logger := cfg.Logger.Named(cfg.Processor.Name())

	var owned *Producer
	if cfg.Immediate == nil {
		p, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers, Logger: logger})
		if err != nil {
			return nil, err
		}
		owned = p
		cfg.Immediate = p
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.ConsumeFromStart {
		offset = kgo.NewOffset().AtStart()
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),

		kgo.ConsumeResetOffset(offset),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),

		// Offsets are committed per record once its attempt succeeds.
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),

		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(5<<20),
	)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	tx, err := newTransaction(cfg.Brokers, cfg.TransactionalID, cfg.TransactionTimeout, cfg.Immediate)
	if err != nil {
		consumer.Close()
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}

	return &Runner{
		consumer:  consumer,
		tx:        tx,
		owned:     owned,
		processor: cfg.Processor,
		topic:     cfg.Topic,
		logger:    logger,
	}, nil
}

// Run polls until ctx is cancelled or an attempt fails. A failed attempt
// halts the stage with the record uncommitted, so it is redelivered after a
// restart.
func (r *Runner) Run(ctx context.Context) error {
	group, _ := r.consumer.GroupMetadata()
	r.logger.Info("starting stage runner", "topic", r.topic, "consumer_group", group)

	for {
		fetches := r.consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			r.logger.Info("stage runner stopped")
			return nil
		}
		if err := ctx.Err(); err != nil {
			r.consumer.AllowRebalance()
			r.logger.Info("stage runner stopped by context")
			return err
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			r.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		if err := r.process(ctx, fetches); err != nil {
			r.consumer.AllowRebalance()
			return err
		}
		r.consumer.AllowRebalance()
	}
}

func (r *Runner) process(ctx context.Context, fetches kgo.Fetches) error {
	iter := fetches.RecordIter()
	for !iter.Done() {
		record := iter.Next()

		checkpoint, err := stream.Attempt(ctx, r.tx, r.processor, stream.Record{
			Key:   string(record.Key),
			Value: record.Value,
		})
		if err != nil {
			r.logger.Error("processing attempt failed, halting",
				"partition", record.Partition,
				"offset", record.Offset,
				"error", err,
			)
			if errors.Is(err, ErrTransactionExpired) {
				r.logger.Error("attempt exceeded the transaction timeout; raise kafka.transaction_timeout or enable scroller.produce_immediate",
					"timeout", r.tx.timeout,
				)
			}
			return err
		}

		if !checkpoint {
			r.logger.Warn("record processed without checkpoint",
				"partition", record.Partition,
				"offset", record.Offset,
			)
			continue
		}

		if err := r.consumer.CommitRecords(ctx, record); err != nil {
			return fmt.Errorf("failed to commit offset %d on partition %d: %w", record.Offset, record.Partition, err)
		}
	}
	return nil
}

// Close releases the clients. Records buffered by an unfinished attempt are
// aborted.
func (r *Runner) Close() error {
	var result error

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, kgo.ErrNotInTransaction) {
		result = multierror.Append(result, err)
	}

	r.consumer.Close()
	r.tx.close()
	if r.owned != nil {
		r.owned.Close()
	}
	return result
}
