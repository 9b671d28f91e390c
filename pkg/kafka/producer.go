package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

// ProducerConfig holds configuration for a Producer.
type ProducerConfig struct {
	Brokers []string
	Logger  hclog.Logger
}

// Producer writes records synchronously, one acknowledged write at a time.
// It implements stream.Appender and backs the immediate produce path.
type Producer struct {
	client *kgo.Client
	logger hclog.Logger
}

// NewProducer creates a Producer.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	client, err := kgo.NewClient(producerOpts(cfg.Brokers)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{client: client, logger: cfg.Logger.Named("producer")}, nil
}

// Append implements stream.Appender.
func (p *Producer) Append(ctx context.Context, topic string, rec stream.Record) error {
	if err := p.client.ProduceSync(ctx, toKgo(topic, rec)).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	p.logger.Trace("produced record", "topic", topic, "key", rec.Key)
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}

func producerOpts(brokers []string) []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(brokers...),

		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1 << 20),
	}
}

func toKgo(topic string, rec stream.Record) *kgo.Record {
	r := &kgo.Record{Topic: topic, Value: rec.Value}
	if rec.Key != "" {
		r.Key = []byte(rec.Key)
	}
	return r
}

// DefaultTransactionTimeout bounds one processing attempt on the buffered
// path.
const DefaultTransactionTimeout = time.Minute

// ErrTransactionExpired is returned when an attempt outlived the transaction
// timeout. The broker aborts such transactions on its own, so the attempt
// can only be rolled back and retried.
var ErrTransactionExpired = errors.New("transaction timeout exceeded")

// transaction implements stream.Transaction on a transactional client.
// Buffered records are produced inside a Kafka transaction and become
// visible to read-committed consumers only when it commits.
type transaction struct {
	client    *kgo.Client
	immediate stream.Appender
	timeout   time.Duration

	mu         sync.Mutex
	produceErr error
	checkpoint bool
	begun      time.Time
}

func newTransaction(brokers []string, transactionalID string, timeout time.Duration, immediate stream.Appender) (*transaction, error) {
	if timeout <= 0 {
		timeout = DefaultTransactionTimeout
	}
	opts := append(producerOpts(brokers),
		kgo.TransactionalID(transactionalID),
		kgo.TransactionTimeout(timeout),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactional kafka client: %w", err)
	}
	return &transaction{client: client, immediate: immediate, timeout: timeout}, nil
}

func (t *transaction) Begin(context.Context) error {
	t.mu.Lock()
	t.produceErr = nil
	t.checkpoint = false
	t.begun = time.Now()
	t.mu.Unlock()
	return t.client.BeginTransaction()
}

func (t *transaction) ProduceRecord(ctx context.Context, topic string, rec stream.Record) error {
	t.client.Produce(ctx, toKgo(topic, rec), func(_ *kgo.Record, err error) {
		if err == nil {
			return
		}
		t.mu.Lock()
		if t.produceErr == nil {
			t.produceErr = err
		}
		t.mu.Unlock()
	})
	return nil
}

func (t *transaction) ProduceRecordImmediate(ctx context.Context, topic string, rec stream.Record) error {
	return t.immediate.Append(ctx, topic, rec)
}

func (t *transaction) AskForCheckpoint() {
	t.mu.Lock()
	t.checkpoint = true
	t.mu.Unlock()
}

func (t *transaction) CheckpointRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkpoint
}

func (t *transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	elapsed := time.Since(t.begun)
	t.mu.Unlock()
	if elapsed >= t.timeout {
		return fmt.Errorf("%w: attempt ran %s, timeout is %s", ErrTransactionExpired, elapsed.Round(time.Millisecond), t.timeout)
	}

	if err := t.client.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	t.mu.Lock()
	produceErr := t.produceErr
	t.mu.Unlock()
	if produceErr != nil {
		return fmt.Errorf("failed to produce: %w", produceErr)
	}

	return t.client.EndTransaction(ctx, kgo.TryCommit)
}

func (t *transaction) Rollback(ctx context.Context) error {
	if err := t.client.AbortBufferedRecords(ctx); err != nil {
		return fmt.Errorf("failed to abort buffered records: %w", err)
	}
	return t.client.EndTransaction(ctx, kgo.TryAbort)
}

func (t *transaction) close() {
	t.client.Close()
}
