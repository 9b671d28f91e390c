package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	"github.com/hashicorp-forge/bulkflow/internal/config"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk/aggregator"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk/scroller"
	"github.com/hashicorp-forge/bulkflow/pkg/kafka"
)

type Command struct {
	*base.Command

	flagConfig       string
	flagCreateTopics bool
	flagFromStart    bool
}

func (c *Command) Synopsis() string {
	return "Run the scroller and status stages"
}

func (c *Command) Help() string {
	return `Usage: bulkflow serve [options]

  Run both pipeline stages against Kafka: the scroller consumes the command
  stream, the status aggregator consumes the status stream. Prometheus
  metrics are served on /metrics.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))
	f.ConfigVar(&c.flagConfig)
	f.BoolVar(
		&c.flagCreateTopics, "create-topics", false,
		"Create the command, status, done and action streams before starting.",
	)
	f.BoolVar(
		&c.flagFromStart, "from-start", false,
		"Consume from the beginning of the streams when a consumer group has no offsets.",
	)
	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.serve(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}

func (c *Command) serve(ctx context.Context, cfg *config.Config) error {
	log := c.Log
	brokers := kafka.GetBrokers(cfg)

	admin, err := base.ActionRegistry(cfg)
	if err != nil {
		return fmt.Errorf("error building action registry: %w", err)
	}

	if c.flagCreateTopics || cfg.Kafka.CreateTopics {
		topics := append([]string{cfg.Streams.Command, cfg.Streams.Status, cfg.Streams.Done}, admin.InputStreams()...)
		spec := kafka.TopicSpec{
			Partitions:        int32(cfg.Kafka.Partitions),
			ReplicationFactor: int16(cfg.Kafka.ReplicationFactor),
		}
		if err := kafka.EnsureTopics(ctx, brokers, spec, topics, log); err != nil {
			return fmt.Errorf("error creating topics: %w", err)
		}
	}

	st, err := base.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("error closing status store", "error", err)
		}
	}()

	docs, err := base.OpenDocuments(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := docs.Close(); err != nil {
			log.Warn("error closing document indexes", "error", err)
		}
	}()

	keepAlive, err := cfg.Scroller.KeepAliveDuration()
	if err != nil {
		return err
	}
	txTimeout, err := cfg.Kafka.TransactionTimeoutDuration()
	if err != nil {
		return err
	}
	if !cfg.Scroller.ProduceImmediate {
		log.Info("scroller buffers buckets in a transaction; scrolls must finish within the transaction timeout",
			"transaction_timeout", txTimeout,
		)
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: brokers, Logger: log})
	if err != nil {
		return err
	}
	defer producer.Close()

	sc, err := scroller.New(scroller.Config{
		Admin:            admin,
		Scroll:           base.ScrollRegistry(cfg, docs),
		Store:            st,
		StatusStream:     cfg.Streams.Status,
		ScrollBatchSize:  cfg.Scroller.BatchSize,
		KeepAlive:        keepAlive,
		ProduceImmediate: cfg.Scroller.ProduceImmediate,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("error creating scroller: %w", err)
	}

	agg, err := aggregator.New(aggregator.Config{
		Store:      st,
		DoneStream: cfg.Streams.Done,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("error creating status aggregator: %w", err)
	}

	scrollRunner, err := kafka.NewRunner(kafka.RunnerConfig{
		Brokers:            brokers,
		Topic:              cfg.Streams.Command,
		ConsumerGroup:      kafka.GetConsumerGroup(cfg, sc.Name()),
		TransactionalID:    kafka.GetTransactionalID(cfg, sc.Name()),
		TransactionTimeout: txTimeout,
		ConsumeFromStart:   c.flagFromStart || cfg.Kafka.ConsumeFromStart,
		Processor:          sc,
		Immediate:          producer,
		Logger:             log,
	})
	if err != nil {
		return fmt.Errorf("error creating scroller runner: %w", err)
	}
	defer closeRunner(log, scrollRunner)

	statusRunner, err := kafka.NewRunner(kafka.RunnerConfig{
		Brokers:            brokers,
		Topic:              cfg.Streams.Status,
		ConsumerGroup:      kafka.GetConsumerGroup(cfg, agg.Name()),
		TransactionalID:    kafka.GetTransactionalID(cfg, agg.Name()),
		TransactionTimeout: txTimeout,
		ConsumeFromStart:   c.flagFromStart || cfg.Kafka.ConsumeFromStart,
		Processor:          agg,
		Immediate:          producer,
		Logger:             log,
	})
	if err != nil {
		return fmt.Errorf("error creating status runner: %w", err)
	}
	defer closeRunner(log, statusRunner)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scrollRunner.Run(ctx) })
	g.Go(func() error { return statusRunner.Run(ctx) })
	g.Go(func() error {
		log.Info("serving metrics", "address", cfg.Metrics.Address)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	log.Info("bulkflow started",
		"brokers", brokers,
		"command_stream", cfg.Streams.Command,
		"status_stream", cfg.Streams.Status,
		"actions", admin.Actions(),
	)
	return g.Wait()
}

func closeRunner(log hclog.Logger, r *kafka.Runner) {
	if err := r.Close(); err != nil {
		log.Warn("error closing stage runner", "error", err)
	}
}
