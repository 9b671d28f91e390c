// Package config loads bulkflow's HCL configuration.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	DefaultLogLevel        = "info"
	DefaultScrollBatchSize = 100
	DefaultKeepAlive       = 60 * time.Second

	DefaultTransactionTimeout = time.Minute
	DefaultMetricsAddress  = ":9464"
)

// Config is the root of a bulkflow configuration file.
type Config struct {
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional"`

	// DefaultBucketSize is used by actions that do not set their own.
	DefaultBucketSize int `hcl:"default_bucket_size,optional"`

	Kafka       *Kafka       `hcl:"kafka,block"`
	Streams     *Streams     `hcl:"streams,block"`
	Scroller    *Scroller    `hcl:"scroller,block"`
	StatusStore *StatusStore `hcl:"status_store,block"`
	Bleve       *Bleve       `hcl:"bleve,block"`
	Metrics     *Metrics     `hcl:"metrics,block"`
	Actions     []*Action    `hcl:"action,block"`
}

// Kafka configures the broker connection.
type Kafka struct {
	Brokers []string `hcl:"brokers,optional"`

	// ConsumerGroup prefixes the per-stage consumer groups.
	ConsumerGroup string `hcl:"consumer_group,optional"`

	// TransactionalID prefixes the per-stage transactional producer ids.
	TransactionalID string `hcl:"transactional_id,optional"`

	Partitions        int  `hcl:"partitions,optional"`
	ReplicationFactor int  `hcl:"replication_factor,optional"`
	CreateTopics      bool `hcl:"create_topics,optional"`
	ConsumeFromStart  bool `hcl:"consume_from_start,optional"`

	// TransactionTimeout bounds one buffered processing attempt. A scroll
	// that runs longer can never commit; such deployments need a larger
	// timeout (up to the broker's transaction.max.timeout.ms) or
	// scroller.produce_immediate.
	TransactionTimeout string `hcl:"transaction_timeout,optional"`
}

// TransactionTimeoutDuration parses TransactionTimeout, returning the default
// when unset.
func (k *Kafka) TransactionTimeoutDuration() (time.Duration, error) {
	if k == nil || k.TransactionTimeout == "" {
		return DefaultTransactionTimeout, nil
	}
	d, err := time.ParseDuration(k.TransactionTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction_timeout %q: %w", k.TransactionTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("transaction_timeout must be positive, got %s", d)
	}
	return d, nil
}

// Streams names the pipeline's own streams.
type Streams struct {
	Command string `hcl:"command,optional"`
	Status  string `hcl:"status,optional"`
	Done    string `hcl:"done,optional"`
}

// Scroller configures the scroller stage.
type Scroller struct {
	BatchSize        int    `hcl:"batch_size,optional"`
	KeepAlive        string `hcl:"keep_alive,optional"`
	DefaultStrategy  string `hcl:"default_strategy,optional"`
	ProduceImmediate bool   `hcl:"produce_immediate,optional"`
}

// KeepAliveDuration parses KeepAlive, returning the default when unset.
func (s *Scroller) KeepAliveDuration() (time.Duration, error) {
	if s == nil || s.KeepAlive == "" {
		return DefaultKeepAlive, nil
	}
	d, err := time.ParseDuration(s.KeepAlive)
	if err != nil {
		return 0, fmt.Errorf("invalid keep_alive %q: %w", s.KeepAlive, err)
	}
	return d, nil
}

// StatusStore selects and configures the status store backend.
type StatusStore struct {
	Driver     string    `hcl:"driver,optional"`
	SQLitePath string    `hcl:"sqlite_path,optional"`
	PebblePath string    `hcl:"pebble_path,optional"`
	Postgres   *Postgres `hcl:"postgres,block"`
}

// Postgres holds the connection settings for the postgres driver.
type Postgres struct {
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	MaxIdleConns int `hcl:"max_idle_conns,optional"`
	MaxOpenConns int `hcl:"max_open_conns,optional"`
}

// Bleve configures the document scroll indexes.
type Bleve struct {
	IndexPath    string   `hcl:"index_path,optional"`
	Repositories []string `hcl:"repositories,optional"`
}

// Metrics configures the prometheus endpoint served by serve.
type Metrics struct {
	Address string `hcl:"address,optional"`
}

// Action declares a bulk action and its bucketing.
type Action struct {
	Name        string `hcl:"name,label"`
	BucketSize  int    `hcl:"bucket_size,optional"`
	BatchSize   int    `hcl:"batch_size,optional"`
	InputStream string `hcl:"input_stream,optional"`
}

// Load decodes the file at path, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset blocks and fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DefaultBucketSize <= 0 {
		c.DefaultBucketSize = 100
	}

	if c.Kafka == nil {
		c.Kafka = &Kafka{}
	}
	if c.Kafka.Partitions <= 0 {
		c.Kafka.Partitions = 1
	}
	if c.Kafka.ReplicationFactor <= 0 {
		c.Kafka.ReplicationFactor = 1
	}

	if c.Streams == nil {
		c.Streams = &Streams{}
	}
	if c.Streams.Command == "" {
		c.Streams.Command = "bulk-command"
	}
	if c.Streams.Status == "" {
		c.Streams.Status = "bulk-status"
	}
	if c.Streams.Done == "" {
		c.Streams.Done = "bulk-done"
	}

	if c.Scroller == nil {
		c.Scroller = &Scroller{}
	}
	if c.Scroller.BatchSize <= 0 {
		c.Scroller.BatchSize = DefaultScrollBatchSize
	}
	if c.Scroller.DefaultStrategy == "" {
		c.Scroller.DefaultStrategy = "document"
	}

	if c.StatusStore == nil {
		c.StatusStore = &StatusStore{}
	}
	if c.StatusStore.Driver == "" {
		c.StatusStore.Driver = "pebble"
	}
	if c.StatusStore.Driver == "pebble" && c.StatusStore.PebblePath == "" {
		c.StatusStore.PebblePath = "bulkflow-status"
	}

	if c.Bleve == nil {
		c.Bleve = &Bleve{}
	}
	if c.Bleve.IndexPath == "" {
		c.Bleve.IndexPath = "bulkflow-index"
	}

	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.DefaultBucketSize, validation.Min(1)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(c.Scroller,
		validation.Field(&c.Scroller.BatchSize, validation.Min(1)),
		validation.Field(&c.Scroller.DefaultStrategy, validation.In("document", "static")),
	); err != nil {
		return fmt.Errorf("scroller: %w", err)
	}
	if _, err := c.Scroller.KeepAliveDuration(); err != nil {
		return fmt.Errorf("scroller: %w", err)
	}

	if _, err := c.Kafka.TransactionTimeoutDuration(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	if err := validation.ValidateStruct(c.StatusStore,
		validation.Field(&c.StatusStore.Driver, validation.Required, validation.In("postgres", "sqlite", "pebble")),
		validation.Field(&c.StatusStore.SQLitePath, validation.When(c.StatusStore.Driver == "sqlite", validation.Required)),
		validation.Field(&c.StatusStore.Postgres, validation.When(c.StatusStore.Driver == "postgres", validation.Required)),
	); err != nil {
		return fmt.Errorf("status_store: %w", err)
	}

	if err := validation.ValidateStruct(c.Streams,
		validation.Field(&c.Streams.Command, validation.Required),
		validation.Field(&c.Streams.Status, validation.Required),
		validation.Field(&c.Streams.Done, validation.Required),
	); err != nil {
		return fmt.Errorf("streams: %w", err)
	}

	seen := make(map[string]bool, len(c.Actions))
	for _, a := range c.Actions {
		if seen[a.Name] {
			return fmt.Errorf("action %q declared more than once", a.Name)
		}
		seen[a.Name] = true
		if err := validation.ValidateStruct(a,
			validation.Field(&a.Name, validation.Required),
			validation.Field(&a.BucketSize, validation.Min(0)),
			validation.Field(&a.BatchSize, validation.Min(0)),
		); err != nil {
			return fmt.Errorf("action %q: %w", a.Name, err)
		}
	}

	return nil
}
