package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "bulkflow.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.DefaultBucketSize)
	assert.Equal(t, []string{"redpanda-0:9092", "redpanda-1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Kafka.Partitions)
	assert.Equal(t, 1, cfg.Kafka.ReplicationFactor)
	assert.True(t, cfg.Kafka.CreateTopics)
	txTimeout, err := cfg.Kafka.TransactionTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, txTimeout)

	assert.Equal(t, "cmd", cfg.Streams.Command)
	assert.Equal(t, "bulk-status", cfg.Streams.Status)
	assert.Equal(t, "bulk-done", cfg.Streams.Done)

	assert.Equal(t, 200, cfg.Scroller.BatchSize)
	assert.True(t, cfg.Scroller.ProduceImmediate)
	keepAlive, err := cfg.Scroller.KeepAliveDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, keepAlive)

	assert.Equal(t, "sqlite", cfg.StatusStore.Driver)
	assert.Equal(t, []string{"default", "archive"}, cfg.Bleve.Repositories)
	assert.Equal(t, DefaultMetricsAddress, cfg.Metrics.Address)

	require.Len(t, cfg.Actions, 2)
	assert.Equal(t, "setProperties", cfg.Actions[0].Name)
	assert.Equal(t, 20, cfg.Actions[0].BucketSize)
	assert.Equal(t, "trash-workers", cfg.Actions[1].InputStream)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 100, cfg.DefaultBucketSize)
	assert.Equal(t, "bulk-command", cfg.Streams.Command)
	assert.Equal(t, DefaultScrollBatchSize, cfg.Scroller.BatchSize)
	assert.Equal(t, "document", cfg.Scroller.DefaultStrategy)
	assert.Equal(t, "pebble", cfg.StatusStore.Driver)
	assert.NotEmpty(t, cfg.StatusStore.PebblePath)

	keepAlive, err := cfg.Scroller.KeepAliveDuration()
	require.NoError(t, err)
	assert.Equal(t, DefaultKeepAlive, keepAlive)

	txTimeout, err := cfg.Kafka.TransactionTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, DefaultTransactionTimeout, txTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad keep alive", func(c *Config) { c.Scroller.KeepAlive = "soon" }},
		{"bad transaction timeout", func(c *Config) { c.Kafka.TransactionTimeout = "later" }},
		{"negative transaction timeout", func(c *Config) { c.Kafka.TransactionTimeout = "-1s" }},
		{"bad strategy", func(c *Config) { c.Scroller.DefaultStrategy = "random" }},
		{"unknown driver", func(c *Config) { c.StatusStore.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.StatusStore.Driver = "sqlite" }},
		{"postgres without block", func(c *Config) { c.StatusStore.Driver = "postgres" }},
		{"duplicate action", func(c *Config) {
			c.Actions = []*Action{{Name: "trash"}, {Name: "trash"}}
		}},
		{"negative bucket size", func(c *Config) {
			c.Actions = []*Action{{Name: "trash", BucketSize: -1}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "loud"`), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
