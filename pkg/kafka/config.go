package kafka

import (
	"os"
	"strings"

	"github.com/hashicorp-forge/bulkflow/internal/config"
)

const (
	DefaultBroker          = "localhost:19092"
	DefaultConsumerGroup   = "bulkflow"
	DefaultTransactionalID = "bulkflow"
)

// GetBrokers returns the broker addresses.
// It checks the environment first, then falls back to config, then default.
func GetBrokers(cfg *config.Config) []string {
	if brokers := os.Getenv("BULK_BROKERS"); brokers != "" {
		return splitList(brokers)
	}

	if cfg != nil && cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		return cfg.Kafka.Brokers
	}

	return []string{DefaultBroker}
}

// GetConsumerGroup returns the consumer group for a pipeline stage.
// The prefix is resolved env, then config, then default.
func GetConsumerGroup(cfg *config.Config, stage string) string {
	group := DefaultConsumerGroup
	if g := os.Getenv("BULK_CONSUMER_GROUP"); g != "" {
		group = g
	} else if cfg != nil && cfg.Kafka != nil && cfg.Kafka.ConsumerGroup != "" {
		group = cfg.Kafka.ConsumerGroup
	}
	return group + "-" + stage
}

// GetTransactionalID returns the transactional producer id for a stage.
// BULK_INSTANCE_ID, when set, keeps ids distinct across replicas.
func GetTransactionalID(cfg *config.Config, stage string) string {
	prefix := DefaultTransactionalID
	if cfg != nil && cfg.Kafka != nil && cfg.Kafka.TransactionalID != "" {
		prefix = cfg.Kafka.TransactionalID
	}
	id := prefix + "-" + stage
	if instance := os.Getenv("BULK_INSTANCE_ID"); instance != "" {
		id += "-" + instance
	}
	return id
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
