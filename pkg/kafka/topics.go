package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// TopicSpec describes the topics EnsureTopics creates.
type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
}

// EnsureTopics creates every missing topic. Existing topics are left alone.
// Requests are retried with exponential backoff while brokers come up.
func EnsureTopics(ctx context.Context, brokers []string, spec TopicSpec, topics []string, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	admin, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	req := kmsg.NewPtrCreateTopicsRequest()
	for _, name := range topics {
		topic := kmsg.NewCreateTopicsRequestTopic()
		topic.Topic = name
		topic.NumPartitions = spec.Partitions
		topic.ReplicationFactor = spec.ReplicationFactor
		req.Topics = append(req.Topics, topic)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		resp, err := req.RequestWith(ctx, admin)
		if err != nil {
			logger.Warn("create topics request failed, retrying", "error", err)
			return err
		}
		for _, t := range resp.Topics {
			err := kerr.ErrorForCode(t.ErrorCode)
			switch {
			case err == nil:
				logger.Info("created topic", "topic", t.Topic)
			case err == kerr.TopicAlreadyExists:
				logger.Debug("topic exists", "topic", t.Topic)
			default:
				return backoff.Permanent(fmt.Errorf("failed to create topic %s: %w", t.Topic, err))
			}
		}
		return nil
	}, backoff.WithContext(b, ctx))
}
