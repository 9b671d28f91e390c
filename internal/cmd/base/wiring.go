package base

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/internal/config"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk/store"
	"github.com/hashicorp-forge/bulkflow/pkg/database"
	"github.com/hashicorp-forge/bulkflow/pkg/kafka"
	"github.com/hashicorp-forge/bulkflow/pkg/scroll"
	blevescroll "github.com/hashicorp-forge/bulkflow/pkg/scroll/bleve"
)

// ActionRegistry builds the action registry from the action blocks.
func ActionRegistry(cfg *config.Config) (*bulk.ActionRegistry, error) {
	actions := make([]bulk.Action, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actions = append(actions, bulk.Action{
			Name:        a.Name,
			BucketSize:  a.BucketSize,
			BatchSize:   a.BatchSize,
			InputStream: a.InputStream,
		})
	}
	return bulk.NewActionRegistry(cfg.DefaultBucketSize, actions...)
}

// StoreConfig maps the status_store block to a store.Config.
func StoreConfig(cfg *config.Config) store.Config {
	sc := store.Config{
		Driver:     store.Driver(cfg.StatusStore.Driver),
		SQLitePath: cfg.StatusStore.SQLitePath,
		PebblePath: cfg.StatusStore.PebblePath,
	}
	if pg := cfg.StatusStore.Postgres; pg != nil {
		sc.Postgres = database.Config{
			Host:         pg.Host,
			Port:         pg.Port,
			User:         pg.User,
			Password:     pg.Password,
			DBName:       pg.DBName,
			SSLMode:      pg.SSLMode,
			MaxIdleConns: pg.MaxIdleConns,
			MaxOpenConns: pg.MaxOpenConns,
		}
	}
	return sc
}

// OpenStore opens the configured status store.
func OpenStore(cfg *config.Config, log hclog.Logger) (store.Store, error) {
	st, err := store.Open(StoreConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("error opening status store: %w", err)
	}
	return st, nil
}

// OpenDocuments opens the bleve repositories.
func OpenDocuments(cfg *config.Config, log hclog.Logger) (*blevescroll.Service, error) {
	docs, err := blevescroll.New(blevescroll.Config{
		IndexPath:    cfg.Bleve.IndexPath,
		Repositories: cfg.Bleve.Repositories,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening document indexes: %w", err)
	}
	return docs, nil
}

// ScrollRegistry registers the document and static strategies.
func ScrollRegistry(cfg *config.Config, docs scroll.Service) *scroll.Registry {
	r := scroll.NewRegistry(scroll.Strategy(cfg.Scroller.DefaultStrategy))
	r.Register(scroll.StrategyDocument, docs)
	r.Register(scroll.StrategyStatic, scroll.Static{})
	return r
}

// NewService builds the bulk service facade over a Kafka producer. The
// caller closes the returned producer and store.
func NewService(cfg *config.Config, log hclog.Logger) (*bulk.Service, *kafka.Producer, store.Store, error) {
	admin, err := ActionRegistry(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := OpenStore(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: kafka.GetBrokers(cfg), Logger: log})
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	svc, err := bulk.NewService(bulk.ServiceConfig{
		Store:         st,
		Admin:         admin,
		Appender:      producer,
		CommandStream: cfg.Streams.Command,
		StatusStream:  cfg.Streams.Status,
		Logger:        log,
	})
	if err != nil {
		producer.Close()
		_ = st.Close()
		return nil, nil, nil, err
	}
	return svc, producer, st, nil
}
