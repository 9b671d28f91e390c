package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds configuration for a PostgreSQL connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxIdleConns    int           // Maximum idle connections in pool (default: 10)
	MaxOpenConns    int           // Maximum open connections (default: 25)
	ConnMaxLifetime time.Duration // Maximum connection lifetime (default: 5 minutes)
	ConnMaxIdleTime time.Duration // Maximum connection idle time (default: 10 minutes)
}

// DSN returns the libpq connection string of cfg.
func (cfg Config) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		sslMode,
	)
}

// Connect opens a PostgreSQL connection with pooling configured.
func Connect(cfg Config, log hclog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("connected to database",
			"host", cfg.Host,
			"database", cfg.DBName,
		)
	}
	return db, nil
}

// ConnectSQLite opens a SQLite database at path (":memory:" for an in-memory
// database). SQLite allows a single writer, so the pool is one connection.
func ConnectSQLite(path string, log hclog.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := configurePool(db, Config{MaxIdleConns: 1, MaxOpenConns: 1}); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("opened sqlite database", "path", path)
	}
	return db, nil
}

// Close closes the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.Close()
}

func gormConfig(log hclog.Logger) *gorm.Config {
	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = NewGormLogger(log.Named("gorm")).LogMode(logger.Warn)
	} else {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	return cfg
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 10
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 25
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// PoolStats holds database connection pool statistics.
type PoolStats struct {
	MaxOpenConnections int           // Maximum number of open connections to the database
	OpenConnections    int           // The number of established connections both in use and idle
	InUse              int           // The number of connections currently in use
	Idle               int           // The number of idle connections
	WaitCount          int64         // The total number of connections waited for
	WaitDuration       time.Duration // The total time blocked waiting for a new connection
}

// GetPoolStats returns connection pool statistics from a GORM DB instance.
func GetPoolStats(db *gorm.DB) (*PoolStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	stats := sqlDB.Stats()
	return &PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// SlowQueryThreshold is the latency above which status store queries are
// logged as slow. Status reads and upserts are single-row operations.
const SlowQueryThreshold = 200 * time.Millisecond

// queryLogger routes gorm's query log into the status store's hclog logger.
// A missing status row is an expected outcome (the store reports UNKNOWN),
// so record-not-found is never logged as a failure.
type queryLogger struct {
	log   hclog.Logger
	level logger.LogLevel
	slow  time.Duration
}

// NewGormLogger returns a gorm logger writing to log.
func NewGormLogger(log hclog.Logger) logger.Interface {
	return &queryLogger{log: log, level: logger.Info, slow: SlowQueryThreshold}
}

func (q *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	c := *q
	c.level = level
	return &c
}

func (q *queryLogger) Info(_ context.Context, msg string, data ...interface{}) {
	q.printf(logger.Info, hclog.Info, msg, data)
}

func (q *queryLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	q.printf(logger.Warn, hclog.Warn, msg, data)
}

func (q *queryLogger) Error(_ context.Context, msg string, data ...interface{}) {
	q.printf(logger.Error, hclog.Error, msg, data)
}

// printf handles gorm's printf-style messages (migrations, pool notices).
func (q *queryLogger) printf(enabled logger.LogLevel, to hclog.Level, msg string, data []interface{}) {
	if q.log == nil || q.level < enabled {
		return
	}
	q.log.Log(to, fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.log == nil || q.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	switch {
	case failed && q.level >= logger.Error:
		sql, rows := fc()
		q.log.Error("status store query failed", "error", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case elapsed > q.slow && q.level >= logger.Warn:
		sql, rows := fc()
		q.log.Warn("slow status store query", "elapsed", elapsed, "threshold", q.slow, "rows", rows, "sql", sql)
	case q.level >= logger.Info && q.log.IsTrace():
		sql, rows := fc()
		q.log.Trace("status store query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
