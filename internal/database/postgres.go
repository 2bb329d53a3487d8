// Package database provides the PostgreSQL connection used by the engine's
// ledgers, with the schema applied at startup.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"filescout/internal/config"
	"filescout/internal/observability"
)

//go:embed schema.sql
var schema string

// Database is the narrow query surface the repositories depend on.
type Database interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DB implements Database over a pooled sqlx connection.
type DB struct {
	conn    *sqlx.DB
	logger  observability.Logger
	metrics observability.Metrics
}

// New opens a connection pool, verifies it, and applies the schema.
func New(cfg config.DatabaseConfig, logger observability.Logger, metrics observability.Metrics) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	logger.Info("connecting to postgres",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database)

	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, logger: logger, metrics: metrics}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("connected to postgres")
	metrics.IncrementCounter("database.connection.success", nil)
	return db, nil
}

// migrate applies the embedded schema. Statements are idempotent so this is
// safe on every startup.
func (d *DB) migrate(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, schema)
	return err
}

// Get runs a query expected to return one row and scans it into dest.
func (d *DB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.GetContext(ctx, dest, query, args...)
	d.record("get", start, err)
	return err
}

// Select runs a query and scans all rows into dest.
func (d *DB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.SelectContext(ctx, dest, query, args...)
	d.record("select", start, err)
	return err
}

// Execute runs a statement that returns no rows.
func (d *DB) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := d.conn.ExecContext(ctx, query, args...)
	d.record("execute", start, err)
	return result, err
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the pool.
func (d *DB) Close() error {
	d.logger.Info("closing database connection")
	return d.conn.Close()
}

func (d *DB) record(operation string, start time.Time, err error) {
	d.metrics.RecordHistogram("database.operation.duration_seconds",
		time.Since(start).Seconds(),
		map[string]string{"operation": operation})
	if err != nil && err != sql.ErrNoRows {
		d.metrics.IncrementCounter("database.operation.errors",
			map[string]string{"operation": operation})
	}
}

var _ Database = (*DB)(nil)
