package database

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PoolConfig holds database connection pool configuration.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns sensible default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxConns:        25,
		MinConns:        5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// NewPool creates a new PostgreSQL connection pool from application configuration.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_connections", cfg.MaxConnections).
		Int("min_connections", cfg.MinConnections).
		Msg("creating database connection pool")

	pool, err := Open(ctx, cfg.ConnectionString(), &PoolConfig{
		MaxConns:        int32(cfg.MaxConnections),
		MinConns:        int32(cfg.MinConnections),
		ConnMaxLifetime: time.Duration(cfg.MaxConnLifetime) * time.Second,
		ConnMaxIdleTime: 30 * time.Minute,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("database connection pool created successfully")

	return pool, nil
}

// Open creates a connection pool for connString and verifies connectivity.
// A nil config uses DefaultPoolConfig.
func Open(ctx context.Context, connString string, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
