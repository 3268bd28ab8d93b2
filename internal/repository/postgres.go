package repository

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"backtestkit/types"
)

// PostgresStore reads snapshot partitions from Postgres. It implements the
// same interface as SQLiteStore for deployments where ingestion lands
// snapshots in a shared relational store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore and verifies connectivity.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// SnapshotExists reports whether any rows exist for the snapshot identity.
func (s *PostgresStore) SnapshotExists(ctx context.Context, snapshotID, ingestionRunID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM snapshot_bars WHERE snapshot_id = $1 AND ingestion_run_id = $2 LIMIT 1`,
		snapshotID, ingestionRunID,
	).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetBars returns the time-ascending partition for (symbol, timeframe).
func (s *PostgresStore) GetBars(ctx context.Context, snapshotID, ingestionRunID, symbol string, timeframe types.Timeframe) ([]types.Bar, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, open, high, low, close, price, volume
		 FROM snapshot_bars
		 WHERE snapshot_id = $1 AND ingestion_run_id = $2 AND symbol = $3 AND timeframe = $4
		 ORDER BY ts ASC`,
		snapshotID, ingestionRunID, symbol, string(timeframe),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var ts time.Time
		var open, high, low, closePx, price, volume decimal.NullDecimal
		if err := rows.Scan(&ts, &open, &high, &low, &closePx, &price, &volume); err != nil {
			return nil, err
		}
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts.UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Price:     price,
			Volume:    volume,
		})
	}
	return bars, rows.Err()
}
