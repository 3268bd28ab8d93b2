package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"backtestkit/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_bars (
	snapshot_id      TEXT NOT NULL,
	ingestion_run_id TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	ts               TEXT NOT NULL,
	open             TEXT,
	high             TEXT,
	low              TEXT,
	close            TEXT,
	price            TEXT,
	volume           TEXT,
	PRIMARY KEY (snapshot_id, ingestion_run_id, symbol, timeframe, ts)
);`

// SQLiteStore is the primary snapshot store. Decimal columns are stored as
// TEXT so values survive round trips exactly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the snapshot schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SnapshotExists reports whether any rows exist for the snapshot identity.
func (s *SQLiteStore) SnapshotExists(ctx context.Context, snapshotID, ingestionRunID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM snapshot_bars WHERE snapshot_id = ? AND ingestion_run_id = ? LIMIT 1`,
		snapshotID, ingestionRunID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetBars returns the time-ascending partition for (symbol, timeframe). An
// absent partition yields an empty slice, not an error.
func (s *SQLiteStore) GetBars(ctx context.Context, snapshotID, ingestionRunID, symbol string, timeframe types.Timeframe) ([]types.Bar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, price, volume
		 FROM snapshot_bars
		 WHERE snapshot_id = ? AND ingestion_run_id = ? AND symbol = ? AND timeframe = ?
		 ORDER BY ts ASC`,
		snapshotID, ingestionRunID, symbol, string(timeframe),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var ts string
		var open, high, low, closePx, price, volume *string
		if err := rows.Scan(&ts, &open, &high, &low, &closePx, &price, &volume); err != nil {
			return nil, err
		}
		bar, err := buildBar(symbol, timeframe, ts, open, high, low, closePx, price, volume)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// InsertBars seeds snapshot rows. It exists for fixtures and tests only;
// bound snapshots are never mutated.
func (s *SQLiteStore) InsertBars(ctx context.Context, snapshotID, ingestionRunID string, bars []types.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_bars
		 (snapshot_id, ingestion_run_id, symbol, timeframe, ts, open, high, low, close, price, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, bar := range bars {
		_, err := stmt.ExecContext(ctx,
			snapshotID, ingestionRunID, bar.Symbol, string(bar.Timeframe), bar.SnapshotKey(),
			stringFromNullDecimal(bar.Open),
			stringFromNullDecimal(bar.High),
			stringFromNullDecimal(bar.Low),
			stringFromNullDecimal(bar.Close),
			stringFromNullDecimal(bar.Price),
			stringFromNullDecimal(bar.Volume),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func buildBar(symbol string, timeframe types.Timeframe, ts string, open, high, low, closePx, price, volume *string) (types.Bar, error) {
	timestamp, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return types.Bar{}, fmt.Errorf("%w: bad timestamp %q", ErrBadBarRow, ts)
	}
	bar := types.Bar{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: timestamp.UTC(),
	}
	if bar.Open, err = nullDecimalFromString(open); err != nil {
		return types.Bar{}, err
	}
	if bar.High, err = nullDecimalFromString(high); err != nil {
		return types.Bar{}, err
	}
	if bar.Low, err = nullDecimalFromString(low); err != nil {
		return types.Bar{}, err
	}
	if bar.Close, err = nullDecimalFromString(closePx); err != nil {
		return types.Bar{}, err
	}
	if bar.Price, err = nullDecimalFromString(price); err != nil {
		return types.Bar{}, err
	}
	if bar.Volume, err = nullDecimalFromString(volume); err != nil {
		return types.Bar{}, err
	}
	return bar, nil
}
