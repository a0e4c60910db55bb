package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertBulk adds observations atomically. Fails entire batch on duplicate (asset, ts).
// Rows are queued in a single pgx.Batch inside the transaction.
func (s *PriceStore) InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if o == nil || !o.Asset.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO price_observations (asset, ts, open) VALUES ($1, $2, $3)`

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(query, string(o.Asset), o.Timestamp.UTC(), o.Open)
	}

	br := tx.SendBatch(ctx, batch)
	for range obs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert price in bulk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByAsset retrieves all observations for an asset, ordered by timestamp ASC.
func (s *PriceStore) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.PriceObservation, error) {
	query := `
		SELECT asset, ts, open
		FROM price_observations
		WHERE asset = $1
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, string(asset))
	if err != nil {
		return nil, fmt.Errorf("get prices by asset: %w", err)
	}
	defer rows.Close()

	return scanPrices(rows)
}

// GetByTimeRange retrieves observations for an asset within [start, end] (inclusive).
func (s *PriceStore) GetByTimeRange(ctx context.Context, asset domain.Asset, start, end time.Time) ([]*domain.PriceObservation, error) {
	query := `
		SELECT asset, ts, open
		FROM price_observations
		WHERE asset = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, string(asset), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get prices by time range: %w", err)
	}
	defer rows.Close()

	return scanPrices(rows)
}

// scanPrices scans multiple rows into a slice of PriceObservation.
func scanPrices(rows pgx.Rows) ([]*domain.PriceObservation, error) {
	var result []*domain.PriceObservation

	for rows.Next() {
		var o domain.PriceObservation
		var asset string

		if err := rows.Scan(&asset, &o.Timestamp, &o.Open); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}

		o.Asset = domain.Asset(asset)
		o.Timestamp = o.Timestamp.UTC()
		result = append(result, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}

	return result, nil
}
