package clickhouse

import (
	"context"
	"fmt"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

// VolatilityStore implements storage.VolatilityStore using ClickHouse.
type VolatilityStore struct {
	conn *Conn
}

// NewVolatilityStore creates a new VolatilityStore.
func NewVolatilityStore(conn *Conn) *VolatilityStore {
	return &VolatilityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolatilityStore = (*VolatilityStore)(nil)

// InsertBulk adds points. Fails entire batch on duplicate (asset, ts).
// MergeTree does not enforce keys, so existing rows are checked first with
// one range query per asset in the batch.
func (s *VolatilityStore) InsertBulk(ctx context.Context, points []*domain.VolatilityPoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct {
		asset domain.Asset
		ts    int64
	}
	seen := make(map[key]struct{}, len(points))
	bounds := make(map[domain.Asset][2]time.Time)
	for _, p := range points {
		if p == nil || !p.Asset.IsValid() {
			return storage.ErrInvalidInput
		}
		k := key{p.Asset, p.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		b, ok := bounds[p.Asset]
		if !ok {
			b = [2]time.Time{p.Timestamp, p.Timestamp}
		}
		if p.Timestamp.Before(b[0]) {
			b[0] = p.Timestamp
		}
		if p.Timestamp.After(b[1]) {
			b[1] = p.Timestamp
		}
		bounds[p.Asset] = b
	}

	for asset, b := range bounds {
		existing, err := s.timestamps(ctx, asset, b[0], b[1])
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, ts := range existing {
			if _, clash := seen[key{asset, ts.UnixMilli()}]; clash {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO volatility_points (asset, ts, price, log_return, volatility)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(string(p.Asset), p.Timestamp.UTC(), p.Price, p.Return, p.Volatility)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAsset retrieves all points for an asset, ordered by timestamp ASC.
func (s *VolatilityStore) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.VolatilityPoint, error) {
	query := `
		SELECT asset, ts, price, log_return, volatility
		FROM volatility_points
		WHERE asset = ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, string(asset))
	if err != nil {
		return nil, fmt.Errorf("query by asset: %w", err)
	}
	defer rows.Close()

	return scanVolatility(rows)
}

func (s *VolatilityStore) timestamps(ctx context.Context, asset domain.Asset, start, end time.Time) ([]time.Time, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ts FROM volatility_points
		WHERE asset = ? AND ts >= ? AND ts <= ?
	`, string(asset), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func scanVolatility(rows chRows) ([]*domain.VolatilityPoint, error) {
	var points []*domain.VolatilityPoint

	for rows.Next() {
		var p domain.VolatilityPoint
		var asset string

		if err := rows.Scan(&asset, &p.Timestamp, &p.Price, &p.Return, &p.Volatility); err != nil {
			return nil, fmt.Errorf("scan volatility row: %w", err)
		}

		p.Asset = domain.Asset(asset)
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volatility rows: %w", err)
	}

	return points, nil
}
