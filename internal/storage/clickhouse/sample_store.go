package clickhouse

import (
	"context"
	"fmt"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

// SampleStore implements storage.SampleStore using ClickHouse.
type SampleStore struct {
	conn *Conn
}

// NewSampleStore creates a new SampleStore.
func NewSampleStore(conn *Conn) *SampleStore {
	return &SampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SampleStore = (*SampleStore)(nil)

// InsertBulk adds samples. Fails entire batch on duplicate (asset, seq).
func (s *SampleStore) InsertBulk(ctx context.Context, samples []*domain.AlignedSample) error {
	if len(samples) == 0 {
		return nil
	}

	type key struct {
		asset domain.Asset
		seq   int
	}
	seen := make(map[key]struct{}, len(samples))
	for _, smp := range samples {
		if smp == nil || !smp.Asset.IsValid() || smp.Seq < 0 {
			return storage.ErrInvalidInput
		}
		k := key{smp.Asset, smp.Seq}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	bounds := make(map[domain.Asset][2]int)
	for k := range seen {
		b, ok := bounds[k.asset]
		if !ok {
			b = [2]int{k.seq, k.seq}
		}
		b[0] = min(b[0], k.seq)
		b[1] = max(b[1], k.seq)
		bounds[k.asset] = b
	}

	for asset, b := range bounds {
		existing, err := s.seqs(ctx, asset, b[0], b[1])
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, seq := range existing {
			if _, clash := seen[key{asset, seq}]; clash {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO aligned_samples (
			asset, seq, anchor, price, sentiment, authority, lookback, lookahead
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, smp := range samples {
		err = batch.Append(
			string(smp.Asset), uint32(smp.Seq), smp.Anchor.UTC(),
			smp.Price, smp.Sentiment, smp.Authority,
			nonNil(smp.Lookback), nonNil(smp.Lookahead),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAsset retrieves all samples for an asset, ordered by seq ASC.
func (s *SampleStore) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.AlignedSample, error) {
	query := `
		SELECT asset, seq, anchor, price, sentiment, authority, lookback, lookahead
		FROM aligned_samples
		WHERE asset = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, string(asset))
	if err != nil {
		return nil, fmt.Errorf("query by asset: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// GetByTimeRange retrieves samples for an asset anchored within [start, end] (inclusive).
func (s *SampleStore) GetByTimeRange(ctx context.Context, asset domain.Asset, start, end time.Time) ([]*domain.AlignedSample, error) {
	query := `
		SELECT asset, seq, anchor, price, sentiment, authority, lookback, lookahead
		FROM aligned_samples
		WHERE asset = ? AND anchor >= ? AND anchor <= ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, string(asset), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

func (s *SampleStore) seqs(ctx context.Context, asset domain.Asset, lo, hi int) ([]int, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT seq FROM aligned_samples
		WHERE asset = ? AND seq >= ? AND seq <= ?
	`, string(asset), uint32(lo), uint32(hi))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var seq uint32
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, int(seq))
	}
	return out, rows.Err()
}

func scanSamples(rows chRows) ([]*domain.AlignedSample, error) {
	var samples []*domain.AlignedSample

	for rows.Next() {
		var smp domain.AlignedSample
		var asset string
		var seq uint32

		err := rows.Scan(
			&asset, &seq, &smp.Anchor, &smp.Price,
			&smp.Sentiment, &smp.Authority, &smp.Lookback, &smp.Lookahead,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}

		smp.Asset = domain.Asset(asset)
		smp.Seq = int(seq)
		smp.Anchor = smp.Anchor.UTC()
		samples = append(samples, &smp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample rows: %w", err)
	}

	return samples, nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
