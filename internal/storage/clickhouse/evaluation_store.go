package clickhouse

import (
	"context"
	"fmt"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

// EvaluationStore implements storage.EvaluationStore using ClickHouse.
// Results live in evaluation_results, per-timestamp points in forecast_points.
type EvaluationStore struct {
	conn *Conn
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(conn *Conn) *EvaluationStore {
	return &EvaluationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EvaluationStore = (*EvaluationStore)(nil)

// Insert adds a result with its points. Returns ErrDuplicateKey if
// (asset, model, start, end) exists.
func (s *EvaluationStore) Insert(ctx context.Context, r *domain.EvaluationResult) error {
	if r == nil || r.Model == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, r.Asset, r.Model, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	// Points first: a result row without its points would read as complete.
	if len(r.Points) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO forecast_points (
				asset, model, start_ts, end_ts, ts, predicted, actual, sample_rows
			)
		`)
		if err != nil {
			return fmt.Errorf("prepare points batch: %w", err)
		}
		for _, p := range r.Points {
			err = batch.Append(
				string(r.Asset), r.Model, r.Start.UTC(), r.End.UTC(),
				p.Timestamp.UTC(), p.Predicted, p.Actual, uint32(p.Rows),
			)
			if err != nil {
				return fmt.Errorf("append point: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send points batch: %w", err)
		}
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO evaluation_results (
			asset, model, start_ts, end_ts, mse, scored, skipped
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(r.Asset), r.Model, r.Start.UTC(), r.End.UTC(),
		r.MSE, uint32(r.Scored), uint32(r.Skipped),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation result: %w", err)
	}

	return nil
}

// Get retrieves a result by key. Returns ErrNotFound if not exists.
func (s *EvaluationStore) Get(ctx context.Context, asset domain.Asset, model string, start, end time.Time) (*domain.EvaluationResult, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT asset, model, start_ts, end_ts, mse, scored, skipped
		FROM evaluation_results FINAL
		WHERE asset = ? AND model = ? AND start_ts = ? AND end_ts = ?
	`, string(asset), model, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query evaluation result: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, storage.ErrNotFound
	}

	r := results[0]
	if r.Points, err = s.points(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetAll retrieves every stored result, ordered by (asset, model, start).
func (s *EvaluationStore) GetAll(ctx context.Context) ([]*domain.EvaluationResult, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT asset, model, start_ts, end_ts, mse, scored, skipped
		FROM evaluation_results FINAL
		ORDER BY asset ASC, model ASC, start_ts ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query evaluation results: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Points, err = s.points(ctx, r); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *EvaluationStore) exists(ctx context.Context, asset domain.Asset, model string, start, end time.Time) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM evaluation_results
		WHERE asset = ? AND model = ? AND start_ts = ? AND end_ts = ?
	`, string(asset), model, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *EvaluationStore) points(ctx context.Context, r *domain.EvaluationResult) ([]domain.ForecastPoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ts, predicted, actual, sample_rows
		FROM forecast_points FINAL
		WHERE asset = ? AND model = ? AND start_ts = ? AND end_ts = ?
		ORDER BY ts ASC
	`, string(r.Asset), r.Model, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("query forecast points: %w", err)
	}
	defer rows.Close()

	var out []domain.ForecastPoint
	for rows.Next() {
		var p domain.ForecastPoint
		var n uint32
		if err := rows.Scan(&p.Timestamp, &p.Predicted, &p.Actual, &n); err != nil {
			return nil, fmt.Errorf("scan forecast point: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		p.Rows = int(n)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast points: %w", err)
	}
	return out, nil
}

func scanResults(rows chRows) ([]*domain.EvaluationResult, error) {
	var results []*domain.EvaluationResult

	for rows.Next() {
		var r domain.EvaluationResult
		var asset string
		var scored, skipped uint32

		err := rows.Scan(&asset, &r.Model, &r.Start, &r.End, &r.MSE, &scored, &skipped)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}

		r.Asset = domain.Asset(asset)
		r.Start = r.Start.UTC()
		r.End = r.End.UTC()
		r.Scored = int(scored)
		r.Skipped = int(skipped)
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}

	return results, nil
}
