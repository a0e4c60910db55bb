package storage

import (
	"context"
	"time"

	"social-volatility/internal/domain"
)

// PriceStore provides access to price_observations storage.
type PriceStore interface {
	// InsertBulk adds observations atomically. Fails entire batch on duplicate (asset, timestamp).
	InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error

	// GetByAsset retrieves all observations for an asset, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.PriceObservation, error)

	// GetByTimeRange retrieves observations for an asset within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, asset domain.Asset, start, end time.Time) ([]*domain.PriceObservation, error)
}

// TweetStore provides access to scored tweet storage, partitioned by asset.
type TweetStore interface {
	// InsertBulk adds tweets atomically. Fails entire batch on duplicate (asset, created_at, text).
	InsertBulk(ctx context.Context, asset domain.Asset, tweets []*domain.TweetRecord) error

	// GetByAsset retrieves all tweets for an asset, ordered by created_at ASC, text ASC.
	GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.TweetRecord, error)

	// GetByTimeRange retrieves tweets for an asset created within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, asset domain.Asset, start, end time.Time) ([]*domain.TweetRecord, error)
}

// VolatilityStore provides access to volatility_points storage.
type VolatilityStore interface {
	// InsertBulk adds points atomically. Fails entire batch on duplicate (asset, timestamp).
	InsertBulk(ctx context.Context, points []*domain.VolatilityPoint) error

	// GetByAsset retrieves all points for an asset, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.VolatilityPoint, error)
}

// SampleStore provides access to aligned_samples storage.
type SampleStore interface {
	// InsertBulk adds samples atomically. Fails entire batch on duplicate (asset, seq).
	InsertBulk(ctx context.Context, samples []*domain.AlignedSample) error

	// GetByAsset retrieves all samples for an asset, ordered by seq ASC.
	GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.AlignedSample, error)

	// GetByTimeRange retrieves samples for an asset anchored within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, asset domain.Asset, start, end time.Time) ([]*domain.AlignedSample, error)
}

// EvaluationStore provides access to evaluation result storage.
type EvaluationStore interface {
	// Insert adds a result with its points. Returns ErrDuplicateKey if (asset, model, start, end) exists.
	Insert(ctx context.Context, r *domain.EvaluationResult) error

	// Get retrieves a result by key. Returns ErrNotFound if not exists.
	Get(ctx context.Context, asset domain.Asset, model string, start, end time.Time) (*domain.EvaluationResult, error)

	// GetAll retrieves every stored result, ordered by (asset, model, start).
	GetAll(ctx context.Context) ([]*domain.EvaluationResult, error)
}
