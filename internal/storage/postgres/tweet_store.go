package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

// TweetStore implements storage.TweetStore using PostgreSQL.
type TweetStore struct {
	pool *Pool
}

// NewTweetStore creates a new TweetStore.
func NewTweetStore(pool *Pool) *TweetStore {
	return &TweetStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TweetStore = (*TweetStore)(nil)

// InsertBulk adds tweets for an asset atomically. Fails entire batch on duplicate
// (asset, created_at, text).
func (s *TweetStore) InsertBulk(ctx context.Context, asset domain.Asset, tweets []*domain.TweetRecord) error {
	if len(tweets) == 0 {
		return nil
	}
	if !asset.IsValid() {
		return storage.ErrInvalidInput
	}
	for _, tw := range tweets {
		if tw == nil {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO tweets (
			asset, created_at, text, retweet_count, favorite_count, follower_count, sentiment
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, tw := range tweets {
		batch.Queue(query,
			string(asset),
			tw.CreatedAt.UTC(),
			tw.Text,
			tw.Engagement.RetweetCount,
			tw.Engagement.FavoriteCount,
			tw.Engagement.FollowerCount,
			tw.Sentiment,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range tweets {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert tweet in bulk: %w", err)
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

// GetByAsset retrieves all tweets for an asset, ordered by created_at ASC, text ASC.
func (s *TweetStore) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.TweetRecord, error) {
	query := `
		SELECT created_at, text, retweet_count, favorite_count, follower_count, sentiment
		FROM tweets
		WHERE asset = $1
		ORDER BY created_at ASC, text ASC
	`

	rows, err := s.pool.Query(ctx, query, string(asset))
	if err != nil {
		return nil, fmt.Errorf("get tweets by asset: %w", err)
	}
	defer rows.Close()

	return scanTweets(rows)
}

// GetByTimeRange retrieves tweets for an asset created within [start, end] (inclusive).
func (s *TweetStore) GetByTimeRange(ctx context.Context, asset domain.Asset, start, end time.Time) ([]*domain.TweetRecord, error) {
	query := `
		SELECT created_at, text, retweet_count, favorite_count, follower_count, sentiment
		FROM tweets
		WHERE asset = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC, text ASC
	`

	rows, err := s.pool.Query(ctx, query, string(asset), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get tweets by time range: %w", err)
	}
	defer rows.Close()

	return scanTweets(rows)
}

// scanTweets scans multiple rows into a slice of TweetRecord.
func scanTweets(rows pgx.Rows) ([]*domain.TweetRecord, error) {
	var result []*domain.TweetRecord

	for rows.Next() {
		var tw domain.TweetRecord

		err := rows.Scan(
			&tw.CreatedAt,
			&tw.Text,
			&tw.Engagement.RetweetCount,
			&tw.Engagement.FavoriteCount,
			&tw.Engagement.FollowerCount,
			&tw.Sentiment,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tweet row: %w", err)
		}

		tw.CreatedAt = tw.CreatedAt.UTC()
		result = append(result, &tw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tweet rows: %w", err)
	}

	return result, nil
}
