package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

type tweetKey struct {
	asset     domain.Asset
	createdAt time.Time
	text      string
}

type storedTweet struct {
	asset domain.Asset
	tweet domain.TweetRecord
}

// TweetStore is an in-memory implementation of storage.TweetStore.
type TweetStore struct {
	mu   sync.RWMutex
	data map[tweetKey]*storedTweet
}

// NewTweetStore creates a new in-memory tweet store.
func NewTweetStore() *TweetStore {
	return &TweetStore{
		data: make(map[tweetKey]*storedTweet),
	}
}

// InsertBulk adds tweets. Fails entire batch on duplicate.
func (s *TweetStore) InsertBulk(_ context.Context, asset domain.Asset, tweets []*domain.TweetRecord) error {
	if len(tweets) == 0 {
		return nil
	}
	if !asset.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[tweetKey]struct{}, len(tweets))
	for _, tw := range tweets {
		if tw == nil {
			return storage.ErrInvalidInput
		}
		key := tweetKey{asset: asset, createdAt: tw.CreatedAt.UTC(), text: tw.Text}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, tw := range tweets {
		key := tweetKey{asset: asset, createdAt: tw.CreatedAt.UTC(), text: tw.Text}
		s.data[key] = &storedTweet{asset: asset, tweet: copyTweet(tw)}
	}

	return nil
}

// GetByAsset retrieves all tweets for an asset, ordered by created_at ASC, text ASC.
func (s *TweetStore) GetByAsset(_ context.Context, asset domain.Asset) ([]*domain.TweetRecord, error) {
	return s.filter(asset, func(*domain.TweetRecord) bool { return true }), nil
}

// GetByTimeRange retrieves tweets for an asset created within [start, end] (inclusive).
func (s *TweetStore) GetByTimeRange(_ context.Context, asset domain.Asset, start, end time.Time) ([]*domain.TweetRecord, error) {
	return s.filter(asset, func(tw *domain.TweetRecord) bool {
		return !tw.CreatedAt.Before(start) && !tw.CreatedAt.After(end)
	}), nil
}

func (s *TweetStore) filter(asset domain.Asset, keep func(*domain.TweetRecord) bool) []*domain.TweetRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TweetRecord
	for _, st := range s.data {
		if st.asset == asset && keep(&st.tweet) {
			tw := copyTweet(&st.tweet)
			result = append(result, &tw)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Text < result[j].Text
	})

	return result
}

// copyTweet deep-copies the sentiment pointer.
func copyTweet(tw *domain.TweetRecord) domain.TweetRecord {
	c := *tw
	if tw.Sentiment != nil {
		v := *tw.Sentiment
		c.Sentiment = &v
	}
	return c
}

var _ storage.TweetStore = (*TweetStore)(nil)
