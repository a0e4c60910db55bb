package memory

import (
	"context"
	"sort"
	"sync"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

// VolatilityStore is an in-memory implementation of storage.VolatilityStore.
type VolatilityStore struct {
	mu   sync.RWMutex
	data map[assetTimeKey]*domain.VolatilityPoint
}

// NewVolatilityStore creates a new in-memory volatility store.
func NewVolatilityStore() *VolatilityStore {
	return &VolatilityStore{
		data: make(map[assetTimeKey]*domain.VolatilityPoint),
	}
}

// InsertBulk adds points. Fails entire batch on duplicate.
func (s *VolatilityStore) InsertBulk(_ context.Context, points []*domain.VolatilityPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[assetTimeKey]struct{}, len(points))
	for _, p := range points {
		if p == nil || !p.Asset.IsValid() {
			return storage.ErrInvalidInput
		}
		key := newAssetTimeKey(p.Asset, p.Timestamp)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		pointCopy := copyVolatility(p)
		s.data[newAssetTimeKey(p.Asset, p.Timestamp)] = &pointCopy
	}

	return nil
}

// GetByAsset retrieves all points for an asset, ordered by timestamp ASC.
func (s *VolatilityStore) GetByAsset(_ context.Context, asset domain.Asset) ([]*domain.VolatilityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VolatilityPoint
	for _, p := range s.data {
		if p.Asset == asset {
			pointCopy := copyVolatility(p)
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

func copyVolatility(p *domain.VolatilityPoint) domain.VolatilityPoint {
	c := *p
	if p.Return != nil {
		v := *p.Return
		c.Return = &v
	}
	if p.Volatility != nil {
		v := *p.Volatility
		c.Volatility = &v
	}
	return c
}

var _ storage.VolatilityStore = (*VolatilityStore)(nil)
