package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

type assetTimeKey struct {
	asset domain.Asset
	ts    time.Time
}

func newAssetTimeKey(asset domain.Asset, ts time.Time) assetTimeKey {
	return assetTimeKey{asset: asset, ts: ts.UTC()}
}

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data map[assetTimeKey]*domain.PriceObservation
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[assetTimeKey]*domain.PriceObservation),
	}
}

// InsertBulk adds observations. Fails entire batch on duplicate.
func (s *PriceStore) InsertBulk(_ context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[assetTimeKey]struct{}, len(obs))

	// First pass: check for duplicates (existing + intra-batch)
	for _, o := range obs {
		if o == nil || !o.Asset.IsValid() {
			return storage.ErrInvalidInput
		}
		key := newAssetTimeKey(o.Asset, o.Timestamp)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, o := range obs {
		obsCopy := *o
		s.data[newAssetTimeKey(o.Asset, o.Timestamp)] = &obsCopy
	}

	return nil
}

// GetByAsset retrieves all observations for an asset, ordered by timestamp ASC.
func (s *PriceStore) GetByAsset(_ context.Context, asset domain.Asset) ([]*domain.PriceObservation, error) {
	return s.filter(func(o *domain.PriceObservation) bool { return o.Asset == asset }), nil
}

// GetByTimeRange retrieves observations for an asset within [start, end] (inclusive).
func (s *PriceStore) GetByTimeRange(_ context.Context, asset domain.Asset, start, end time.Time) ([]*domain.PriceObservation, error) {
	return s.filter(func(o *domain.PriceObservation) bool {
		return o.Asset == asset && !o.Timestamp.Before(start) && !o.Timestamp.After(end)
	}), nil
}

func (s *PriceStore) filter(keep func(*domain.PriceObservation) bool) []*domain.PriceObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data {
		if keep(o) {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result
}

var _ storage.PriceStore = (*PriceStore)(nil)
