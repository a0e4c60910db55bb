package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

type sampleKey struct {
	asset domain.Asset
	seq   int
}

// SampleStore is an in-memory implementation of storage.SampleStore.
type SampleStore struct {
	mu   sync.RWMutex
	data map[sampleKey]*domain.AlignedSample
}

// NewSampleStore creates a new in-memory sample store.
func NewSampleStore() *SampleStore {
	return &SampleStore{
		data: make(map[sampleKey]*domain.AlignedSample),
	}
}

// InsertBulk adds samples. Fails entire batch on duplicate (asset, seq).
func (s *SampleStore) InsertBulk(_ context.Context, samples []*domain.AlignedSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[sampleKey]struct{}, len(samples))
	for _, smp := range samples {
		if smp == nil || !smp.Asset.IsValid() || smp.Seq < 0 {
			return storage.ErrInvalidInput
		}
		key := sampleKey{asset: smp.Asset, seq: smp.Seq}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, smp := range samples {
		c := copySample(smp)
		s.data[sampleKey{asset: smp.Asset, seq: smp.Seq}] = &c
	}

	return nil
}

// GetByAsset retrieves all samples for an asset, ordered by seq ASC.
func (s *SampleStore) GetByAsset(_ context.Context, asset domain.Asset) ([]*domain.AlignedSample, error) {
	return s.filter(func(smp *domain.AlignedSample) bool { return smp.Asset == asset }), nil
}

// GetByTimeRange retrieves samples for an asset anchored within [start, end] (inclusive).
func (s *SampleStore) GetByTimeRange(_ context.Context, asset domain.Asset, start, end time.Time) ([]*domain.AlignedSample, error) {
	return s.filter(func(smp *domain.AlignedSample) bool {
		return smp.Asset == asset && !smp.Anchor.Before(start) && !smp.Anchor.After(end)
	}), nil
}

func (s *SampleStore) filter(keep func(*domain.AlignedSample) bool) []*domain.AlignedSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AlignedSample
	for _, smp := range s.data {
		if keep(smp) {
			c := copySample(smp)
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result
}

// copySample deep-copies the windows and sentiment so callers cannot mutate stored rows.
func copySample(smp *domain.AlignedSample) domain.AlignedSample {
	c := *smp
	if smp.Sentiment != nil {
		v := *smp.Sentiment
		c.Sentiment = &v
	}
	c.Lookback = append([]float64(nil), smp.Lookback...)
	c.Lookahead = append([]float64(nil), smp.Lookahead...)
	return c
}

var _ storage.SampleStore = (*SampleStore)(nil)
