package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
)

type evaluationKey struct {
	asset      domain.Asset
	model      string
	start, end time.Time
}

// EvaluationStore is an in-memory implementation of storage.EvaluationStore.
type EvaluationStore struct {
	mu   sync.RWMutex
	data map[evaluationKey]*domain.EvaluationResult
}

// NewEvaluationStore creates a new in-memory evaluation store.
func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{
		data: make(map[evaluationKey]*domain.EvaluationResult),
	}
}

func keyOf(asset domain.Asset, model string, start, end time.Time) evaluationKey {
	return evaluationKey{asset: asset, model: model, start: start.UTC(), end: end.UTC()}
}

// Insert adds a result. Returns ErrDuplicateKey if the key exists.
func (s *EvaluationStore) Insert(_ context.Context, r *domain.EvaluationResult) error {
	if r == nil || r.Model == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(r.Asset, r.Model, r.Start, r.End)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	c := copyResult(r)
	s.data[key] = &c
	return nil
}

// Get retrieves a result by key. Returns ErrNotFound if not exists.
func (s *EvaluationStore) Get(_ context.Context, asset domain.Asset, model string, start, end time.Time) (*domain.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[keyOf(asset, model, start, end)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := copyResult(r)
	return &c, nil
}

// GetAll retrieves every stored result, ordered by (asset, model, start).
func (s *EvaluationStore) GetAll(_ context.Context) ([]*domain.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.EvaluationResult, 0, len(s.data))
	for _, r := range s.data {
		c := copyResult(r)
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Asset != result[j].Asset {
			return result[i].Asset < result[j].Asset
		}
		if result[i].Model != result[j].Model {
			return result[i].Model < result[j].Model
		}
		return result[i].Start.Before(result[j].Start)
	})

	return result, nil
}

func copyResult(r *domain.EvaluationResult) domain.EvaluationResult {
	c := *r
	c.Points = append([]domain.ForecastPoint(nil), r.Points...)
	return c
}

var _ storage.EvaluationStore = (*EvaluationStore)(nil)
