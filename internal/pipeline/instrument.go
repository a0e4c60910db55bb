package pipeline

import (
	"context"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/observability"
	"social-volatility/internal/storage"
)

// Instrument wraps every store so each call records a DB query metric.
// raw labels the price and tweet stores, derived labels the rest.
func (s Stores) Instrument(m *observability.Metrics, raw, derived string) Stores {
	return Stores{
		Prices:      &meteredPrices{next: s.Prices, q: querier{m, raw}},
		Tweets:      &meteredTweets{next: s.Tweets, q: querier{m, raw}},
		Volatility:  &meteredVolatility{next: s.Volatility, q: querier{m, derived}},
		Samples:     &meteredSamples{next: s.Samples, q: querier{m, derived}},
		Evaluations: &meteredEvaluations{next: s.Evaluations, q: querier{m, derived}},
	}
}

type querier struct {
	metrics  *observability.Metrics
	database string
}

func (q querier) observe(op string, start time.Time, err error) {
	q.metrics.RecordDBQuery(q.database, op, time.Since(start).Seconds(), err)
}

type meteredPrices struct {
	next storage.PriceStore
	q    querier
}

func (s *meteredPrices) InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, obs)
	s.q.observe("prices.insert", start, err)
	return err
}

func (s *meteredPrices) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.PriceObservation, error) {
	start := time.Now()
	out, err := s.next.GetByAsset(ctx, asset)
	s.q.observe("prices.get", start, err)
	return out, err
}

func (s *meteredPrices) GetByTimeRange(ctx context.Context, asset domain.Asset, from, to time.Time) ([]*domain.PriceObservation, error) {
	start := time.Now()
	out, err := s.next.GetByTimeRange(ctx, asset, from, to)
	s.q.observe("prices.range", start, err)
	return out, err
}

type meteredTweets struct {
	next storage.TweetStore
	q    querier
}

func (s *meteredTweets) InsertBulk(ctx context.Context, asset domain.Asset, tweets []*domain.TweetRecord) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, asset, tweets)
	s.q.observe("tweets.insert", start, err)
	return err
}

func (s *meteredTweets) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.TweetRecord, error) {
	start := time.Now()
	out, err := s.next.GetByAsset(ctx, asset)
	s.q.observe("tweets.get", start, err)
	return out, err
}

func (s *meteredTweets) GetByTimeRange(ctx context.Context, asset domain.Asset, from, to time.Time) ([]*domain.TweetRecord, error) {
	start := time.Now()
	out, err := s.next.GetByTimeRange(ctx, asset, from, to)
	s.q.observe("tweets.range", start, err)
	return out, err
}

type meteredVolatility struct {
	next storage.VolatilityStore
	q    querier
}

func (s *meteredVolatility) InsertBulk(ctx context.Context, points []*domain.VolatilityPoint) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, points)
	s.q.observe("volatility.insert", start, err)
	return err
}

func (s *meteredVolatility) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.VolatilityPoint, error) {
	start := time.Now()
	out, err := s.next.GetByAsset(ctx, asset)
	s.q.observe("volatility.get", start, err)
	return out, err
}

type meteredSamples struct {
	next storage.SampleStore
	q    querier
}

func (s *meteredSamples) InsertBulk(ctx context.Context, samples []*domain.AlignedSample) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, samples)
	s.q.observe("samples.insert", start, err)
	return err
}

func (s *meteredSamples) GetByAsset(ctx context.Context, asset domain.Asset) ([]*domain.AlignedSample, error) {
	start := time.Now()
	out, err := s.next.GetByAsset(ctx, asset)
	s.q.observe("samples.get", start, err)
	return out, err
}

func (s *meteredSamples) GetByTimeRange(ctx context.Context, asset domain.Asset, from, to time.Time) ([]*domain.AlignedSample, error) {
	start := time.Now()
	out, err := s.next.GetByTimeRange(ctx, asset, from, to)
	s.q.observe("samples.range", start, err)
	return out, err
}

type meteredEvaluations struct {
	next storage.EvaluationStore
	q    querier
}

func (s *meteredEvaluations) Insert(ctx context.Context, r *domain.EvaluationResult) error {
	start := time.Now()
	err := s.next.Insert(ctx, r)
	s.q.observe("evaluations.insert", start, err)
	return err
}

func (s *meteredEvaluations) Get(ctx context.Context, asset domain.Asset, model string, from, to time.Time) (*domain.EvaluationResult, error) {
	start := time.Now()
	out, err := s.next.Get(ctx, asset, model, from, to)
	s.q.observe("evaluations.get", start, err)
	return out, err
}

func (s *meteredEvaluations) GetAll(ctx context.Context) ([]*domain.EvaluationResult, error) {
	start := time.Now()
	out, err := s.next.GetAll(ctx)
	s.q.observe("evaluations.list", start, err)
	return out, err
}
