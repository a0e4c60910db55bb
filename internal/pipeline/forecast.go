package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"social-volatility/internal/config"
	"social-volatility/internal/domain"
	"social-volatility/internal/evaluation"
	"social-volatility/internal/features"
	"social-volatility/internal/model"
	"social-volatility/internal/observability"
	"social-volatility/internal/storage"
)

// ModelFactory returns a fresh, unfitted regressor.
type ModelFactory func() (model.Regressor, error)

// NewModelFactory builds regressors from mc. A non-nil cache wraps every
// model in a prediction cache.
func NewModelFactory(mc config.ModelConfig, cache model.PredictionCache, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) ModelFactory {
	return func() (model.Regressor, error) {
		m, err := model.New(mc.Kind, mc.Ridge, mc.URL, logger,
			model.WithTimeout(mc.Timeout),
			model.WithRetries(mc.Retries),
		)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			m = model.NewCached(m, cache, ttl, logger).WithLookupHook(metrics.RecordCacheLookup)
		}
		return &instrumented{Regressor: m, metrics: metrics}, nil
	}
}

// instrumented counts Fit and Predict calls per model.
type instrumented struct {
	model.Regressor
	metrics *observability.Metrics
}

func (m *instrumented) Fit(ctx context.Context, X, Y [][]float64) error {
	err := m.Regressor.Fit(ctx, X, Y)
	m.metrics.RecordModelCall(m.Name(), "fit", err)
	return err
}

func (m *instrumented) Predict(ctx context.Context, X [][]float64) ([][]float64, error) {
	out, err := m.Regressor.Predict(ctx, X)
	m.metrics.RecordModelCall(m.Name(), "predict", err)
	return out, err
}

// ForecastOptions selects the train/test split and feature layout.
type ForecastOptions struct {
	Train      domain.DateRange
	Test       domain.DateRange
	FeatureSet features.FeatureSet
	Features   features.Config
	// Baseline also scores the same model on price-only windows.
	Baseline    bool
	Concurrency int
}

// ForecastOptionsFromConfig builds ForecastOptions from the loaded configuration.
func ForecastOptionsFromConfig(cfg *config.Config) (ForecastOptions, error) {
	train, test, err := cfg.EvaluationRanges()
	if err != nil {
		return ForecastOptions{}, err
	}
	fs, err := features.ParseFeatureSet(cfg.Evaluation.FeatureSet)
	if err != nil {
		return ForecastOptions{}, err
	}
	return ForecastOptions{
		Train:       train,
		Test:        test,
		FeatureSet:  fs,
		Features:    cfg.FeatureConfig(),
		Baseline:    cfg.Evaluation.Baseline,
		Concurrency: cfg.Concurrency,
	}, nil
}

// Bounds returns the half-open instant window a date range covers. The end
// date of a range label is inclusive.
func Bounds(r domain.DateRange) (time.Time, time.Time) {
	return r.Start, r.End.Add(24 * time.Hour)
}

// Forecaster trains one model per asset on the train range and scores it on
// the test range.
type Forecaster struct {
	newModel ModelFactory
	store    storage.EvaluationStore
	opts     ForecastOptions
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewForecaster creates a forecaster that persists results to store.
func NewForecaster(newModel ModelFactory, store storage.EvaluationStore, opts ForecastOptions, logger zerolog.Logger) *Forecaster {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Forecaster{
		newModel: newModel,
		store:    store,
		opts:     opts,
		metrics:  observability.DefaultMetrics,
		logger:   logger,
	}
}

// WithMetrics sets the metrics sink.
func (f *Forecaster) WithMetrics(m *observability.Metrics) *Forecaster {
	f.metrics = m
	return f
}

// RunAll forecasts every prepared asset. Assets that cannot be scored are
// returned as errors without stopping the rest.
func (f *Forecaster) RunAll(ctx context.Context, res *Result) ([]*domain.EvaluationResult, []AssetError, error) {
	start := time.Now()

	var (
		mu      sync.Mutex
		results []*domain.EvaluationResult
		failed  []AssetError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for _, ar := range res.Assets {
		g.Go(func() error {
			out, err := f.RunAsset(gctx, ar)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.logger.Warn().Err(err).Str("asset", ar.Asset.String()).Msg("forecast skipped")
				mu.Lock()
				failed = append(failed, AssetError{Asset: ar.Asset, Err: err})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			results = append(results, out...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.metrics.RecordPipelineRun("forecast", "cancelled", time.Since(start).Seconds())
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Asset != results[j].Asset {
			return results[i].Asset < results[j].Asset
		}
		return results[i].Model < results[j].Model
	})
	sort.Slice(failed, func(i, j int) bool { return failed[i].Asset < failed[j].Asset })

	status := "ok"
	if len(results) == 0 {
		status = "failed"
	} else if len(failed) > 0 {
		status = "partial"
	}
	f.metrics.RecordPipelineRun("forecast", status, time.Since(start).Seconds())
	return results, failed, nil
}

// RunAsset trains on samples anchored in the train range and scores every
// step of the test range against the asset's minute series.
func (f *Forecaster) RunAsset(ctx context.Context, ar *AssetResult) ([]*domain.EvaluationResult, error) {
	log := f.logger.With().Str("asset", ar.Asset.String()).Logger()
	trainStart, trainEnd := Bounds(f.opts.Train)
	testStart, testEnd := Bounds(f.opts.Test)

	var train, held []domain.AlignedSample
	for _, s := range ar.Samples {
		if !s.Anchor.Before(trainStart) && s.Anchor.Before(trainEnd) {
			train = append(train, s)
		} else {
			held = append(held, s)
		}
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("forecast %s: no samples in %s: %w", ar.Asset, f.opts.Train.Label(), domain.ErrInsufficientData)
	}

	m, err := f.newModel()
	if err != nil {
		return nil, err
	}
	ev := evaluation.New(evaluation.ConfigFromFeatures(f.opts.Features, f.opts.FeatureSet), log)
	if err := ev.Train(ctx, m, train); err != nil {
		return nil, err
	}
	result, err := ev.Evaluate(ctx, m, testStart, testEnd, held, ar.WindowSeries)
	if err != nil {
		return nil, err
	}
	if err := f.save(ctx, result); err != nil {
		return nil, err
	}
	out := []*domain.EvaluationResult{result}

	if f.opts.Baseline {
		base, err := f.baseline(ctx, ev, ar, trainStart, trainEnd, testStart, testEnd)
		switch {
		case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, model.ErrNoData):
			log.Warn().Err(err).Msg("price-only baseline skipped")
		case err != nil:
			return nil, err
		default:
			out = append(out, base)
		}
	}
	return out, nil
}

func (f *Forecaster) baseline(ctx context.Context, ev *evaluation.Evaluator, ar *AssetResult, trainStart, trainEnd, testStart, testEnd time.Time) (*domain.EvaluationResult, error) {
	windows, err := features.BuildPriceOnly(ar.WindowSeries, f.opts.Features)
	if err != nil {
		return nil, err
	}
	var train, test []features.PriceWindow
	for _, w := range windows {
		switch {
		case !w.Anchor.Before(trainStart) && w.Anchor.Before(trainEnd):
			train = append(train, w)
		case !w.Anchor.Before(testStart) && w.Anchor.Before(testEnd):
			test = append(test, w)
		}
	}

	m, err := f.newModel()
	if err != nil {
		return nil, err
	}
	X, Y := features.PriceOnlyDataset(train)
	if err := m.Fit(ctx, X, Y); err != nil {
		return nil, fmt.Errorf("train %s baseline: %w", m.Name(), err)
	}
	result, err := ev.EvaluateWindows(ctx, m, ar.Asset, test)
	if err != nil {
		return nil, err
	}
	if err := f.save(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Forecaster) save(ctx context.Context, r *domain.EvaluationResult) error {
	f.metrics.RecordEvaluation(r.Asset.String(), r.Model, r.MSE, r.Scored)
	err := f.store.Insert(ctx, r)
	if errors.Is(err, storage.ErrDuplicateKey) {
		f.logger.Debug().Str("asset", r.Asset.String()).Str("model", r.Model).Msg("evaluation already persisted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist evaluation %s %s: %w", r.Asset, r.Model, err)
	}
	return nil
}
