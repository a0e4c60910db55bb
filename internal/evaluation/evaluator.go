// Package evaluation scores a fitted regressor on a held-out time range.
package evaluation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
	"social-volatility/internal/features"
	"social-volatility/internal/lookup"
	"social-volatility/internal/model"
)

// Config mirrors the window layout the samples were built with.
type Config struct {
	Step       time.Duration
	Lookahead  int
	Policy     features.StepPolicy
	Target     features.Target
	FeatureSet features.FeatureSet
}

// ConfigFromFeatures derives an evaluation config from a feature config.
func ConfigFromFeatures(fc features.Config, fs features.FeatureSet) Config {
	return Config{Step: fc.Step, Lookahead: fc.Lookahead, Policy: fc.Policy, Target: fc.Target, FeatureSet: fs}
}

// Evaluator computes the forecast MSE of a model.
type Evaluator struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an evaluator.
func New(cfg Config, logger zerolog.Logger) *Evaluator {
	return &Evaluator{cfg: cfg, logger: logger}
}

// Train fits m on samples using the configured feature set and target.
func (e *Evaluator) Train(ctx context.Context, m model.Regressor, samples []domain.AlignedSample) error {
	if len(samples) == 0 {
		return fmt.Errorf("train %s: %w", m.Name(), domain.ErrInsufficientData)
	}
	X, Y := features.Dataset(samples, e.cfg.FeatureSet, e.cfg.Target)
	if err := m.Fit(ctx, X, Y); err != nil {
		return fmt.Errorf("train %s: %w", m.Name(), err)
	}
	return nil
}

// Evaluate scores m on every step timestamp d in [start, end).
//
// The forecast for d averages, over every sample whose k-th lookahead
// (1 <= k <= H) lands on d, the model's k-th output mapped back to a price.
// Under CalendarStep the k-th lookahead of anchor a is a+k·s; under RowStep
// it is the k-th row after a in reference, which must then be the series
// the windows were read from. The actual is reference's price at d.
// Timestamps with no forecast or no actual are skipped; MSE is taken over
// the rest.
func (e *Evaluator) Evaluate(ctx context.Context, m model.Regressor, start, end time.Time, samples []domain.AlignedSample, reference *lookup.Series) (*domain.EvaluationResult, error) {
	if reference == nil {
		return nil, fmt.Errorf("evaluate: %w", lookup.ErrNoPriceData)
	}
	if _, _, err := reference.Range(); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", m.Name(), err)
	}
	if e.cfg.Step <= 0 || e.cfg.Lookahead < 1 {
		return nil, fmt.Errorf("invalid evaluation config: step %s, lookahead %d", e.cfg.Step, e.cfg.Lookahead)
	}

	candidates := e.candidates(samples, start, end, reference)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Anchor.Before(candidates[j].Anchor)
	})

	type forecast struct {
		sum  float64
		rows int
	}
	forecasts := make(map[time.Time]*forecast)
	if len(candidates) > 0 {
		X := make([][]float64, len(candidates))
		for i, s := range candidates {
			X[i] = features.Vector(s, e.cfg.FeatureSet)
		}
		predictions, err := m.Predict(ctx, X)
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		if len(predictions) != len(candidates) {
			return nil, fmt.Errorf("predict: %w: %d rows for %d inputs", model.ErrShape, len(predictions), len(candidates))
		}
		for i, s := range candidates {
			for k := 1; k <= e.cfg.Lookahead && k <= len(predictions[i]); k++ {
				d, ok := e.lookaheadAt(reference, s.Anchor, k)
				if !ok {
					break
				}
				f := forecasts[d]
				if f == nil {
					f = &forecast{}
					forecasts[d] = f
				}
				f.sum += e.cfg.Target.Invert(s.Price, predictions[i][k-1])
				f.rows++
			}
		}
	}

	result := &domain.EvaluationResult{
		Asset: reference.Asset(),
		Model: m.Name(),
		Start: start,
		End:   end,
	}
	if len(samples) > 0 {
		result.Asset = samples[0].Asset
	}

	sumSq := 0.0
	for d := start; d.Before(end); d = d.Add(e.cfg.Step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := forecasts[d.UTC()]
		actual, ok := reference.At(d)
		if f == nil || !ok {
			result.Skipped++
			continue
		}

		predicted := f.sum / float64(f.rows)
		diff := predicted - actual
		sumSq += diff * diff
		result.Points = append(result.Points, domain.ForecastPoint{
			Timestamp: d,
			Predicted: predicted,
			Actual:    actual,
			Rows:      f.rows,
		})
		result.Scored++
	}

	if result.Scored == 0 {
		return nil, fmt.Errorf("evaluate %s %s..%s: %w", result.Asset, start.Format(time.DateTime), end.Format(time.DateTime), domain.ErrInsufficientData)
	}
	result.MSE = sumSq / float64(result.Scored)

	e.logger.Info().
		Str("asset", result.Asset.String()).
		Str("model", result.Model).
		Str("policy", string(e.cfg.Policy)).
		Int("scored", result.Scored).
		Int("skipped", result.Skipped).
		Float64("mse", result.MSE).
		Msg("evaluation complete")

	return result, nil
}

// candidates returns the samples that can forecast some d in [start, end).
func (e *Evaluator) candidates(samples []domain.AlignedSample, start, end time.Time, reference *lookup.Series) []domain.AlignedSample {
	horizon := time.Duration(e.cfg.Lookahead) * e.cfg.Step
	var out []domain.AlignedSample
	for _, s := range samples {
		if !s.Anchor.Before(end) {
			continue
		}
		if e.cfg.Policy != features.RowStep {
			if !s.Anchor.Before(start.Add(-horizon)) {
				out = append(out, s)
			}
			continue
		}
		idx, ok := reference.IndexOf(s.Anchor)
		if !ok {
			continue
		}
		lastRow := min(idx+e.cfg.Lookahead, reference.Len()-1)
		if !reference.Observation(lastRow).Timestamp.Before(start) {
			out = append(out, s)
		}
	}
	return out
}

// lookaheadAt returns the timestamp of the k-th lookahead of anchor.
func (e *Evaluator) lookaheadAt(reference *lookup.Series, anchor time.Time, k int) (time.Time, bool) {
	if e.cfg.Policy != features.RowStep {
		return anchor.Add(time.Duration(k) * e.cfg.Step).UTC(), true
	}
	idx, ok := reference.IndexOf(anchor)
	if !ok || idx+k >= reference.Len() {
		return time.Time{}, false
	}
	return reference.Observation(idx + k).Timestamp.UTC(), true
}

// EvaluateWindows scores a model fitted on the price-only baseline.
func (e *Evaluator) EvaluateWindows(ctx context.Context, m model.Regressor, asset domain.Asset, windows []features.PriceWindow) (*domain.EvaluationResult, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("evaluate %s baseline: %w", asset, domain.ErrInsufficientData)
	}
	X, Y := features.PriceOnlyDataset(windows)
	pred, err := m.Predict(ctx, X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	result := &domain.EvaluationResult{
		Asset: asset,
		Model: m.Name() + "+price_only",
		Start: windows[0].Anchor,
		End:   windows[len(windows)-1].Anchor,
	}
	if len(pred) != len(windows) {
		return nil, fmt.Errorf("predict: %w: %d rows for %d windows", model.ErrShape, len(pred), len(windows))
	}
	sumSq := 0.0
	for i, w := range windows {
		if len(pred[i]) == 0 {
			return nil, fmt.Errorf("predict %s baseline row %d: %w", asset, i, model.ErrShape)
		}
		diff := pred[i][0] - Y[i][0]
		sumSq += diff * diff
		result.Points = append(result.Points, domain.ForecastPoint{Timestamp: w.Anchor, Predicted: pred[i][0], Actual: w.Y, Rows: 1})
	}
	result.Scored = len(windows)
	result.MSE = sumSq / float64(result.Scored)
	return result, nil
}
