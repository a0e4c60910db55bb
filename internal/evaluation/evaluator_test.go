package evaluation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
	"social-volatility/internal/features"
	"social-volatility/internal/lookup"
	"social-volatility/internal/model"
)

var h0 = time.Date(2022, 3, 28, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time { return h0.Add(time.Duration(hour) * time.Hour) }

// stepModel predicts price+k for horizon k, reading the price from the last input column.
type stepModel struct{ fitted bool }

func (m *stepModel) Name() string { return "step" }

func (m *stepModel) Fit(context.Context, [][]float64, [][]float64) error {
	m.fitted = true
	return nil
}

func (m *stepModel) Predict(_ context.Context, X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		p := row[len(row)-1]
		out[i] = []float64{p + 1, p + 2}
	}
	return out, nil
}

func reference(prices map[int]float64) *lookup.Series {
	var obs []domain.PriceObservation
	for h := 0; h < 24; h++ {
		if p, ok := prices[h]; ok {
			obs = append(obs, domain.PriceObservation{Asset: domain.AssetBTC, Timestamp: at(h), Open: p})
		}
	}
	return lookup.NewSeries(obs, zerolog.Nop())
}

func sample(hour int, price float64) domain.AlignedSample {
	s := 0.1
	return domain.AlignedSample{
		Asset:     domain.AssetBTC,
		Anchor:    at(hour),
		Price:     price,
		Sentiment: &s,
		Lookback:  []float64{price},
		Lookahead: []float64{price + 1, price + 2},
	}
}

func newEvaluator() *Evaluator {
	return New(Config{
		Step:       time.Hour,
		Lookahead:  2,
		Target:     features.TargetAbsolute,
		FeatureSet: features.SentimentPrice,
	}, zerolog.Nop())
}

func linearPrices() map[int]float64 {
	m := make(map[int]float64)
	for h := 0; h < 24; h++ {
		m[h] = 100 + float64(h)
	}
	return m
}

func TestEvaluate_PerfectForecast(t *testing.T) {
	samples := []domain.AlignedSample{sample(0, 100), sample(1, 101)}

	res, err := newEvaluator().Evaluate(context.Background(), &stepModel{}, at(1), at(4), samples, reference(linearPrices()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Scored != 3 || res.Skipped != 0 {
		t.Fatalf("expected 3 scored, got %d scored %d skipped", res.Scored, res.Skipped)
	}
	if res.MSE != 0 {
		t.Errorf("expected zero MSE, got %v", res.MSE)
	}
	// d = 2h averages the k=2 output of anchor 0h and the k=1 output of anchor 1h.
	if res.Points[1].Rows != 2 || res.Points[1].Predicted != 102 {
		t.Errorf("unexpected point %+v", res.Points[1])
	}
	if res.Asset != domain.AssetBTC || res.Model != "step" {
		t.Errorf("unexpected identity %s/%s", res.Asset, res.Model)
	}
}

func TestEvaluate_MSE(t *testing.T) {
	prices := linearPrices()
	prices[2] = 104 // forecast is 102, error 2
	samples := []domain.AlignedSample{sample(0, 100), sample(1, 101)}

	res, err := newEvaluator().Evaluate(context.Background(), &stepModel{}, at(1), at(4), samples, reference(prices))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.MSE-4.0/3.0) > 1e-12 {
		t.Errorf("expected MSE 4/3, got %v", res.MSE)
	}
}

func TestEvaluate_MissingActualExcludedFromDenominator(t *testing.T) {
	prices := linearPrices()
	delete(prices, 3)
	prices[2] = 104
	samples := []domain.AlignedSample{sample(0, 100), sample(1, 101)}

	res, err := newEvaluator().Evaluate(context.Background(), &stepModel{}, at(1), at(4), samples, reference(prices))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Scored != 2 || res.Skipped != 1 {
		t.Fatalf("expected 2 scored and 1 skipped, got %d/%d", res.Scored, res.Skipped)
	}
	if math.Abs(res.MSE-2.0) > 1e-12 {
		t.Errorf("expected MSE 2, got %v", res.MSE)
	}
}

func TestEvaluate_NoAnchorsInRange(t *testing.T) {
	samples := []domain.AlignedSample{sample(0, 100)}

	_, err := newEvaluator().Evaluate(context.Background(), &stepModel{}, at(10), at(12), samples, reference(linearPrices()))
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEvaluate_RelativeTarget(t *testing.T) {
	e := New(Config{Step: time.Hour, Lookahead: 2, Target: features.TargetRelative, FeatureSet: features.SentimentOnly}, zerolog.Nop())
	samples := []domain.AlignedSample{sample(0, 100)}

	// The relative model is trained on (future-current)/future; a mean model
	// over one sample returns exactly that target.
	m := model.NewMean()
	if err := e.Train(context.Background(), m, samples); err != nil {
		t.Fatalf("train: %v", err)
	}
	res, err := e.Evaluate(context.Background(), m, at(1), at(3), samples, reference(linearPrices()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Scored != 2 || res.MSE > 1e-18 {
		t.Errorf("expected exact inverse, got MSE %v over %d", res.MSE, res.Scored)
	}
}

func TestTrain_NoSamples(t *testing.T) {
	if err := newEvaluator().Train(context.Background(), &stepModel{}, nil); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEvaluateWindows(t *testing.T) {
	windows := []features.PriceWindow{
		{Anchor: at(1), X: []float64{100}, Y: 101},
		{Anchor: at(2), X: []float64{101}, Y: 103},
	}
	m := model.NewMean()
	X, Y := features.PriceOnlyDataset(windows)
	if err := m.Fit(context.Background(), X, Y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	res, err := newEvaluator().EvaluateWindows(context.Background(), m, domain.AssetBTC, windows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Mean 102, errors ±1.
	if res.Scored != 2 || math.Abs(res.MSE-1) > 1e-12 {
		t.Errorf("unexpected result %+v", res)
	}
}

// oracleModel returns each sample's true lookahead, keyed by its price column.
type oracleModel struct{ byPrice map[float64][]float64 }

func (m *oracleModel) Name() string { return "oracle" }

func (m *oracleModel) Fit(context.Context, [][]float64, [][]float64) error { return nil }

func (m *oracleModel) Predict(_ context.Context, X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = m.byPrice[row[len(row)-1]]
	}
	return out, nil
}

func TestEvaluate_RowStepAcrossGap(t *testing.T) {
	// Hour 2 is missing, so under RowStep the row after 01:00 is 03:00.
	prices := map[int]float64{0: 100, 1: 110, 3: 130, 4: 140, 5: 150}
	series := reference(prices)

	cfg := features.Config{Lookback: 1, Lookahead: 2, Step: time.Hour, Policy: features.RowStep, Target: features.TargetAbsolute}
	var rows []domain.AlignedRow
	for _, h := range []int{0, 1, 3} {
		s := 0.2
		rows = append(rows, domain.AlignedRow{Asset: domain.AssetBTC, Anchor: at(h), Price: prices[h], Sentiment: &s})
	}
	samples, _, err := features.Build(rows, series, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}

	oracle := &oracleModel{byPrice: make(map[float64][]float64)}
	for _, s := range samples {
		oracle.byPrice[s.Price] = s.Lookahead
	}

	e := New(ConfigFromFeatures(cfg, features.SentimentPrice), zerolog.Nop())
	res, err := e.Evaluate(context.Background(), oracle, at(0), at(6), samples, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MSE != 0 {
		t.Errorf("expected zero MSE for the true lookahead, got %v (%+v)", res.MSE, res.Points)
	}
	// 00:00 has no forecast and 02:00 no actual.
	if res.Scored != 4 || res.Skipped != 2 {
		t.Errorf("expected 4 scored and 2 skipped, got %d/%d", res.Scored, res.Skipped)
	}
	// 03:00 is the second row after 00:00 and the first after 01:00.
	for _, p := range res.Points {
		if p.Timestamp.Equal(at(3)) && (p.Rows != 2 || p.Predicted != 130) {
			t.Errorf("unexpected point at 03:00: %+v", p)
		}
	}

	// Reading the same outputs by clock offset lands them on the wrong hours.
	calendar := cfg
	calendar.Policy = features.CalendarStep
	res, err = New(ConfigFromFeatures(calendar, features.SentimentPrice), zerolog.Nop()).
		Evaluate(context.Background(), oracle, at(0), at(6), samples, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MSE == 0 {
		t.Error("expected calendar offsets to misalign row-step outputs")
	}
}

func TestEvaluate_EmptyReference(t *testing.T) {
	_, err := newEvaluator().Evaluate(context.Background(), &stepModel{}, at(0), at(2), []domain.AlignedSample{sample(0, 100)}, reference(nil))
	if !errors.Is(err, lookup.ErrNoPriceData) {
		t.Errorf("expected ErrNoPriceData, got %v", err)
	}
}

// emptyRowModel returns one zero-width row per input.
type emptyRowModel struct{}

func (emptyRowModel) Name() string { return "empty" }

func (emptyRowModel) Fit(context.Context, [][]float64, [][]float64) error { return nil }

func (emptyRowModel) Predict(_ context.Context, X [][]float64) ([][]float64, error) {
	return make([][]float64, len(X)), nil
}

func TestEvaluateWindows_EmptyPredictionRow(t *testing.T) {
	windows := []features.PriceWindow{{Anchor: at(1), X: []float64{100}, Y: 101}}

	_, err := newEvaluator().EvaluateWindows(context.Background(), emptyRowModel{}, domain.AssetBTC, windows)
	if !errors.Is(err, model.ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}
