package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"social-volatility/internal/config"
	"social-volatility/internal/dataset"
	"social-volatility/internal/domain"
	"social-volatility/internal/features"
	"social-volatility/internal/model"
	"social-volatility/internal/normalization"
	"social-volatility/internal/observability"
)

// 2022-03-05 00:00:00 UTC
const epoch0 = 1646438400

var twoDays = domain.DateRange{
	Start: time.Date(2022, 3, 5, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2022, 3, 6, 0, 0, 0, 0, time.UTC),
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// writePrices writes one price every interval for 48 hours, price 100 + elapsed hours.
func writePrices(t *testing.T, dir, prefix string, interval time.Duration) {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,open\n")
	for d := time.Duration(0); d < 48*time.Hour; d += interval {
		fmt.Fprintf(&b, "%d,%g\n", epoch0+int64(d/time.Second), 100+d.Hours())
	}
	writeFile(t, dir, filepath.Join("raw", "crypto", prefix+"_"+twoDays.Label()+"_minute.csv"), b.String())
}

// writeTweets writes one tweet at hh:10 for every hour, sentiment alternating sign.
func writeTweets(t *testing.T, dir, corpus, text string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("created_at,text,retweet_count,favorite_count,followers_count,vader_sentiment_compound\n")
	for h := 0; h < 48; h++ {
		ts := twoDays.Start.Add(time.Duration(h)*time.Hour + 10*time.Minute)
		s := 0.5
		if h%2 == 1 {
			s = -0.5
		}
		fmt.Fprintf(&b, "%s+00:00,%s %d,%d,%d,%d,%g\n", ts.Format(time.DateTime), text, h, h%3, h%5, 100+h%7, s)
	}
	writeFile(t, dir, filepath.Join("processed", "twitter", corpus+"_sentiment.csv"), b.String())
}

func testOptions() Options {
	return Options{
		Ranges:           []domain.DateRange{twoDays},
		Policy:           normalization.Policy{Grain: normalization.GrainHour, Rounding: normalization.RoundingFloor},
		VolatilityWindow: 2,
		Features: features.Config{
			Lookback:  1,
			Lookahead: 2,
			Step:      time.Hour,
			Policy:    features.CalendarStep,
			Target:    features.TargetAbsolute,
		},
		Concurrency: 2,
	}
}

func newRunner(t *testing.T, dir string, opts Options) (*Runner, *observability.Metrics) {
	t.Helper()
	r, err := NewRunner(dataset.NewLoader(dir, 0, zerolog.Nop()), MemoryStores(), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	return r.WithMetrics(m), m
}

func TestRunner_RunAsset(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	r, m := newRunner(t, dir, testOptions())
	ctx := context.Background()

	res, err := r.RunAsset(ctx, domain.AssetBTC)
	if err != nil {
		t.Fatalf("RunAsset: %v", err)
	}

	if res.Alignment.Matched != 48 {
		t.Errorf("expected 48 matched tweets, got %d", res.Alignment.Matched)
	}
	// Anchors 46 and 47 have no 2h lookahead.
	if len(res.Samples) != 46 || res.Features.AlignmentGap != 2 {
		t.Errorf("expected 46 samples and 2 gaps, got %d and %d", len(res.Samples), res.Features.AlignmentGap)
	}
	if len(res.Volatility) != 48 {
		t.Errorf("expected 48 volatility points, got %d", len(res.Volatility))
	}
	for i, s := range res.Samples {
		if s.Seq != i {
			t.Fatalf("sample %d has seq %d", i, s.Seq)
		}
		if s.Lookahead[1] != s.Price+2 {
			t.Fatalf("sample %d lookahead %v does not follow price %g", i, s.Lookahead, s.Price)
		}
	}

	stored, err := r.Stores().Samples.GetByAsset(ctx, domain.AssetBTC)
	if err != nil || len(stored) != 46 {
		t.Fatalf("expected 46 stored samples, got %d (%v)", len(stored), err)
	}
	prices, _ := r.Stores().Prices.GetByAsset(ctx, domain.AssetBTC)
	if len(prices) != 48 {
		t.Errorf("expected 48 stored prices, got %d", len(prices))
	}
	tweets, _ := r.Stores().Tweets.GetByAsset(ctx, domain.AssetBTC)
	if len(tweets) != 48 {
		t.Errorf("expected 48 stored tweets, got %d", len(tweets))
	}
	if len(tweets) > 0 && tweets[0].CreatedAt.Minute() != 10 {
		t.Errorf("expected stored tweets at minute precision, got %v", tweets[0].CreatedAt)
	}

	if got := testutil.ToFloat64(m.SamplesEmitted.WithLabelValues("BTC")); got != 46 {
		t.Errorf("samples metric = %g, want 46", got)
	}

	row := res.Row()
	if row.PriceRows != 48 || row.Tweets != 48 || row.Samples != 46 || row.Coverage != 1 {
		t.Errorf("unexpected report row: %+v", row)
	}
	if row.VolatilityLast == nil {
		t.Error("expected a last volatility value")
	}
}

func TestRunner_RerunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	r, _ := newRunner(t, dir, testOptions())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := r.RunAsset(ctx, domain.AssetBTC); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	stored, _ := r.Stores().Samples.GetByAsset(ctx, domain.AssetBTC)
	if len(stored) != 46 {
		t.Errorf("expected 46 stored samples after rerun, got %d", len(stored))
	}
}

func TestRunner_SameTextWithinHour(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeFile(t, dir, filepath.Join("processed", "twitter", "bitcoin_sentiment.csv"),
		"created_at,text,retweet_count,favorite_count,followers_count,vader_sentiment_compound\n"+
			"2022-03-05 10:10:00+00:00,moon soon,0,0,100,0.5\n"+
			"2022-03-05 10:10:30+00:00,moon soon,0,0,100,0.5\n"+
			"2022-03-05 10:40:00+00:00,moon soon,0,0,100,0.5\n")

	r, _ := newRunner(t, dir, testOptions())
	ctx := context.Background()

	res, err := r.RunAsset(ctx, domain.AssetBTC)
	if err != nil {
		t.Fatalf("RunAsset: %v", err)
	}
	// All three share the 10:00 anchor, so the join keeps one row.
	if res.Alignment.Matched != 1 || res.Alignment.Duplicates != 2 {
		t.Errorf("expected 1 matched and 2 duplicates, got %d/%d", res.Alignment.Matched, res.Alignment.Duplicates)
	}

	// Storage keeps both posting minutes.
	tweets, err := r.Stores().Tweets.GetByAsset(ctx, domain.AssetBTC)
	if err != nil {
		t.Fatalf("GetByAsset: %v", err)
	}
	if len(tweets) != 2 {
		t.Fatalf("expected 2 stored tweets, got %d", len(tweets))
	}
	if tweets[0].CreatedAt.Minute() != 10 || tweets[1].CreatedAt.Minute() != 40 {
		t.Errorf("unexpected stored times %v, %v", tweets[0].CreatedAt, tweets[1].CreatedAt)
	}
}

func TestRunner_RunAll_MissingAssetDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	r, m := newRunner(t, dir, testOptions())
	res, err := r.RunAll(context.Background(), []domain.Asset{domain.AssetETH, domain.AssetBTC})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if len(res.Assets) != 1 || res.Assets[0].Asset != domain.AssetBTC {
		t.Fatalf("expected only BTC to succeed, got %d assets", len(res.Assets))
	}
	if len(res.Errors) != 1 || res.Errors[0].Asset != domain.AssetETH {
		t.Fatalf("expected one ETH error, got %v", res.Errors)
	}
	if !errors.Is(res.Errors[0].Err, domain.ErrDatasetNotFound) {
		t.Errorf("expected ErrDatasetNotFound, got %v", res.Errors[0].Err)
	}
	if got := testutil.ToFloat64(m.DatasetErrors.WithLabelValues("ETH", "not_found")); got != 1 {
		t.Errorf("dataset error metric = %g, want 1", got)
	}
	if len(res.Rows()) != 1 || len(res.ErrorStrings()) != 1 {
		t.Error("expected one report row and one error string")
	}
}

func TestRunner_RunAll_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := newRunner(t, dir, testOptions())
	if _, err := r.RunAll(ctx, []domain.Asset{domain.AssetBTC}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_SharedCorpus(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writePrices(t, dir, "eth", time.Hour)

	var b strings.Builder
	b.WriteString("created_at,text,vader_sentiment_compound\n")
	for h := 0; h < 10; h++ {
		ts := twoDays.Start.Add(time.Duration(h) * time.Hour).Format(time.DateTime)
		fmt.Fprintf(&b, "%s,bitcoin rally %d,0.%d\n", ts, h, h)
		if h < 4 {
			fmt.Fprintf(&b, "%s,ETH merge %d,-0.%d\n", ts, h, h)
		}
	}
	writeFile(t, dir, filepath.Join("processed", "twitter", "crypto_sentiment.csv"), b.String())

	opts := testOptions()
	opts.SharedCorpus = "crypto"
	r, _ := newRunner(t, dir, opts)

	res, err := r.RunAll(context.Background(), []domain.Asset{domain.AssetBTC, domain.AssetETH})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if res.Assets[0].Tweets != 10 || res.Assets[1].Tweets != 4 {
		t.Errorf("expected 10 BTC and 4 ETH tweets, got %d and %d", res.Assets[0].Tweets, res.Assets[1].Tweets)
	}
}

func TestRunner_RowPolicyUsesStepGrid(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", 30*time.Minute)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	opts := testOptions()
	opts.Features.Policy = features.RowStep
	r, _ := newRunner(t, dir, opts)

	res, err := r.RunAsset(context.Background(), domain.AssetBTC)
	if err != nil {
		t.Fatalf("RunAsset: %v", err)
	}
	if res.Series.Len() != 96 || res.WindowSeries.Len() != 48 {
		t.Fatalf("expected 96 minute and 48 grid points, got %d and %d", res.Series.Len(), res.WindowSeries.Len())
	}
	// Row neighbours are an hour apart, not half an hour.
	s := res.Samples[0]
	if s.Lookahead[0] != s.Price+1 {
		t.Errorf("expected first lookahead one hour ahead, got %v for price %g", s.Lookahead, s.Price)
	}
}

func TestNewRunner_InvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.VolatilityWindow = 1
	if _, err := NewRunner(dataset.NewLoader(t.TempDir(), 0, zerolog.Nop()), Stores{}, opts, zerolog.Nop()); err == nil {
		t.Fatal("expected error for volatility window 1")
	}
}

func TestCheckSufficiency(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	r, _ := newRunner(t, dir, testOptions())
	requested := []domain.Asset{domain.AssetBTC, domain.AssetETH}
	res, err := r.RunAll(context.Background(), requested)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	suff := CheckSufficiency(res, requested, 10)
	if suff.AllPass {
		t.Error("expected the missing ETH to fail the check")
	}
	if len(suff.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(suff.Checks))
	}
	if suff.Checks[0].Pass || !suff.Checks[1].Pass || !suff.Checks[2].Pass {
		t.Errorf("unexpected check outcomes: %+v", suff.Checks)
	}

	dq := suff.DataQuality()
	if dq.AllChecksPassed || len(dq.DatasetErrors) != 1 || len(dq.SufficiencyChecks) != 3 {
		t.Errorf("unexpected data quality section: %+v", dq)
	}

	strict := CheckSufficiency(res, []domain.Asset{domain.AssetBTC}, 100)
	if strict.AllPass || strict.Checks[2].Pass {
		t.Error("expected 46 samples to fail a 100 sample minimum")
	}
}

func configModel(kind string) config.ModelConfig {
	return config.ModelConfig{Kind: kind, Ridge: 1e-6, Timeout: time.Second}
}

func linearFactory() (model.Regressor, error) {
	return model.NewLinear(1e-9), nil
}

func TestForecaster_RunAll(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	r, m := newRunner(t, dir, testOptions())
	ctx := context.Background()
	res, err := r.RunAll(ctx, []domain.Asset{domain.AssetBTC})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	day1 := domain.DateRange{Start: twoDays.Start, End: twoDays.Start}
	day2 := domain.DateRange{Start: twoDays.End, End: twoDays.End}
	f := NewForecaster(linearFactory, r.Stores().Evaluations, ForecastOptions{
		Train:      day1,
		Test:       day2,
		FeatureSet: features.SentimentPrice,
		Features:   testOptions().Features,
		Baseline:   true,
	}, zerolog.Nop()).WithMetrics(m)

	results, failed, err := f.RunAll(ctx, res)
	if err != nil {
		t.Fatalf("Forecast RunAll: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}
	if len(results) != 2 {
		t.Fatalf("expected sentiment and baseline results, got %d", len(results))
	}

	sent := results[0]
	if sent.Model != "linear" {
		t.Fatalf("expected linear first, got %s", sent.Model)
	}
	// Hour 24 has no candidate from the held-out samples.
	if sent.Scored != 23 || sent.Skipped != 1 {
		t.Errorf("expected 23 scored and 1 skipped, got %d and %d", sent.Scored, sent.Skipped)
	}
	if sent.MSE > 1e-3 {
		t.Errorf("expected a near exact fit, got MSE %g", sent.MSE)
	}
	if !sent.Start.Equal(day2.Start) || !sent.End.Equal(day2.Start.Add(24*time.Hour)) {
		t.Errorf("unexpected evaluation window %s..%s", sent.Start, sent.End)
	}

	base := results[1]
	if base.Model != "linear+price_only" || base.Scored != 24 {
		t.Errorf("unexpected baseline %s scored %d", base.Model, base.Scored)
	}
	if math.IsNaN(base.MSE) || base.MSE > 1e-3 {
		t.Errorf("unexpected baseline MSE %g", base.MSE)
	}

	stored, err := r.Stores().Evaluations.GetAll(ctx)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected 2 stored evaluations, got %d (%v)", len(stored), err)
	}

	// Rerunning tolerates the stored results.
	if _, failed, err := f.RunAll(ctx, res); err != nil || len(failed) != 0 {
		t.Fatalf("rerun: %v %v", err, failed)
	}
}

func TestForecaster_NoTrainingSamples(t *testing.T) {
	dir := t.TempDir()
	writePrices(t, dir, "btc", time.Hour)
	writeTweets(t, dir, "bitcoin", "bitcoin tweet")

	r, _ := newRunner(t, dir, testOptions())
	ctx := context.Background()
	res, err := r.RunAll(ctx, []domain.Asset{domain.AssetBTC})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	later := domain.DateRange{
		Start: time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2022, 4, 2, 0, 0, 0, 0, time.UTC),
	}
	f := NewForecaster(linearFactory, r.Stores().Evaluations, ForecastOptions{
		Train:      later,
		Test:       twoDays,
		FeatureSet: features.SentimentPrice,
		Features:   testOptions().Features,
	}, zerolog.Nop()).WithMetrics(observability.NewMetrics("test", prometheus.NewRegistry()))

	_, failed, err := f.RunAll(ctx, res)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(failed) != 1 || !errors.Is(failed[0].Err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", failed)
	}
}

func TestBounds(t *testing.T) {
	start, end := Bounds(twoDays)
	if !start.Equal(twoDays.Start) || end.Sub(start) != 48*time.Hour {
		t.Errorf("unexpected bounds %s..%s", start, end)
	}
}

func TestNewModelFactory_CountsCalls(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	factory := NewModelFactory(configModel("mean"), nil, 0, m, zerolog.Nop())

	reg, err := factory()
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	ctx := context.Background()
	if err := reg.Fit(ctx, [][]float64{{1}}, [][]float64{{2}}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := reg.Predict(ctx, [][]float64{{1}}); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := testutil.ToFloat64(m.ModelCalls.WithLabelValues("mean", "fit", "ok")); got != 1 {
		t.Errorf("fit calls = %g, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelCalls.WithLabelValues("mean", "predict", "ok")); got != 1 {
		t.Errorf("predict calls = %g, want 1", got)
	}

	if _, err := NewModelFactory(configModel("forest"), nil, 0, m, zerolog.Nop())(); err == nil {
		t.Error("expected unknown model kind to fail")
	}
}

func TestStores_Instrument(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	stores := MemoryStores().Instrument(m, "raw", "derived")
	ctx := context.Background()

	sent := 0.5
	s := &domain.AlignedSample{Asset: domain.AssetBTC, Seq: 0, Anchor: time.Unix(epoch0, 0).UTC(), Sentiment: &sent}
	if err := stores.Samples.InsertBulk(ctx, []*domain.AlignedSample{s}); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}
	if err := stores.Samples.InsertBulk(ctx, []*domain.AlignedSample{s}); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if _, err := stores.Prices.GetByAsset(ctx, domain.AssetBTC); err != nil {
		t.Fatalf("GetByAsset: %v", err)
	}

	if got := testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("derived", "samples.insert")); got != 1 {
		t.Errorf("expected 1 insert error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.DBQueryDuration); got != 2 {
		t.Errorf("expected 2 observed operations, got %d", got)
	}
}
