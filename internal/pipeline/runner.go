// Package pipeline runs the per-asset preparation chain (load, volatility,
// align, window) and the forecast evaluation over its output.
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
	"golang.org/x/sync/singleflight"

	"social-volatility/internal/alignment"
	"social-volatility/internal/config"
	"social-volatility/internal/dataset"
	"social-volatility/internal/domain"
	"social-volatility/internal/features"
	"social-volatility/internal/idhash"
	"social-volatility/internal/lookup"
	"social-volatility/internal/normalization"
	"social-volatility/internal/observability"
	"social-volatility/internal/reporting"
	"social-volatility/internal/storage"
	"social-volatility/internal/storage/memory"
	"social-volatility/internal/volatility"
)

// Stores groups the persistence targets of a run.
type Stores struct {
	Prices      storage.PriceStore
	Tweets      storage.TweetStore
	Volatility  storage.VolatilityStore
	Samples     storage.SampleStore
	Evaluations storage.EvaluationStore
}

// MemoryStores returns in-memory stores for every target.
func MemoryStores() Stores {
	return Stores{
		Prices:      memory.NewPriceStore(),
		Tweets:      memory.NewTweetStore(),
		Volatility:  memory.NewVolatilityStore(),
		Samples:     memory.NewSampleStore(),
		Evaluations: memory.NewEvaluationStore(),
	}
}

// Options configures the preparation chain.
type Options struct {
	Ranges           []domain.DateRange
	Policy           normalization.Policy
	VolatilityWindow int
	Features         features.Config
	// SharedCorpus is read once and split per asset by keyword. Empty means
	// one corpus file per asset.
	SharedCorpus string
	Concurrency  int
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	ranges, err := cfg.DateRanges()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Ranges:           ranges,
		Policy:           cfg.AlignmentPolicy(),
		VolatilityWindow: cfg.Volatility.Window,
		Features:         cfg.FeatureConfig(),
		SharedCorpus:     cfg.Loader.SharedCorpus,
		Concurrency:      cfg.Concurrency,
	}, nil
}

func (o Options) validate() error {
	if len(o.Ranges) == 0 {
		return errors.New("no date ranges")
	}
	if err := o.Policy.Validate(); err != nil {
		return err
	}
	if o.VolatilityWindow < 2 {
		return fmt.Errorf("volatility window %d < 2", o.VolatilityWindow)
	}
	return o.Features.Validate()
}

// AssetResult is everything one asset produced.
type AssetResult struct {
	Asset domain.Asset

	PriceStats []dataset.LoadStats
	TweetStats dataset.LoadStats
	Tweets     int

	Alignment alignment.Stats
	Features  features.Stats

	Volatility []domain.VolatilityPoint
	Samples    []domain.AlignedSample

	// WindowSeries is the series the windows were read from, and the
	// forecast reference: row-step horizons are positions in it.
	WindowSeries *lookup.Series
}

// Row converts the result into its report row.
func (r *AssetResult) Row() reporting.AssetRow {
	row := reporting.AssetRow{
		Asset:            r.Asset.String(),
		Tweets:           r.Tweets,
		TweetFailed:      r.TweetStats.Failed,
		Matched:          r.Alignment.Matched,
		Unmatched:        r.Alignment.Unmatched,
		MissingSentiment: r.Alignment.MissingSentiment,
		Duplicates:       r.Alignment.Duplicates,
		Coverage:         r.Alignment.Coverage(),
		Samples:          len(r.Samples),
		AlignmentGap:     r.Features.AlignmentGap,
	}
	for _, s := range r.PriceStats {
		row.PriceRows += s.Loaded
		row.PriceFailed += s.Failed
	}
	sum := volatility.Summarize(r.Volatility)
	row.VolatilityPoints = sum.Points
	row.VolatilityMean = sum.Mean
	row.VolatilityMax = sum.Max
	row.VolatilityLast = sum.Last
	return row
}

// AssetError records why an asset was skipped.
type AssetError struct {
	Asset domain.Asset
	Err   error
}

func (e AssetError) Error() string {
	return fmt.Sprintf("%s: %v", e.Asset, e.Err)
}

// Result is the outcome of RunAll.
type Result struct {
	Assets []*AssetResult // sorted by asset
	Errors []AssetError   // sorted by asset
}

// Rows returns the report rows of every successful asset.
func (r *Result) Rows() []reporting.AssetRow {
	rows := make([]reporting.AssetRow, 0, len(r.Assets))
	for _, a := range r.Assets {
		rows = append(rows, a.Row())
	}
	return rows
}

// ErrorStrings renders Errors for the report.
func (r *Result) ErrorStrings() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Runner executes the preparation chain.
type Runner struct {
	loader  *dataset.Loader
	stores  Stores
	opts    Options
	metrics *observability.Metrics
	logger  zerolog.Logger

	corpusGroup singleflight.Group
	corpusMu    sync.Mutex
	corpora     map[string]corpusLoad
}

type corpusLoad struct {
	tweets []domain.TweetRecord
	stats  dataset.LoadStats
}

// NewRunner creates a runner. Zero-valued stores are replaced with memory stores.
func NewRunner(loader *dataset.Loader, stores Stores, opts Options, logger zerolog.Logger) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("pipeline options: %w", err)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	def := MemoryStores()
	if stores.Prices == nil {
		stores.Prices = def.Prices
	}
	if stores.Tweets == nil {
		stores.Tweets = def.Tweets
	}
	if stores.Volatility == nil {
		stores.Volatility = def.Volatility
	}
	if stores.Samples == nil {
		stores.Samples = def.Samples
	}
	if stores.Evaluations == nil {
		stores.Evaluations = def.Evaluations
	}
	return &Runner{
		loader:  loader,
		stores:  stores,
		opts:    opts,
		metrics: observability.DefaultMetrics,
		logger:  logger,
		corpora: make(map[string]corpusLoad),
	}, nil
}

// WithMetrics sets the metrics sink.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// Stores returns the stores the runner writes to.
func (r *Runner) Stores() Stores {
	return r.stores
}

// RunAll runs every asset with bounded concurrency. A failing asset is
// recorded in Result.Errors and does not stop the others; only context
// cancellation aborts the run.
func (r *Runner) RunAll(ctx context.Context, assets []domain.Asset) (*Result, error) {
	start := time.Now()

	var (
		mu  sync.Mutex
		res = &Result{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, asset := range assets {
		g.Go(func() error {
			ar, err := r.RunAsset(gctx, asset)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Error().Err(err).Str("asset", asset.String()).Msg("asset skipped")
				r.metrics.RecordDatasetError(asset.String(), errorKind(err))
				mu.Lock()
				res.Errors = append(res.Errors, AssetError{Asset: asset, Err: err})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.Assets = append(res.Assets, ar)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.metrics.RecordPipelineRun("prepare", "cancelled", time.Since(start).Seconds())
		return nil, err
	}

	sort.Slice(res.Assets, func(i, j int) bool { return res.Assets[i].Asset < res.Assets[j].Asset })
	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Asset < res.Errors[j].Asset })

	status := "ok"
	if len(res.Assets) == 0 {
		status = "failed"
	} else if len(res.Errors) > 0 {
		status = "partial"
	}
	r.metrics.RecordPipelineRun("prepare", status, time.Since(start).Seconds())

	r.logger.Info().
		Int("assets", len(res.Assets)).
		Int("failed", len(res.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("preparation complete")
	return res, nil
}

// RunAsset loads, aligns and windows one asset and persists the outputs.
func (r *Runner) RunAsset(ctx context.Context, asset domain.Asset) (*AssetResult, error) {
	log := r.logger.With().Str("asset", asset.String()).Logger()

	parts, priceStats, err := r.loader.LoadPriceRanges(ctx, asset, r.opts.Ranges)
	if err != nil {
		return nil, err
	}
	for _, st := range priceStats {
		r.metrics.RecordLoad(asset.String(), "prices", st.Loaded, st.Failed)
	}

	var prices []domain.PriceObservation
	for _, p := range parts {
		prices = append(prices, p...)
	}
	normalization.SortObservations(prices)

	tweets, tweetStats, err := r.tweets(ctx, asset)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordLoad(asset.String(), "tweets", len(tweets), tweetStats.Failed)

	res := &AssetResult{
		Asset:      asset,
		PriceStats: priceStats,
		TweetStats: tweetStats,
		Tweets:     len(tweets),
		Volatility: volatility.ComputeRanges(parts, r.opts.VolatilityWindow),
	}

	rows, astats, err := alignment.NewAligner(alignment.Options{Policy: r.opts.Policy}, log).Align(prices, tweets)
	if err != nil {
		return nil, fmt.Errorf("align %s: %w", asset, err)
	}
	res.Alignment = astats
	r.metrics.RecordAlignment(asset.String(), astats.Matched, astats.Unmatched, astats.MissingSentiment, astats.Duplicates, astats.Coverage())

	res.WindowSeries = r.windowSeries(prices, log)
	samples, fstats, err := features.Build(rows, res.WindowSeries, r.opts.Features)
	if err != nil {
		return nil, fmt.Errorf("build windows %s: %w", asset, err)
	}
	res.Samples = samples
	res.Features = fstats
	r.metrics.RecordSamples(asset.String(), len(samples))

	if err := r.persist(ctx, asset, prices, tweets, res); err != nil {
		return nil, err
	}

	log.Info().
		Int("prices", len(prices)).
		Int("tweets", len(tweets)).
		Int("matched", astats.Matched).
		Int("samples", len(samples)).
		Int("alignment_gap", fstats.AlignmentGap).
		Msg("asset prepared")
	return res, nil
}

// windowSeries returns the series windows are read from. Row policy takes
// neighbours by position, so it only sees observations on the step grid.
func (r *Runner) windowSeries(prices []domain.PriceObservation, log zerolog.Logger) *lookup.Series {
	if r.opts.Features.Policy != features.RowStep {
		return lookup.NewSeries(prices, log)
	}
	step := r.opts.Features.Step
	grid := make([]domain.PriceObservation, 0, len(prices))
	for _, p := range prices {
		if p.Timestamp.Equal(p.Timestamp.Truncate(step)) {
			grid = append(grid, p)
		}
	}
	return lookup.NewSeries(grid, log)
}

// tweets returns the asset's tweets, from its own corpus or the shared one.
func (r *Runner) tweets(ctx context.Context, asset domain.Asset) ([]domain.TweetRecord, dataset.LoadStats, error) {
	if r.opts.SharedCorpus == "" {
		return r.loader.LoadSentiment(ctx, asset.Corpus(), normalization.LoadPolicy)
	}
	load, err := r.corpus(ctx, r.opts.SharedCorpus)
	if err != nil {
		return nil, dataset.LoadStats{}, &domain.DatasetError{Asset: asset, Path: r.opts.SharedCorpus, Err: err}
	}
	return dataset.FilterByAsset(load.tweets, asset), load.stats, nil
}

// corpus loads a shared corpus once, however many assets ask for it.
func (r *Runner) corpus(ctx context.Context, name string) (corpusLoad, error) {
	r.corpusMu.Lock()
	if c, ok := r.corpora[name]; ok {
		r.corpusMu.Unlock()
		return c, nil
	}
	r.corpusMu.Unlock()

	v, err, _ := r.corpusGroup.Do(name, func() (any, error) {
		tweets, stats, err := r.loader.LoadSentiment(ctx, name, normalization.LoadPolicy)
		if err != nil {
			return nil, err
		}
		c := corpusLoad{tweets: tweets, stats: stats}
		r.corpusMu.Lock()
		r.corpora[name] = c
		r.corpusMu.Unlock()
		return c, nil
	})
	if err != nil {
		return corpusLoad{}, err
	}
	return v.(corpusLoad), nil
}

// persist writes inputs and derived rows. Batches that already exist from
// an earlier run are left as they are.
func (r *Runner) persist(ctx context.Context, asset domain.Asset, prices []domain.PriceObservation, tweets []domain.TweetRecord, res *AssetResult) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"prices", func() error { return r.stores.Prices.InsertBulk(ctx, ptrs(prices)) }},
		{"tweets", func() error { return r.stores.Tweets.InsertBulk(ctx, asset, ptrs(uniqueTweets(asset, tweets))) }},
		{"volatility", func() error { return r.stores.Volatility.InsertBulk(ctx, ptrs(res.Volatility)) }},
		{"samples", func() error { return r.stores.Samples.InsertBulk(ctx, ptrs(res.Samples)) }},
	}
	for _, s := range steps {
		err := s.fn()
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Debug().Str("asset", asset.String()).Str("batch", s.name).Msg("batch already persisted")
			continue
		}
		if err != nil {
			return fmt.Errorf("persist %s %s: %w", asset, s.name, err)
		}
	}
	return nil
}

// uniqueTweets keeps the first tweet per (created_at, text).
func uniqueTweets(asset domain.Asset, tweets []domain.TweetRecord) []domain.TweetRecord {
	seen := make(map[string]struct{}, len(tweets))
	out := make([]domain.TweetRecord, 0, len(tweets))
	for _, tw := range tweets {
		id := idhash.ComputeTweetID(asset, tw.CreatedAt, tw.Text)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, tw)
	}
	return out
}

func ptrs[T any](xs []T) []*T {
	out := make([]*T, len(xs))
	for i := range xs {
		out[i] = &xs[i]
	}
	return out
}

// errorKind labels an asset failure for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrDatasetNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient"
	}
	return "other"
}
