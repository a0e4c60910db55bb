// Package alignment joins tweets to the price observed at the same canonical
// instant.
package alignment

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
	"social-volatility/internal/lookup"
	"social-volatility/internal/normalization"
)

// Options selects the join grain and how tweet instants are mapped onto it.
type Options struct {
	Policy normalization.Policy
}

// DefaultOptions joins at hour grain with floor rounding.
func DefaultOptions() Options {
	return Options{Policy: normalization.Policy{Grain: normalization.GrainHour, Rounding: normalization.RoundingFloor}}
}

// Stats counts what happened to each input tweet.
// Tweets == Matched + Unmatched + MissingSentiment + Duplicates.
type Stats struct {
	Tweets           int
	Matched          int
	Unmatched        int // no price at the tweet's anchor
	MissingSentiment int
	Duplicates       int
	PricesOnGrain    int // price observations usable at this grain
}

// Coverage returns Matched / Tweets.
func (s Stats) Coverage() float64 {
	if s.Tweets == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Tweets)
}

// Aligner performs the exact-match inner join.
type Aligner struct {
	opts   Options
	logger zerolog.Logger
}

// NewAligner creates an aligner.
func NewAligner(opts Options, logger zerolog.Logger) *Aligner {
	return &Aligner{opts: opts, logger: logger}
}

// Align runs the join with a silent logger.
func Align(prices []domain.PriceObservation, tweets []domain.TweetRecord, opts Options) ([]domain.AlignedRow, Stats, error) {
	return NewAligner(opts, zerolog.Nop()).Align(prices, tweets)
}

type rowKey struct {
	anchor     time.Time
	text       string
	sentiment  float64
	engagement domain.Engagement
}

// Align emits one row per tweet whose anchor has a price. Prices only take
// part when their timestamp sits exactly on the grain boundary, so an hour
// join reads the :00 minute bar. Rows with missing sentiment and exact
// duplicates are dropped. Output is ordered by anchor, then input order.
func (a *Aligner) Align(prices []domain.PriceObservation, tweets []domain.TweetRecord) ([]domain.AlignedRow, Stats, error) {
	policy := a.opts.Policy
	if err := policy.Validate(); err != nil {
		return nil, Stats{}, err
	}

	onGrain := make([]domain.PriceObservation, 0, len(prices))
	for _, p := range prices {
		ts := normalization.StripZone(p.Timestamp)
		if !policy.OnGrain(ts) {
			continue
		}
		p.Timestamp = ts
		onGrain = append(onGrain, p)
	}
	series := lookup.NewSeries(onGrain, a.logger)

	stats := Stats{Tweets: len(tweets), PricesOnGrain: series.Len()}
	asset := series.Asset()

	seen := make(map[rowKey]struct{}, len(tweets))
	rows := make([]domain.AlignedRow, 0, len(tweets))

	for _, tw := range tweets {
		anchor := policy.Apply(tw.CreatedAt)

		price, ok := series.At(anchor)
		if !ok {
			stats.Unmatched++
			continue
		}
		if tw.Sentiment == nil || math.IsNaN(*tw.Sentiment) {
			stats.MissingSentiment++
			continue
		}

		key := rowKey{anchor: anchor, text: tw.Text, sentiment: *tw.Sentiment, engagement: tw.Engagement}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		s := *tw.Sentiment
		rows = append(rows, domain.AlignedRow{
			Asset:      asset,
			Anchor:     anchor,
			Price:      price,
			Sentiment:  &s,
			Engagement: tw.Engagement,
			Text:       tw.Text,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Anchor.Before(rows[j].Anchor)
	})
	stats.Matched = len(rows)

	a.logger.Debug().
		Str("asset", asset.String()).
		Int("tweets", stats.Tweets).
		Int("matched", stats.Matched).
		Int("unmatched", stats.Unmatched).
		Int("missing_sentiment", stats.MissingSentiment).
		Int("duplicates", stats.Duplicates).
		Msg("alignment complete")

	return rows, stats, nil
}
