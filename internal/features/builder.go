package features

import (
	"math"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/lookup"
)

// Stats counts anchors seen and dropped by Build.
type Stats struct {
	Rows             int
	Emitted          int
	AlignmentGap     int // window not fully covered by the series
	MissingSentiment int
}

// Build emits one sample per row whose lookback and lookahead windows are
// fully covered by series. For RowStep the series must already be at the
// sampling grain, since neighbours are taken by position.
//
// The authority score is computed after the window filter, over the emitted
// population only.
func Build(rows []domain.AlignedRow, series *lookup.Series, cfg Config) ([]domain.AlignedSample, Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Rows: len(rows)}
	samples := make([]domain.AlignedSample, 0, len(rows))
	engagement := make([]domain.Engagement, 0, len(rows))

	for _, row := range rows {
		if row.Sentiment == nil || math.IsNaN(*row.Sentiment) {
			stats.MissingSentiment++
			continue
		}

		var (
			lookback, lookahead []float64
			ok                  bool
		)
		switch cfg.Policy {
		case RowStep:
			lookback, lookahead, ok = rowWindows(series, row.Anchor, cfg)
		default:
			lookback, lookahead, ok = calendarWindows(series, row.Anchor, cfg)
		}
		if !ok {
			stats.AlignmentGap++
			continue
		}

		s := *row.Sentiment
		samples = append(samples, domain.AlignedSample{
			Asset:     row.Asset,
			Seq:       len(samples),
			Anchor:    row.Anchor,
			Price:     row.Price,
			Sentiment: &s,
			Lookback:  lookback,
			Lookahead: lookahead,
		})
		engagement = append(engagement, row.Engagement)
	}

	scores := AuthorityScores(engagement)
	for i := range samples {
		samples[i].Authority = scores[i]
	}
	stats.Emitted = len(samples)

	return samples, stats, nil
}

// calendarWindows reads t-(W-1)s .. t and t+s .. t+Hs by exact timestamp.
func calendarWindows(series *lookup.Series, anchor time.Time, cfg Config) ([]float64, []float64, bool) {
	lookback := make([]float64, cfg.Lookback)
	for k := 0; k < cfg.Lookback; k++ {
		offset := time.Duration(cfg.Lookback-1-k) * cfg.Step
		p, ok := series.At(anchor.Add(-offset))
		if !ok {
			return nil, nil, false
		}
		lookback[k] = p
	}

	lookahead := make([]float64, cfg.Lookahead)
	for k := 1; k <= cfg.Lookahead; k++ {
		p, ok := series.At(anchor.Add(time.Duration(k) * cfg.Step))
		if !ok {
			return nil, nil, false
		}
		lookahead[k-1] = p
	}
	return lookback, lookahead, true
}

// rowWindows reads the W rows ending at the anchor and the H rows after it.
func rowWindows(series *lookup.Series, anchor time.Time, cfg Config) ([]float64, []float64, bool) {
	idx, ok := series.IndexOf(anchor)
	if !ok {
		return nil, nil, false
	}
	first := idx - (cfg.Lookback - 1)
	last := idx + cfg.Lookahead
	if first < 0 || last >= series.Len() {
		return nil, nil, false
	}

	lookback := make([]float64, 0, cfg.Lookback)
	for i := first; i <= idx; i++ {
		lookback = append(lookback, series.Observation(i).Open)
	}
	lookahead := make([]float64, 0, cfg.Lookahead)
	for i := idx + 1; i <= last; i++ {
		lookahead = append(lookahead, series.Observation(i).Open)
	}
	return lookback, lookahead, true
}
