package features

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
	"social-volatility/internal/lookup"
)

var h0 = time.Date(2022, 3, 5, 0, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// hourly builds a series with price 100+i at h0+i hours, skipping the given hours.
func hourly(n int, skip ...int) *lookup.Series {
	skipped := make(map[int]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	var obs []domain.PriceObservation
	for i := 0; i < n; i++ {
		if skipped[i] {
			continue
		}
		obs = append(obs, domain.PriceObservation{
			Asset:     domain.AssetBTC,
			Timestamp: h0.Add(time.Duration(i) * time.Hour),
			Open:      100 + float64(i),
		})
	}
	return lookup.NewSeries(obs, zerolog.Nop())
}

func row(hour int, sentiment float64, eng domain.Engagement) domain.AlignedRow {
	return domain.AlignedRow{
		Asset:      domain.AssetBTC,
		Anchor:     h0.Add(time.Duration(hour) * time.Hour),
		Price:      100 + float64(hour),
		Sentiment:  ptr(sentiment),
		Engagement: eng,
	}
}

func TestBuild_WindowLengthsAndNoLeakage(t *testing.T) {
	series := hourly(48)
	cfg := Config{Lookback: 3, Lookahead: 5, Step: time.Hour, Policy: CalendarStep, Target: TargetAbsolute}
	rows := []domain.AlignedRow{row(10, 0.1, domain.Engagement{}), row(20, -0.3, domain.Engagement{})}

	samples, stats, err := Build(rows, series, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 || stats.Emitted != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}

	for _, s := range samples {
		if len(s.Lookback) != cfg.Lookback || len(s.Lookahead) != cfg.Lookahead {
			t.Fatalf("bad window lengths %d/%d", len(s.Lookback), len(s.Lookahead))
		}
		hour := int(s.Anchor.Sub(h0) / time.Hour)
		// price(i) = 100+i, so values encode their own timestamp.
		for _, p := range s.Lookback {
			if int(p-100) > hour {
				t.Errorf("lookback value from hour %d leaks past anchor %d", int(p-100), hour)
			}
		}
		for _, p := range s.Lookahead {
			if int(p-100) <= hour {
				t.Errorf("lookahead value from hour %d not after anchor %d", int(p-100), hour)
			}
		}
		if s.Lookback[len(s.Lookback)-1] != s.Price {
			t.Errorf("last lookback value %v must be the anchor price %v", s.Lookback[len(s.Lookback)-1], s.Price)
		}
	}

	if samples[0].Lookback[0] != 108 || samples[0].Lookahead[4] != 115 {
		t.Errorf("unexpected windows: %v %v", samples[0].Lookback, samples[0].Lookahead)
	}
}

func TestBuild_DropsUncoveredAnchors(t *testing.T) {
	series := hourly(30)
	cfg := DefaultConfig()
	rows := []domain.AlignedRow{
		row(0, 0.1, domain.Engagement{}),  // covered: hours 1..23
		row(6, 0.2, domain.Engagement{}),  // covered: hours 7..29
		row(7, 0.2, domain.Engagement{}),  // needs hour 30
		row(29, 0.2, domain.Engagement{}), // no future at all
	}
	samples, stats, err := Build(rows, series, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 || stats.AlignmentGap != 2 {
		t.Errorf("expected 2 samples and 2 gaps, got %d and %+v", len(samples), stats)
	}
}

func TestBuild_CalendarVsRowStepOnGappedSeries(t *testing.T) {
	// Hour 12 is missing.
	series := hourly(24, 12)
	rows := []domain.AlignedRow{row(10, 0.1, domain.Engagement{})}

	calendar := Config{Lookback: 1, Lookahead: 3, Step: time.Hour, Policy: CalendarStep, Target: TargetAbsolute}
	samples, stats, err := Build(rows, series, calendar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 0 || stats.AlignmentGap != 1 {
		t.Errorf("calendar step must drop the anchor, got %d samples", len(samples))
	}

	byRow := calendar
	byRow.Policy = RowStep
	samples, _, err = Build(rows, series, byRow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("row step must emit the anchor, got %d samples", len(samples))
	}
	want := []float64{111, 113, 114}
	for i, w := range want {
		if samples[0].Lookahead[i] != w {
			t.Errorf("lookahead[%d]: expected %v, got %v", i, w, samples[0].Lookahead[i])
		}
	}
}

func TestBuild_MissingSentimentDropped(t *testing.T) {
	series := hourly(30)
	r := row(0, 0, domain.Engagement{})
	r.Sentiment = nil
	samples, stats, err := Build([]domain.AlignedRow{r}, series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 0 || stats.MissingSentiment != 1 {
		t.Errorf("expected row to be dropped, got %+v", stats)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lookahead = 0
	if _, _, err := Build(nil, hourly(1), cfg); err == nil {
		t.Error("expected error for zero lookahead")
	}
}

func TestBuild_AuthorityOverEmittedPopulation(t *testing.T) {
	series := hourly(30)
	rows := []domain.AlignedRow{
		row(0, 0.1, domain.Engagement{RetweetCount: 1, FavoriteCount: 10, FollowerCount: 100}),
		row(1, 0.1, domain.Engagement{RetweetCount: 5, FavoriteCount: 20, FollowerCount: 300}),
		row(2, 0.1, domain.Engagement{RetweetCount: 9, FavoriteCount: 60, FollowerCount: 200}),
		// Dropped by the window filter; its huge counts must not shift the scores.
		row(29, 0.1, domain.Engagement{RetweetCount: 1e6, FavoriteCount: 1e6, FollowerCount: 1e6}),
	}
	samples, _, err := Build(rows, series, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}

	sum := 0.0
	for _, s := range samples {
		sum += s.Authority
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("authority scores of the emitted population must sum to 0, got %v", sum)
	}
	// Retweets 1,5,9: z = -1, 0, 1.
	scores := AuthorityScores([]domain.Engagement{{RetweetCount: 1}, {RetweetCount: 5}, {RetweetCount: 9}})
	for i, want := range []float64{-1, 0, 1} {
		if math.Abs(scores[i]-want) > 1e-12 {
			t.Errorf("score %d: expected %v, got %v", i, want, scores[i])
		}
	}
}

func TestAuthorityScores_ZScoreMoments(t *testing.T) {
	eng := make([]domain.Engagement, 50)
	for i := range eng {
		eng[i] = domain.Engagement{RetweetCount: int64(i * i % 17)}
	}
	scores := AuthorityScores(eng)
	mean, sd := meanStd(scores)
	if math.Abs(mean) > 1e-9 || math.Abs(sd-1) > 1e-9 {
		t.Errorf("expected mean 0 and sd 1 for a single metric, got %v and %v", mean, sd)
	}
}

func TestAuthorityScores_ZeroDeviation(t *testing.T) {
	scores := AuthorityScores([]domain.Engagement{{RetweetCount: 3}, {RetweetCount: 3}})
	for _, s := range scores {
		if s != 0 {
			t.Errorf("expected 0 for constant metrics, got %v", s)
		}
	}
	if len(AuthorityScores(nil)) != 0 {
		t.Error("expected empty scores")
	}
}
