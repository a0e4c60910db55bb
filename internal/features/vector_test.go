package features

import (
	"math"
	"testing"
	"time"

	"social-volatility/internal/domain"
)

func TestTarget_RelativeRoundTrip(t *testing.T) {
	for _, tc := range []struct{ current, future float64 }{
		{100, 110}, {100, 90}, {0.12, 0.125}, {42000, 42000},
	} {
		y := TargetRelative.Transform(tc.current, tc.future)
		got := TargetRelative.Invert(tc.current, y)
		if math.Abs(got-tc.future) > 1e-9*tc.future {
			t.Errorf("round trip %v -> %v -> %v", tc.future, y, got)
		}
	}
	if TargetAbsolute.Transform(1, 2) != 2 || TargetAbsolute.Invert(1, 2) != 2 {
		t.Error("absolute target must be the identity")
	}
}

func TestVector(t *testing.T) {
	s := domain.AlignedSample{
		Anchor:    time.Date(2022, 3, 5, 1, 0, 0, 0, time.UTC),
		Price:     101,
		Sentiment: ptr(0.25),
		Authority: -0.5,
		Lookback:  []float64{99, 100, 101},
		Lookahead: []float64{102, 103},
	}

	tests := []struct {
		fs   FeatureSet
		want []float64
	}{
		{SentimentPrice, []float64{-0.5, 0.25, 101}},
		{SentimentOnly, []float64{-0.5, 0.25}},
		{WithLookback, []float64{-0.5, 0.25, 99, 100, 101}},
	}
	for _, tt := range tests {
		got := Vector(s, tt.fs)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.fs, tt.want, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s[%d]: expected %v, got %v", tt.fs, i, tt.want[i], got[i])
			}
		}
	}

	X, Y := Dataset([]domain.AlignedSample{s}, SentimentPrice, TargetRelative)
	if len(X) != 1 || len(Y[0]) != 2 {
		t.Fatalf("unexpected dataset shape")
	}
	if math.Abs(Y[0][0]-(102.0-101.0)/102.0) > 1e-12 {
		t.Errorf("unexpected relative target %v", Y[0][0])
	}
}

func TestParseFeatureSet(t *testing.T) {
	if fs, err := ParseFeatureSet("with_lookback"); err != nil || fs != WithLookback {
		t.Errorf("unexpected result %v %v", fs, err)
	}
	if _, err := ParseFeatureSet("all"); err == nil {
		t.Error("expected error")
	}
}

func TestBuildPriceOnly(t *testing.T) {
	series := hourly(10, 5)
	cfg := Config{Lookback: 3, Lookahead: 1, Step: time.Hour, Policy: CalendarStep, Target: TargetAbsolute}

	windows, err := BuildPriceOnly(series, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Anchors 3,4 are covered; 5 is missing; 6,7,8 need hour 5; 9 is covered.
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	last := windows[2]
	if last.Y != 109 || last.X[0] != 106 || last.X[2] != 108 {
		t.Errorf("unexpected window %+v", last)
	}

	byRow := cfg
	byRow.Policy = RowStep
	windows, err = BuildPriceOnly(series, byRow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 9 on-step points, the first 3 lack history.
	if len(windows) != 6 {
		t.Fatalf("expected 6 windows, got %d", len(windows))
	}

	X, Y := PriceOnlyDataset(windows)
	if len(X[0]) != 3 || len(Y[0]) != 1 {
		t.Error("unexpected dataset shape")
	}
}
