package features

import (
	"fmt"

	"social-volatility/internal/domain"
)

// FeatureSet selects the regressor inputs taken from a sample.
type FeatureSet string

const (
	// SentimentPrice is [authority, sentiment, price].
	SentimentPrice FeatureSet = "sentiment_price"
	// SentimentOnly is [authority, sentiment], for the pooled relative-target model.
	SentimentOnly FeatureSet = "sentiment_only"
	// WithLookback is [authority, sentiment, lookback_1 .. lookback_W].
	WithLookback FeatureSet = "with_lookback"
)

// ParseFeatureSet validates a feature set name.
func ParseFeatureSet(s string) (FeatureSet, error) {
	switch fs := FeatureSet(s); fs {
	case SentimentPrice, SentimentOnly, WithLookback:
		return fs, nil
	}
	return "", fmt.Errorf("unknown feature set %q", s)
}

// Vector returns the input row for one sample.
func Vector(s domain.AlignedSample, fs FeatureSet) []float64 {
	sentiment := 0.0
	if s.Sentiment != nil {
		sentiment = *s.Sentiment
	}

	switch fs {
	case SentimentOnly:
		return []float64{s.Authority, sentiment}
	case WithLookback:
		out := make([]float64, 0, 2+len(s.Lookback))
		out = append(out, s.Authority, sentiment)
		return append(out, s.Lookback...)
	default:
		return []float64{s.Authority, sentiment, s.Price}
	}
}

// Targets returns the lookahead window transformed by target.
func Targets(s domain.AlignedSample, target Target) []float64 {
	out := make([]float64, len(s.Lookahead))
	for i, future := range s.Lookahead {
		out[i] = target.Transform(s.Price, future)
	}
	return out
}

// Dataset stacks Vector and Targets over samples.
func Dataset(samples []domain.AlignedSample, fs FeatureSet, target Target) ([][]float64, [][]float64) {
	X := make([][]float64, len(samples))
	Y := make([][]float64, len(samples))
	for i, s := range samples {
		X[i] = Vector(s, fs)
		Y[i] = Targets(s, target)
	}
	return X, Y
}
