package features

import (
	"math"

	"social-volatility/internal/domain"
)

// AuthorityScores returns, for each entry, the sum of the z-scores of its
// retweet, favorite and follower counts. Mean and sample deviation are taken
// over the whole slice; a metric with zero deviation contributes 0.
func AuthorityScores(eng []domain.Engagement) []float64 {
	out := make([]float64, len(eng))
	if len(eng) == 0 {
		return out
	}

	metrics := []func(domain.Engagement) float64{
		func(e domain.Engagement) float64 { return float64(e.RetweetCount) },
		func(e domain.Engagement) float64 { return float64(e.FavoriteCount) },
		func(e domain.Engagement) float64 { return float64(e.FollowerCount) },
	}

	values := make([]float64, len(eng))
	for _, metric := range metrics {
		for i, e := range eng {
			values[i] = metric(e)
		}
		mean, sd := meanStd(values)
		if sd == 0 {
			continue
		}
		for i, v := range values {
			out[i] += (v - mean) / sd
		}
	}
	return out
}

// meanStd returns the mean and sample standard deviation (0 when n < 2).
func meanStd(xs []float64) (float64, float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if len(xs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / (n - 1))
}
