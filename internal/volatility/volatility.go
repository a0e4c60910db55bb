// Package volatility derives log returns and rolling volatility from a
// price series.
package volatility

import (
	"math"

	"social-volatility/internal/domain"
)

// DefaultWindow is the rolling window used by the reports.
const DefaultWindow = 2

// LogReturn returns ln(cur/prev), or nil if either price is not positive.
func LogReturn(prev, cur float64) *float64 {
	if prev <= 0 || cur <= 0 || math.IsNaN(prev) || math.IsNaN(cur) {
		return nil
	}
	r := math.Log(cur / prev)
	return &r
}

// Compute returns one point per input observation, in input order.
//
//	return[0]  = nil
//	return[i]  = ln(p[i] / p[i-1])
//	vol[i]     = stdev(return[i-window+1 .. i]) * sqrt(window)
//
// stdev is the sample deviation and vol is nil until window defined returns
// are available. Input is expected in timestamp order.
func Compute(prices []domain.PriceObservation, window int) []domain.VolatilityPoint {
	if len(prices) == 0 {
		return nil
	}

	roll := NewRolling(window)
	scale := math.Sqrt(float64(roll.Window()))

	out := make([]domain.VolatilityPoint, len(prices))
	for i, p := range prices {
		pt := domain.VolatilityPoint{
			Asset:     p.Asset,
			Timestamp: p.Timestamp,
			Price:     p.Open,
		}
		if i > 0 {
			pt.Return = LogReturn(prices[i-1].Open, p.Open)
		}
		if sd := roll.Push(pt.Return); sd != nil {
			v := *sd * scale
			pt.Volatility = &v
		}
		out[i] = pt
	}
	return out
}

// ComputeRanges runs Compute per range and concatenates the results.
// Returns never span a range boundary: the first point of every range has a
// nil return.
func ComputeRanges(ranges [][]domain.PriceObservation, window int) []domain.VolatilityPoint {
	total := 0
	for _, r := range ranges {
		total += len(r)
	}
	out := make([]domain.VolatilityPoint, 0, total)
	for _, r := range ranges {
		out = append(out, Compute(r, window)...)
	}
	return out
}

// Summary aggregates the defined volatility values of a series.
type Summary struct {
	Points  int
	Defined int
	Mean    float64
	Max     float64
	Last    *float64
}

// Summarize computes a Summary.
func Summarize(points []domain.VolatilityPoint) Summary {
	s := Summary{Points: len(points)}
	sum := 0.0
	for _, p := range points {
		if p.Volatility == nil {
			continue
		}
		v := *p.Volatility
		s.Defined++
		sum += v
		if s.Defined == 1 || v > s.Max {
			s.Max = v
		}
		last := v
		s.Last = &last
	}
	if s.Defined > 0 {
		s.Mean = sum / float64(s.Defined)
	}
	return s
}
