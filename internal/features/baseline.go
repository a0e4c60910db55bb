package features

import (
	"time"

	"social-volatility/internal/lookup"
)

// PriceWindow is a price-only training row: the W prices before Anchor and
// the price at Anchor.
type PriceWindow struct {
	Anchor time.Time
	X      []float64 // oldest first, excludes Anchor
	Y      float64
}

// BuildPriceOnly builds the price-only baseline dataset. Anchors are series
// timestamps that sit on a Step boundary; calendar step requires every prior
// point at exactly t-k·Step, row step takes the previous W on-step rows.
func BuildPriceOnly(series *lookup.Series, cfg Config) ([]PriceWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var anchors []int
	for i := 0; i < series.Len(); i++ {
		ts := series.Observation(i).Timestamp
		if ts.Equal(ts.Truncate(cfg.Step)) {
			anchors = append(anchors, i)
		}
	}

	var out []PriceWindow
	for pos, idx := range anchors {
		anchor := series.Observation(idx)
		x := make([]float64, cfg.Lookback)
		ok := true

		switch cfg.Policy {
		case RowStep:
			if pos < cfg.Lookback {
				ok = false
				break
			}
			for k := 0; k < cfg.Lookback; k++ {
				x[k] = series.Observation(anchors[pos-cfg.Lookback+k]).Open
			}
		default:
			for k := 0; k < cfg.Lookback; k++ {
				p, found := series.At(anchor.Timestamp.Add(-time.Duration(cfg.Lookback-k) * cfg.Step))
				if !found {
					ok = false
					break
				}
				x[k] = p
			}
		}
		if !ok {
			continue
		}

		out = append(out, PriceWindow{Anchor: anchor.Timestamp, X: x, Y: anchor.Open})
	}
	return out, nil
}

// PriceOnlyDataset stacks windows into a single-output regression problem.
func PriceOnlyDataset(windows []PriceWindow) ([][]float64, [][]float64) {
	X := make([][]float64, len(windows))
	Y := make([][]float64, len(windows))
	for i, w := range windows {
		X[i] = w.X
		Y[i] = []float64{w.Y}
	}
	return X, Y
}
