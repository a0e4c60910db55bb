package domain

import "time"

// AlignedRow is one tweet joined to the price observed at its canonical instant.
type AlignedRow struct {
	Asset      Asset
	Anchor     time.Time // shared canonical instant
	Price      float64   // price at Anchor
	Sentiment  *float64  // never nil in aligner output
	Engagement Engagement
	Text       string
}

// AlignedSample is a model-ready row: anchor context plus fixed-length
// lookback and lookahead price windows.
type AlignedSample struct {
	Asset     Asset
	Seq       int // position in the asset's sample set, unique per asset
	Anchor    time.Time
	Price     float64   // price at Anchor
	Sentiment *float64  // nil rows are never emitted for training
	Authority float64   // sum of z-scored engagement metrics
	Lookback  []float64 // len W, oldest first, last element at Anchor
	Lookahead []float64 // len H, strictly after Anchor
}

// VolatilityPoint is a derived return/volatility observation.
// Return and Volatility are nil where undefined (first rows of a series).
type VolatilityPoint struct {
	Asset      Asset
	Timestamp  time.Time
	Price      float64
	Return     *float64 // ln(price[t]/price[t-1])
	Volatility *float64 // rolling stdev of Return * sqrt(window)
}
