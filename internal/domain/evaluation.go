package domain

import "time"

// ForecastPoint is one scored timestamp of an evaluation run.
type ForecastPoint struct {
	Timestamp time.Time
	Predicted float64
	Actual    float64
	Rows      int // samples averaged into Predicted
}

// EvaluationResult summarizes a regressor's error over a held-out range.
type EvaluationResult struct {
	Asset   Asset
	Model   string
	Start   time.Time
	End     time.Time
	MSE     float64
	Scored  int // timestamps with both a prediction and an actual price
	Skipped int // timestamps with no window or no actual
	Points  []ForecastPoint
}
