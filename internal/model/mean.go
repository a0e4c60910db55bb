package model

import "context"

// Mean predicts the per-output training mean for every row.
type Mean struct {
	width int
	mean  []float64
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) Name() string { return "mean" }

func (m *Mean) Fit(ctx context.Context, X, Y [][]float64) error {
	nx, ny, err := checkShape(X, Y)
	if err != nil {
		return err
	}
	m.width = nx
	m.mean = columnMeans(Y, ny)
	return ctx.Err()
}

func (m *Mean) Predict(ctx context.Context, X [][]float64) ([][]float64, error) {
	if m.mean == nil {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, m.width); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, len(m.mean))
		copy(row, m.mean)
		out[i] = row
	}
	return out, ctx.Err()
}
