package model

import (
	"context"
	"errors"
	"math"
)

// Linear is a ridge-regularized multi-output least-squares model.
// Inputs are standardized before solving so the penalty is scale-free and
// the intercept is never penalized.
type Linear struct {
	Ridge float64

	xMean, xScale []float64
	yMean         []float64
	coef          [][]float64 // [input][output], on standardized inputs
}

// NewLinear creates a ridge model with penalty lambda.
func NewLinear(lambda float64) *Linear {
	return &Linear{Ridge: lambda}
}

func (m *Linear) Name() string { return "linear" }

var errSingular = errors.New("singular normal equations")

// Fit solves (ZᵀZ + λI)B = ZᵀYc with Z the standardized inputs and Yc the
// centered targets.
func (m *Linear) Fit(ctx context.Context, X, Y [][]float64) error {
	nx, ny, err := checkShape(X, Y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n := float64(len(X))
	xMean := columnMeans(X, nx)
	yMean := columnMeans(Y, ny)

	xScale := make([]float64, nx)
	for _, row := range X {
		for j, v := range row {
			d := v - xMean[j]
			xScale[j] += d * d
		}
	}
	for j := range xScale {
		xScale[j] = math.Sqrt(xScale[j] / n)
		if xScale[j] == 0 {
			xScale[j] = 1
		}
	}

	// Normal equations.
	a := make([][]float64, nx)
	b := make([][]float64, nx)
	for j := range a {
		a[j] = make([]float64, nx)
		b[j] = make([]float64, ny)
	}
	z := make([]float64, nx)
	for i, row := range X {
		for j, v := range row {
			z[j] = (v - xMean[j]) / xScale[j]
		}
		for j := 0; j < nx; j++ {
			for k := j; k < nx; k++ {
				a[j][k] += z[j] * z[k]
			}
			for k := 0; k < ny; k++ {
				b[j][k] += z[j] * (Y[i][k] - yMean[k])
			}
		}
	}
	for j := 0; j < nx; j++ {
		for k := 0; k < j; k++ {
			a[j][k] = a[k][j]
		}
		a[j][j] += m.Ridge
	}

	coef, err := solve(a, b)
	if err != nil {
		// Constant or collinear inputs without a penalty: predict the mean.
		coef = make([][]float64, nx)
		for j := range coef {
			coef[j] = make([]float64, ny)
		}
	}

	m.xMean, m.xScale, m.yMean, m.coef = xMean, xScale, yMean, coef
	return nil
}

// Predict returns yMean + Z·B for every row.
func (m *Linear) Predict(ctx context.Context, X [][]float64) ([][]float64, error) {
	if m.coef == nil {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, len(m.xMean)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		pred := make([]float64, len(m.yMean))
		copy(pred, m.yMean)
		for j, v := range row {
			z := (v - m.xMean[j]) / m.xScale[j]
			for k := range pred {
				pred[k] += z * m.coef[j][k]
			}
		}
		out[i] = pred
	}
	return out, nil
}

func columnMeans(M [][]float64, width int) []float64 {
	mean := make([]float64, width)
	for _, row := range M {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(M))
	}
	return mean
}

// solve runs Gaussian elimination with partial pivoting on A·X = B.
// A and B are overwritten.
func solve(a, b [][]float64) ([][]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			for c := range b[r] {
				b[r][c] -= f * b[col][c]
			}
		}
	}

	x := make([][]float64, n)
	for r := n - 1; r >= 0; r-- {
		x[r] = make([]float64, len(b[r]))
		for c := range b[r] {
			s := b[r][c]
			for k := r + 1; k < n; k++ {
				s -= a[r][k] * x[k][c]
			}
			x[r][c] = s / a[r][r]
		}
	}
	return x, nil
}
