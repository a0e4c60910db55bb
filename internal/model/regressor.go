// Package model holds the regressor capability used by the evaluator and
// its in-process and remote implementations.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Errors returned by regressors.
var (
	ErrNotFitted = errors.New("model not fitted")
	ErrShape     = errors.New("inconsistent matrix shape")
	ErrNoData    = errors.New("no training rows")
)

// Regressor is a multi-output regression model. Each row of X maps to one
// row of Y; all rows of a matrix have the same width.
type Regressor interface {
	Name() string
	Fit(ctx context.Context, X, Y [][]float64) error
	Predict(ctx context.Context, X [][]float64) ([][]float64, error)
}

// checkShape validates X and Y and returns their widths.
func checkShape(X, Y [][]float64) (int, int, error) {
	if len(X) == 0 {
		return 0, 0, ErrNoData
	}
	if len(X) != len(Y) {
		return 0, 0, fmt.Errorf("%w: %d input rows, %d target rows", ErrShape, len(X), len(Y))
	}
	nx, ny := len(X[0]), len(Y[0])
	if nx == 0 || ny == 0 {
		return 0, 0, fmt.Errorf("%w: empty row", ErrShape)
	}
	for i := range X {
		if len(X[i]) != nx || len(Y[i]) != ny {
			return 0, 0, fmt.Errorf("%w: row %d", ErrShape, i)
		}
	}
	return nx, ny, nil
}

// checkWidth validates that every row of X has width n.
func checkWidth(X [][]float64, n int) error {
	for i, row := range X {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), n)
		}
	}
	return nil
}

// New builds the regressor named by kind: linear, mean or http.
func New(kind string, ridge float64, url string, logger zerolog.Logger, opts ...HTTPOption) (Regressor, error) {
	switch kind {
	case "linear":
		return NewLinear(ridge), nil
	case "mean":
		return NewMean(), nil
	case "http":
		if url == "" {
			return nil, errors.New("http model requires a url")
		}
		return NewHTTPRegressor(url, logger, opts...), nil
	}
	return nil, fmt.Errorf("unknown model kind %q", kind)
}
