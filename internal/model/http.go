package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPRegressor delegates Fit and Predict to an external model service:
//
//	POST {base}/fit      {"model": name, "x": [[...]], "y": [[...]]}  -> {"status": "ok"}
//	POST {base}/predict  {"model": name, "x": [[...]]}                -> {"predictions": [[...]]}
//
// Transient failures (transport errors and 5xx) are retried with a linear
// backoff; 4xx responses fail immediately.
type HTTPRegressor struct {
	name     string
	baseURL  string
	client   *http.Client
	attempts int
	backoff  time.Duration
	logger   zerolog.Logger
}

// HTTPOption configures an HTTPRegressor.
type HTTPOption func(*HTTPRegressor)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPRegressor) {
		if d > 0 {
			r.client.Timeout = d
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) HTTPOption {
	return func(r *HTTPRegressor) {
		if n >= 0 {
			r.attempts = n + 1
		}
	}
}

// WithBackoff sets the base delay between attempts.
func WithBackoff(d time.Duration) HTTPOption {
	return func(r *HTTPRegressor) { r.backoff = d }
}

// WithModelName sets the model identifier sent to the service.
func WithModelName(name string) HTTPOption {
	return func(r *HTTPRegressor) { r.name = name }
}

// NewHTTPRegressor creates a client for the service at baseURL.
func NewHTTPRegressor(baseURL string, logger zerolog.Logger, opts ...HTTPOption) *HTTPRegressor {
	r := &HTTPRegressor{
		name:     "lstm",
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		attempts: 3,
		backoff:  50 * time.Millisecond,
		logger:   logger.With().Str("component", "http_regressor").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPRegressor) Name() string { return "http:" + r.name }

type fitRequest struct {
	Model string      `json:"model"`
	X     [][]float64 `json:"x"`
	Y     [][]float64 `json:"y"`
}

type fitResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type predictRequest struct {
	Model string      `json:"model"`
	X     [][]float64 `json:"x"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

func (r *HTTPRegressor) Fit(ctx context.Context, X, Y [][]float64) error {
	if _, _, err := checkShape(X, Y); err != nil {
		return err
	}
	var resp fitResponse
	if err := r.postJSONWithRetry(ctx, "/fit", fitRequest{Model: r.name, X: X, Y: Y}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("fit: %s", resp.Error)
	}
	return nil
}

func (r *HTTPRegressor) Predict(ctx context.Context, X [][]float64) ([][]float64, error) {
	var resp predictResponse
	if err := r.postJSONWithRetry(ctx, "/predict", predictRequest{Model: r.name, X: X}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("predict: %s", resp.Error)
	}
	if len(resp.Predictions) != len(X) {
		return nil, fmt.Errorf("%w: %d predictions for %d rows", ErrShape, len(resp.Predictions), len(X))
	}
	return resp.Predictions, nil
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (r *HTTPRegressor) postJSON(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post %s: %w", path, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))})
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (r *HTTPRegressor) postJSONWithRetry(ctx context.Context, path string, payload, dest any) error {
	var err error
	for i := 1; i <= r.attempts; i++ {
		err = r.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i == r.attempts {
			break
		}
		r.logger.Warn().Err(err).Str("path", path).Int("attempt", i).Msg("model service call failed, retrying")

		select {
		case <-time.After(time.Duration(i) * r.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
