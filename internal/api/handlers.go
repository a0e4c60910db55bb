package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
	"social-volatility/internal/idhash"
	"social-volatility/internal/normalization"
	"social-volatility/internal/pipeline"
	"social-volatility/internal/storage"
)

// Scheduler exposes the job scheduler to the API.
type Scheduler interface {
	Status() pipeline.Status
	Trigger() bool
}

// Handler serves read-only views of the stores and the scheduler controls.
type Handler struct {
	stores    pipeline.Stores
	scheduler Scheduler
	logger    zerolog.Logger
}

// NewHandler creates a handler. A nil scheduler disables /api/status and
// /api/runs.
func NewHandler(stores pipeline.Stores, scheduler Scheduler, logger zerolog.Logger) *Handler {
	return &Handler{stores: stores, scheduler: scheduler, logger: logger}
}

// RegisterRoutes mounts the handler under /api.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.POST("/runs", h.TriggerRun)
	g.GET("/assets", h.Assets)
	g.GET("/assets/:asset/samples", h.Samples)
	g.GET("/assets/:asset/volatility", h.Volatility)
	g.GET("/assets/:asset/evaluations", h.Evaluations)
	g.GET("/evaluations", h.Evaluations)
}

type seriesRequest struct {
	Asset string `param:"asset" validate:"required"`
	Start string `query:"start"`
	End   string `query:"end"`
	Limit int    `query:"limit" default:"1000" validate:"min=1,max=100000"`
}

type evaluationsRequest struct {
	Asset  string `param:"asset"`
	Model  string `query:"model"`
	Points bool   `query:"points"`
}

type sampleJSON struct {
	Seq       int       `json:"seq"`
	Anchor    time.Time `json:"anchor"`
	Price     float64   `json:"price"`
	Sentiment *float64  `json:"sentiment"`
	Authority float64   `json:"authority_score"`
	Lookback  []float64 `json:"lookback"`
	Lookahead []float64 `json:"lookahead"`
}

type volatilityJSON struct {
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Return     *float64  `json:"return"`
	Volatility *float64  `json:"volatility"`
}

type pointJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Predicted float64   `json:"predicted"`
	Actual    float64   `json:"actual"`
	Rows      int       `json:"rows"`
}

type evaluationJSON struct {
	ID      string      `json:"id"`
	Asset   string      `json:"asset"`
	Model   string      `json:"model"`
	Start   time.Time   `json:"start"`
	End     time.Time   `json:"end"`
	MSE     float64     `json:"mse"`
	Scored  int         `json:"scored"`
	Skipped int         `json:"skipped"`
	Points  []pointJSON `json:"points,omitempty"`
}

// Status returns the scheduler state.
func (h *Handler) Status(c echo.Context) error {
	if h.scheduler == nil {
		return notFound(c, "scheduler disabled")
	}
	return successResponse(c, h.scheduler.Status())
}

// TriggerRun requests an immediate job run.
func (h *Handler) TriggerRun(c echo.Context) error {
	if h.scheduler == nil {
		return notFound(c, "scheduler disabled")
	}
	if !h.scheduler.Trigger() {
		return dataResponse(c, http.StatusConflict, []FieldError{{Code: "ERR_BUSY", Message: "a run is already pending"}})
	}
	return dataResponse(c, http.StatusAccepted, h.scheduler.Status())
}

// Assets lists the tracked assets with their corpus names.
func (h *Handler) Assets(c echo.Context) error {
	type assetJSON struct {
		Asset  string `json:"asset"`
		Corpus string `json:"corpus"`
	}
	var out []assetJSON
	for _, a := range domain.AllAssets() {
		out = append(out, assetJSON{Asset: a.String(), Corpus: a.Corpus()})
	}
	return listResponse(c, out)
}

// Samples returns stored aligned samples for an asset, optionally bounded by
// anchor time.
func (h *Handler) Samples(c echo.Context) error {
	req := &seriesRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	asset, start, end, errs := parseSeries(req)
	if errs != nil {
		return badRequest(c, errs)
	}

	ctx := c.Request().Context()
	var (
		samples []*domain.AlignedSample
		err     error
	)
	if req.Start == "" && req.End == "" {
		samples, err = h.stores.Samples.GetByAsset(ctx, asset)
	} else {
		samples, err = h.stores.Samples.GetByTimeRange(ctx, asset, start, end)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("asset", asset.String()).Msg("load samples")
		return internalError(c)
	}

	out := make([]sampleJSON, 0, min(len(samples), req.Limit))
	for _, s := range samples {
		if len(out) == req.Limit {
			break
		}
		out = append(out, sampleJSON{
			Seq:       s.Seq,
			Anchor:    s.Anchor,
			Price:     s.Price,
			Sentiment: s.Sentiment,
			Authority: s.Authority,
			Lookback:  s.Lookback,
			Lookahead: s.Lookahead,
		})
	}
	return listResponse(c, out)
}

// Volatility returns stored return/volatility points for an asset.
func (h *Handler) Volatility(c echo.Context) error {
	req := &seriesRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	asset, start, end, errs := parseSeries(req)
	if errs != nil {
		return badRequest(c, errs)
	}

	points, err := h.stores.Volatility.GetByAsset(c.Request().Context(), asset)
	if err != nil {
		h.logger.Error().Err(err).Str("asset", asset.String()).Msg("load volatility")
		return internalError(c)
	}

	out := make([]volatilityJSON, 0, min(len(points), req.Limit))
	for _, p := range points {
		if len(out) == req.Limit {
			break
		}
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		out = append(out, volatilityJSON{
			Timestamp:  p.Timestamp,
			Price:      p.Price,
			Return:     p.Return,
			Volatility: p.Volatility,
		})
	}
	return listResponse(c, out)
}

// Evaluations lists stored evaluation results, filtered by the :asset path
// parameter and the model query parameter when present.
func (h *Handler) Evaluations(c echo.Context) error {
	req := &evaluationsRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	var asset domain.Asset
	if req.Asset != "" {
		a, err := domain.ParseAsset(req.Asset)
		if err != nil {
			return badRequest(c, []FieldError{{Code: "ERR_ASSET", Field: "asset", Message: err.Error()}})
		}
		asset = a
	}

	results, err := h.stores.Evaluations.GetAll(c.Request().Context())
	if errors.Is(err, storage.ErrNotFound) {
		results = nil
	} else if err != nil {
		h.logger.Error().Err(err).Msg("load evaluations")
		return internalError(c)
	}

	var out []evaluationJSON
	for _, r := range results {
		if asset != "" && r.Asset != asset {
			continue
		}
		if req.Model != "" && r.Model != req.Model {
			continue
		}
		ej := evaluationJSON{
			ID:      idhash.ComputeEvaluationID(r.Asset, r.Model, r.Start, r.End),
			Asset:   r.Asset.String(),
			Model:   r.Model,
			Start:   r.Start,
			End:     r.End,
			MSE:     r.MSE,
			Scored:  r.Scored,
			Skipped: r.Skipped,
		}
		if req.Points {
			for _, p := range r.Points {
				ej.Points = append(ej.Points, pointJSON(p))
			}
		}
		out = append(out, ej)
	}
	return listResponse(c, out)
}

var (
	minTime = time.Unix(0, 0).UTC()
	maxTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// parseSeries resolves the asset and an inclusive [start, end] window. Open
// ends are unbounded.
func parseSeries(req *seriesRequest) (domain.Asset, time.Time, time.Time, []FieldError) {
	var errs []FieldError
	asset, err := domain.ParseAsset(req.Asset)
	if err != nil {
		errs = append(errs, FieldError{Code: "ERR_ASSET", Field: "asset", Message: err.Error()})
	}

	start, end := minTime, maxTime
	if req.Start != "" {
		if start, err = normalization.Parse(req.Start); err != nil {
			errs = append(errs, FieldError{Code: "ERR_TIME", Field: "start", Message: err.Error()})
		}
	}
	if req.End != "" {
		if end, err = normalization.Parse(req.End); err != nil {
			errs = append(errs, FieldError{Code: "ERR_TIME", Field: "end", Message: err.Error()})
		}
	}
	if len(errs) == 0 && end.Before(start) {
		errs = append(errs, FieldError{Code: "ERR_RANGE", Field: "end", Message: "end is before start"})
	}
	return asset, start, end, errs
}
