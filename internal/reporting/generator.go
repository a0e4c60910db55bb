package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"social-volatility/internal/domain"
	"social-volatility/internal/storage"
	"social-volatility/internal/volatility"
)

// Generator produces reports from stored data.
type Generator struct {
	sampleStore     storage.SampleStore
	volatilityStore storage.VolatilityStore
	evaluationStore storage.EvaluationStore
	now             func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. evaluationStore may be nil
// when no forecast has been run.
func NewGenerator(
	sampleStore storage.SampleStore,
	volatilityStore storage.VolatilityStore,
	evaluationStore storage.EvaluationStore,
) *Generator {
	return &Generator{
		sampleStore:     sampleStore,
		volatilityStore: volatilityStore,
		evaluationStore: evaluationStore,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report for the given rows. Load and alignment counters
// come from the caller; sample counts, volatility summaries and evaluations
// are read back from the stores so a report can be rebuilt from a database.
func (g *Generator) Generate(ctx context.Context, rows []AssetRow, settings Settings) (*Report, error) {
	assets := make([]AssetRow, len(rows))
	copy(assets, rows)

	for i := range assets {
		asset := domain.Asset(assets[i].Asset)

		samples, err := g.sampleStore.GetByAsset(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("load samples for %s: %w", asset, err)
		}
		assets[i].Samples = len(samples)

		points, err := g.volatilityStore.GetByAsset(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("load volatility for %s: %w", asset, err)
		}
		summary := volatility.Summarize(derefPoints(points))
		assets[i].VolatilityPoints = summary.Points
		assets[i].VolatilityMean = summary.Mean
		assets[i].VolatilityMax = summary.Max
		assets[i].VolatilityLast = summary.Last
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].Asset < assets[j].Asset
	})

	var evals []EvaluationRow
	if g.evaluationStore != nil {
		results, err := g.evaluationStore.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load evaluations: %w", err)
		}
		evals = EvaluationRows(results)
	}

	return &Report{
		GeneratedAt: g.now(),
		Settings:    settings,
		Assets:      assets,
		Evaluations: evals,
	}, nil
}

// EvaluationRows converts results, sorted by asset, model, start.
func EvaluationRows(results []*domain.EvaluationResult) []EvaluationRow {
	rows := make([]EvaluationRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, EvaluationRow{
			Asset:   r.Asset.String(),
			Model:   r.Model,
			Start:   r.Start,
			End:     r.End,
			MSE:     r.MSE,
			Scored:  r.Scored,
			Skipped: r.Skipped,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Asset != rows[j].Asset {
			return rows[i].Asset < rows[j].Asset
		}
		if rows[i].Model != rows[j].Model {
			return rows[i].Model < rows[j].Model
		}
		return rows[i].Start.Before(rows[j].Start)
	})
	return rows
}

func derefPoints(points []*domain.VolatilityPoint) []domain.VolatilityPoint {
	out := make([]domain.VolatilityPoint, len(points))
	for i, p := range points {
		out[i] = *p
	}
	return out
}
