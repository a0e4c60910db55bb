package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"social-volatility/internal/config"
	"social-volatility/internal/dataset"
	"social-volatility/internal/domain"
	"social-volatility/internal/observability"
	"social-volatility/internal/reporting"
)

// Output file names.
const (
	ReportFile            = "REPORT.md"
	EvaluationFile        = "evaluation.csv"
	EvaluationSummaryFile = "evaluation_summary.csv"
)

// SamplesFile names the per-asset samples CSV.
func SamplesFile(asset domain.Asset) string {
	return "samples_" + strings.ToLower(asset.String()) + ".csv"
}

// VolatilityFile names the per-asset volatility CSV.
func VolatilityFile(asset domain.Asset) string {
	return "volatility_" + strings.ToLower(asset.String()) + ".csv"
}

// JobResult is what one Job.Run produced.
type JobResult struct {
	Prepare        *Result
	Evaluations    []*domain.EvaluationResult
	ForecastErrors []AssetError
	Sufficiency    *SufficiencyResult
	Report         *reporting.Report
	Files          []string
}

// Job runs preparation, optional forecasting and reporting end to end and
// writes every output file.
type Job struct {
	cfg       *config.Config
	assets    []domain.Asset
	runner    *Runner
	newModel  ModelFactory
	forecast  bool
	outputDir string
	clock     func() time.Time
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewJob builds a job from cfg writing into stores.
func NewJob(cfg *config.Config, stores Stores, logger zerolog.Logger) (*Job, error) {
	assets, err := cfg.AssetList()
	if err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	loader := dataset.NewLoader(cfg.DataDir, cfg.Loader.MaxParseFailureRate, logger)
	runner, err := NewRunner(loader, stores, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Job{
		cfg:       cfg,
		assets:    assets,
		runner:    runner,
		outputDir: cfg.OutputDir,
		clock:     func() time.Time { return time.Now().UTC() },
		metrics:   observability.DefaultMetrics,
		logger:    logger,
	}, nil
}

// WithForecast enables the train/test evaluation with models from newModel.
func (j *Job) WithForecast(newModel ModelFactory) *Job {
	j.newModel = newModel
	j.forecast = newModel != nil
	return j
}

// WithClock sets a custom clock function for deterministic output.
func (j *Job) WithClock(clock func() time.Time) *Job {
	j.clock = clock
	return j
}

// WithMetrics sets the metrics sink.
func (j *Job) WithMetrics(m *observability.Metrics) *Job {
	j.metrics = m
	j.runner.WithMetrics(m)
	return j
}

// WithOutputDir overrides the configured output directory.
func (j *Job) WithOutputDir(dir string) *Job {
	j.outputDir = dir
	return j
}

// Stores returns the stores the job writes to.
func (j *Job) Stores() Stores {
	return j.runner.Stores()
}

// Run executes the job and writes:
//   - samples_<asset>.csv and volatility_<asset>.csv per prepared asset
//   - evaluation.csv and evaluation_summary.csv when forecasting
//   - REPORT.md
func (j *Job) Run(ctx context.Context) (*JobResult, error) {
	start := time.Now()
	if err := os.MkdirAll(j.outputDir, 0o755); err != nil {
		return nil, err
	}

	prep, err := j.runner.RunAll(ctx, j.assets)
	if err != nil {
		return nil, err
	}
	out := &JobResult{Prepare: prep}

	for _, ar := range prep.Assets {
		fc := j.runner.opts.Features
		if err := j.writeFile(out, SamplesFile(ar.Asset), func(w io.Writer) error {
			return reporting.WriteSamplesCSV(w, ar.Samples, fc.Lookback, fc.Lookahead)
		}); err != nil {
			return nil, err
		}
		if err := j.writeFile(out, VolatilityFile(ar.Asset), func(w io.Writer) error {
			return reporting.WriteVolatilityCSV(w, ar.Volatility)
		}); err != nil {
			return nil, err
		}
	}

	if j.forecast {
		fopts, err := ForecastOptionsFromConfig(j.cfg)
		if err != nil {
			return nil, err
		}
		f := NewForecaster(j.newModel, j.Stores().Evaluations, fopts, j.logger).WithMetrics(j.metrics)
		out.Evaluations, out.ForecastErrors, err = f.RunAll(ctx, prep)
		if err != nil {
			return nil, err
		}
		if err := j.writeFile(out, EvaluationFile, func(w io.Writer) error {
			return reporting.WriteEvaluationCSV(w, out.Evaluations)
		}); err != nil {
			return nil, err
		}
		if err := j.writeFile(out, EvaluationSummaryFile, func(w io.Writer) error {
			return reporting.WriteEvaluationSummaryCSV(w, reporting.EvaluationRows(out.Evaluations))
		}); err != nil {
			return nil, err
		}
	}

	out.Sufficiency = CheckSufficiency(prep, j.assets, j.cfg.MinSamples)
	for _, e := range out.ForecastErrors {
		out.Sufficiency.Errors = append(out.Sufficiency.Errors, "forecast "+e.Error())
	}

	var evalStore = j.Stores().Evaluations
	if !j.forecast {
		evalStore = nil
	}
	report, err := reporting.NewGenerator(j.Stores().Samples, j.Stores().Volatility, evalStore).
		WithClock(j.clock).
		Generate(ctx, prep.Rows(), j.settings())
	if err != nil {
		return nil, err
	}
	report.DataQuality = out.Sufficiency.DataQuality()
	out.Report = report

	if err := j.writeFile(out, ReportFile, func(w io.Writer) error {
		_, err := io.WriteString(w, reporting.RenderMarkdown(report))
		return err
	}); err != nil {
		return nil, err
	}

	if len(prep.Assets) > 0 {
		j.metrics.LastSuccessfulPipeline.SetToCurrentTime()
	}
	j.logger.Info().
		Int("files", len(out.Files)).
		Int("evaluations", len(out.Evaluations)).
		Bool("sufficient", out.Sufficiency.AllPass).
		Dur("elapsed", time.Since(start)).
		Msg("job complete")
	return out, nil
}

func (j *Job) settings() reporting.Settings {
	return reporting.Settings{
		Grain:            j.cfg.Alignment.Grain,
		Rounding:         j.cfg.Alignment.Rounding,
		VolatilityWindow: j.cfg.Volatility.Window,
		Lookback:         j.cfg.Features.Lookback,
		Lookahead:        j.cfg.Features.Lookahead,
		Step:             j.cfg.Features.Step,
		StepPolicy:       j.cfg.Features.Policy,
		Target:           j.cfg.Features.Target,
		Ranges:           append([]string(nil), j.cfg.Ranges...),
	}
}

func (j *Job) writeFile(out *JobResult, name string, write func(io.Writer) error) error {
	path := filepath.Join(j.outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	out.Files = append(out.Files, path)
	return nil
}
