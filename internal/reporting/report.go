package reporting

import "time"

// Report is the run summary written to REPORT.md.
type Report struct {
	GeneratedAt time.Time
	Settings    Settings

	// Assets sorted by asset symbol.
	Assets []AssetRow

	// Evaluations sorted by asset, model, start.
	Evaluations []EvaluationRow

	DataQuality DataQualitySection
}

// Settings echoes the parameters the run used.
type Settings struct {
	Grain            string
	Rounding         string
	VolatilityWindow int
	Lookback         int
	Lookahead        int
	Step             time.Duration
	StepPolicy       string
	Target           string
	Ranges           []string
}

// DataQualitySection contains sufficiency checks and per-asset dataset errors.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	DatasetErrors     []string
	AllChecksPassed   bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// AssetRow holds the per-asset counters of one run.
type AssetRow struct {
	Asset string

	PriceRows   int
	PriceFailed int
	Tweets      int
	TweetFailed int

	// Alignment drops
	Matched          int
	Unmatched        int
	MissingSentiment int
	Duplicates       int
	Coverage         float64

	// Feature drops
	Samples      int
	AlignmentGap int

	VolatilityPoints int
	VolatilityMean   float64
	VolatilityMax    float64
	VolatilityLast   *float64
}

// EvaluationRow is one model/asset/test-range score.
type EvaluationRow struct {
	Asset   string
	Model   string
	Start   time.Time
	End     time.Time
	MSE     float64
	Scored  int
	Skipped int
}
