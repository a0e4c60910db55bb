package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Social Volatility Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Settings
	s := r.Settings
	sb.WriteString("## Settings\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Alignment | %s / %s |\n", s.Grain, s.Rounding))
	sb.WriteString(fmt.Sprintf("| Volatility window | %d |\n", s.VolatilityWindow))
	sb.WriteString(fmt.Sprintf("| Lookback / Lookahead | %d / %d |\n", s.Lookback, s.Lookahead))
	sb.WriteString(fmt.Sprintf("| Step | %s (%s) |\n", s.Step, s.StepPolicy))
	sb.WriteString(fmt.Sprintf("| Target | %s |\n", s.Target))
	if len(s.Ranges) > 0 {
		sb.WriteString(fmt.Sprintf("| Ranges | %s |\n", strings.Join(s.Ranges, ", ")))
	}
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if len(r.DataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.DataQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")

		if r.DataQuality.AllChecksPassed {
			sb.WriteString("**All checks passed.**\n\n")
		} else {
			sb.WriteString("**Some checks failed.** Results for failing assets are not meaningful.\n\n")
		}
	} else if len(r.DataQuality.DatasetErrors) == 0 {
		sb.WriteString("No data quality checks performed.\n\n")
	}

	if len(r.DataQuality.DatasetErrors) > 0 {
		sb.WriteString("### Dataset Errors\n\n")
		for _, e := range r.DataQuality.DatasetErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	// Inputs
	sb.WriteString("## Inputs\n\n")
	if len(r.Assets) > 0 {
		sb.WriteString("| Asset | Price Rows | Price Failed | Tweets | Tweet Failed |\n")
		sb.WriteString("|-------|------------|--------------|--------|--------------|\n")
		for _, a := range r.Assets {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n",
				a.Asset, a.PriceRows, a.PriceFailed, a.Tweets, a.TweetFailed))
		}
	} else {
		sb.WriteString("No assets processed.\n")
	}
	sb.WriteString("\n")

	// Alignment
	sb.WriteString("## Alignment\n\n")
	if len(r.Assets) > 0 {
		sb.WriteString("| Asset | Matched | Unmatched | Missing Sentiment | Duplicates | Coverage | Samples | Window Gaps |\n")
		sb.WriteString("|-------|---------|-----------|-------------------|------------|----------|---------|-------------|\n")
		for _, a := range r.Assets {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %.2f%% | %d | %d |\n",
				a.Asset, a.Matched, a.Unmatched, a.MissingSentiment, a.Duplicates,
				a.Coverage*100, a.Samples, a.AlignmentGap))
		}
	} else {
		sb.WriteString("No alignment data available.\n")
	}
	sb.WriteString("\n")

	// Volatility
	sb.WriteString("## Volatility\n\n")
	if len(r.Assets) > 0 {
		sb.WriteString("| Asset | Points | Mean | Max | Last |\n")
		sb.WriteString("|-------|--------|------|-----|------|\n")
		for _, a := range r.Assets {
			last := "n/a"
			if a.VolatilityLast != nil {
				last = fmt.Sprintf("%.6f", *a.VolatilityLast)
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %.6f | %.6f | %s |\n",
				a.Asset, a.VolatilityPoints, a.VolatilityMean, a.VolatilityMax, last))
		}
	} else {
		sb.WriteString("No volatility data available.\n")
	}
	sb.WriteString("\n")

	// Forecast
	sb.WriteString("## Forecast Evaluation\n\n")
	if len(r.Evaluations) > 0 {
		sb.WriteString("| Asset | Model | Start | End | MSE | Scored | Skipped |\n")
		sb.WriteString("|-------|-------|-------|-----|-----|--------|--------|\n")
		for _, e := range r.Evaluations {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.6g | %d | %d |\n",
				e.Asset, e.Model,
				e.Start.UTC().Format(TimeLayout), e.End.UTC().Format(TimeLayout),
				e.MSE, e.Scored, e.Skipped))
		}
	} else {
		sb.WriteString("No evaluations available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
