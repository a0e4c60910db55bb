package pipeline

import (
	"fmt"

	"social-volatility/internal/domain"
	"social-volatility/internal/reporting"
)

// SufficiencyCheck represents one data sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// SufficiencyResult contains every check plus the per-asset failures.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
	Errors  []string
}

// CheckSufficiency evaluates whether a preparation run produced enough data
// to train and score models:
//   - every requested asset was prepared
//   - every prepared asset matched at least one tweet
//   - every prepared asset emitted at least minSamples samples
func CheckSufficiency(res *Result, requested []domain.Asset, minSamples int) *SufficiencyResult {
	out := &SufficiencyResult{AllPass: true, Errors: res.ErrorStrings()}

	add := func(c SufficiencyCheck) {
		out.Checks = append(out.Checks, c)
		if !c.Pass {
			out.AllPass = false
		}
	}

	add(SufficiencyCheck{
		Name:      "Assets prepared",
		Threshold: fmt.Sprintf("= %d", len(requested)),
		Actual:    fmt.Sprintf("%d", len(res.Assets)),
		Pass:      len(res.Assets) == len(requested),
	})

	for _, a := range res.Assets {
		add(SufficiencyCheck{
			Name:      fmt.Sprintf("%s aligned tweets", a.Asset),
			Threshold: ">= 1",
			Actual:    fmt.Sprintf("%d", a.Alignment.Matched),
			Pass:      a.Alignment.Matched >= 1,
		})
		add(SufficiencyCheck{
			Name:      fmt.Sprintf("%s samples", a.Asset),
			Threshold: fmt.Sprintf(">= %d", minSamples),
			Actual:    fmt.Sprintf("%d", len(a.Samples)),
			Pass:      len(a.Samples) >= minSamples,
		})
	}

	return out
}

// DataQuality converts the result into its report section.
func (s *SufficiencyResult) DataQuality() reporting.DataQualitySection {
	dq := reporting.DataQualitySection{
		AllChecksPassed: s.AllPass,
		DatasetErrors:   s.Errors,
	}
	for _, c := range s.Checks {
		dq.SufficiencyChecks = append(dq.SufficiencyChecks, reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		})
	}
	return dq
}
