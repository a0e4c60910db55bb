package domain

import (
	"fmt"
	"time"
)

// PriceObservation is one minute bar of an asset's price history.
// Timestamp is a canonical instant: wall-clock fields in the UTC location.
type PriceObservation struct {
	Asset     Asset     // tracked cryptocurrency
	Timestamp time.Time // bar open time
	Open      float64   // open price
}

// DateRange is an inclusive calendar range of collected data.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// dateLabelLayout matches the date component of dataset file names.
const dateLabelLayout = "2006_01_02"

// Label renders the range the way dataset files are named: 2022_03_05-2022_03_11.
func (r DateRange) Label() string {
	return r.Start.Format(dateLabelLayout) + "-" + r.End.Format(dateLabelLayout)
}

// String returns the label.
func (r DateRange) String() string {
	return r.Label()
}

// ParseDateRange parses a label produced by Label.
func ParseDateRange(label string) (DateRange, error) {
	if len(label) != 2*len(dateLabelLayout)+1 || label[len(dateLabelLayout)] != '-' {
		return DateRange{}, fmt.Errorf("invalid date range %q", label)
	}
	start, err := time.Parse(dateLabelLayout, label[:len(dateLabelLayout)])
	if err != nil {
		return DateRange{}, fmt.Errorf("parse range start: %w", err)
	}
	end, err := time.Parse(dateLabelLayout, label[len(dateLabelLayout)+1:])
	if err != nil {
		return DateRange{}, fmt.Errorf("parse range end: %w", err)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("invalid date range %q: end before start", label)
	}
	return DateRange{Start: start, End: end}, nil
}
