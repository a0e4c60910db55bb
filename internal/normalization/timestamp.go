package normalization

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"social-volatility/internal/domain"
)

// Grain is the truncation resolution applied before two series are joined.
type Grain string

const (
	GrainMinute Grain = "minute"
	GrainHour   Grain = "hour"
)

// Duration returns the length of one grain step.
func (g Grain) Duration() time.Duration {
	if g == GrainHour {
		return time.Hour
	}
	return time.Minute
}

// IsValid checks if the grain is a supported value.
func (g Grain) IsValid() bool {
	return g == GrainMinute || g == GrainHour
}

// Rounding selects how an instant is mapped onto its grain.
type Rounding string

const (
	// RoundingFloor truncates sub-grain components.
	RoundingFloor Rounding = "floor"
	// RoundingNearest rounds to the nearest hour (minute >= 30 advances). Hour grain only.
	RoundingNearest Rounding = "nearest"
)

// IsValid checks if the rounding policy is a supported value.
func (r Rounding) IsValid() bool {
	return r == RoundingFloor || r == RoundingNearest
}

// ErrNearestNeedsHour is returned when nearest rounding is paired with minute grain.
var ErrNearestNeedsHour = errors.New("nearest rounding requires hour grain")

// Policy pairs a grain with a rounding rule. One policy is chosen per call site.
type Policy struct {
	Grain    Grain
	Rounding Rounding
}

// LoadPolicy is applied to raw inputs at load time. Coarser grains are left
// to the join.
var LoadPolicy = Policy{Grain: GrainMinute, Rounding: RoundingFloor}

// Validate checks that the combination is supported.
func (p Policy) Validate() error {
	if !p.Grain.IsValid() {
		return fmt.Errorf("invalid grain %q", p.Grain)
	}
	if !p.Rounding.IsValid() {
		return fmt.Errorf("invalid rounding %q", p.Rounding)
	}
	if p.Rounding == RoundingNearest && p.Grain != GrainHour {
		return ErrNearestNeedsHour
	}
	return nil
}

// Apply maps t onto the policy's grain.
func (p Policy) Apply(t time.Time) time.Time {
	if p.Rounding == RoundingNearest && p.Grain == GrainHour {
		return RoundHour(t)
	}
	return Floor(t, p.Grain)
}

// OnGrain reports whether t already sits exactly on a grain boundary.
func (p Policy) OnGrain(t time.Time) bool {
	return Floor(t, p.Grain).Equal(t)
}

// StripZone keeps the wall-clock fields of t and drops its offset.
// All canonical instants live in the UTC location.
func StripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// FromEpoch converts epoch seconds to a canonical instant.
func FromEpoch(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Floor truncates seconds and sub-seconds (and minutes for hour grain).
func Floor(t time.Time, g Grain) time.Time {
	t = StripZone(t)
	switch g {
	case GrainHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	}
}

// RoundHour rounds to the nearest hour: minute >= 30 advances one hour, else truncates.
// Seconds do not participate.
func RoundHour(t time.Time) time.Time {
	floored := Floor(t, GrainHour)
	if t.Minute() >= 30 {
		return floored.Add(time.Hour)
	}
	return floored
}

// layouts accepted for string timestamps, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	time.RubyDate, // Twitter API created_at: "Mon Jan 02 15:04:05 -0700 2006"
	"2006-01-02",
}

// Epoch seconds outside years 0001..9999 are rejected.
var (
	minEpoch = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxEpoch = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix()
)

// Parse converts a raw timestamp (epoch seconds or ISO-like string) into a
// canonical instant without applying any grain.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &domain.ParseError{Field: "timestamp", Value: raw, Err: errors.New("empty")}
	}

	if isInteger(s) {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, &domain.ParseError{Field: "timestamp", Value: raw, Err: err}
		}
		if sec < minEpoch || sec > maxEpoch {
			return time.Time{}, &domain.ParseError{Field: "timestamp", Value: raw, Err: errors.New("epoch out of range")}
		}
		return FromEpoch(sec), nil
	}
	// pandas writes epoch columns as floats once NaNs appear upstream.
	if f, err := strconv.ParseFloat(s, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, &domain.ParseError{Field: "timestamp", Value: raw, Err: errors.New("not a finite number")}
		}
		if f < float64(minEpoch) || f > float64(maxEpoch) {
			return time.Time{}, &domain.ParseError{Field: "timestamp", Value: raw, Err: errors.New("epoch out of range")}
		}
		return FromEpoch(int64(f)), nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return StripZone(t), nil
		}
	}
	return time.Time{}, &domain.ParseError{Field: "timestamp", Value: raw, Err: errors.New("unrecognized format")}
}

// Normalize parses raw and applies the policy in one step.
func Normalize(raw string, p Policy) (time.Time, error) {
	t, err := Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return p.Apply(t), nil
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' || s[0] == '+' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
