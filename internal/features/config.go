// Package features turns aligned rows into fixed-length lookback/lookahead
// samples with an authority score.
package features

import (
	"errors"
	"fmt"
	"time"
)

// StepPolicy selects how window offsets are resolved.
type StepPolicy string

const (
	// CalendarStep requires a price at exactly t ± k·Step.
	CalendarStep StepPolicy = "calendar"
	// RowStep takes the neighbouring rows of the series by position.
	RowStep StepPolicy = "row"
)

// Target selects what the lookahead window is regressed as.
type Target string

const (
	// TargetAbsolute regresses the future price itself.
	TargetAbsolute Target = "absolute"
	// TargetRelative regresses (future - current) / future.
	TargetRelative Target = "relative"
)

// Transform maps a future price to the regression target.
func (t Target) Transform(current, future float64) float64 {
	if t == TargetRelative {
		if future == 0 {
			return 0
		}
		return (future - current) / future
	}
	return future
}

// Invert maps a regression output back to a price.
func (t Target) Invert(current, y float64) float64 {
	if t == TargetRelative {
		if y == 1 {
			return current
		}
		return current / (1 - y)
	}
	return y
}

// Config describes the windows built around each anchor.
type Config struct {
	Lookback  int           // W >= 1, includes the anchor price
	Lookahead int           // H >= 1, strictly after the anchor
	Step      time.Duration // s, calendar spacing between window points
	Policy    StepPolicy
	Target    Target
}

// DefaultConfig returns W=1, H=23, s=1h, calendar step, absolute target.
func DefaultConfig() Config {
	return Config{
		Lookback:  1,
		Lookahead: 23,
		Step:      time.Hour,
		Policy:    CalendarStep,
		Target:    TargetAbsolute,
	}
}

var ErrInvalidConfig = errors.New("invalid feature config")

// Validate checks the window parameters.
func (c Config) Validate() error {
	if c.Lookback < 1 {
		return fmt.Errorf("%w: lookback %d < 1", ErrInvalidConfig, c.Lookback)
	}
	if c.Lookahead < 1 {
		return fmt.Errorf("%w: lookahead %d < 1", ErrInvalidConfig, c.Lookahead)
	}
	if c.Step <= 0 {
		return fmt.Errorf("%w: step must be positive", ErrInvalidConfig)
	}
	if c.Policy != CalendarStep && c.Policy != RowStep {
		return fmt.Errorf("%w: policy %q", ErrInvalidConfig, c.Policy)
	}
	if c.Target != TargetAbsolute && c.Target != TargetRelative {
		return fmt.Errorf("%w: target %q", ErrInvalidConfig, c.Target)
	}
	return nil
}
