package lookup

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
	"social-volatility/internal/normalization"
)

// ErrNoPriceData is returned when a series has no observations.
var ErrNoPriceData = errors.New("no price data available")

// Series is an ordered price series with an exact-match index keyed by
// canonical instant. Keys are unique: on duplicate timestamps the last
// observation wins.
type Series struct {
	asset      domain.Asset
	points     []domain.PriceObservation
	index      map[time.Time]int
	duplicates int
}

// NewSeries builds a Series from observations. Unsorted input is sorted
// (stably) on a copy first. Duplicates are collapsed last-write-wins and
// logged as a data-quality warning.
func NewSeries(obs []domain.PriceObservation, logger zerolog.Logger) *Series {
	if !normalization.IsSorted(obs) {
		logger.Warn().Int("observations", len(obs)).Msg("price observations out of order, sorting")
		sorted := make([]domain.PriceObservation, len(obs))
		copy(sorted, obs)
		normalization.SortObservations(sorted)
		obs = sorted
	}

	s := &Series{
		points: make([]domain.PriceObservation, 0, len(obs)),
		index:  make(map[time.Time]int, len(obs)),
	}
	if len(obs) > 0 {
		s.asset = obs[0].Asset
	}

	for _, o := range obs {
		key := o.Timestamp.UTC()
		if i, exists := s.index[key]; exists {
			s.duplicates++
			logger.Warn().
				Str("asset", o.Asset.String()).
				Time("timestamp", key).
				Float64("previous", s.points[i].Open).
				Float64("replacement", o.Open).
				Msg("duplicate price timestamp, keeping last")
			s.points[i] = o
			continue
		}
		s.index[key] = len(s.points)
		s.points = append(s.points, o)
	}

	return s
}

// Asset returns the asset of the first observation.
func (s *Series) Asset() domain.Asset {
	return s.asset
}

// Len returns the number of unique timestamps.
func (s *Series) Len() int {
	return len(s.points)
}

// Duplicates returns how many observations were replaced by a later duplicate.
func (s *Series) Duplicates() int {
	return s.duplicates
}

// Observation returns the i-th observation in timestamp order.
func (s *Series) Observation(i int) domain.PriceObservation {
	return s.points[i]
}

// At returns the price at exactly t.
func (s *Series) At(t time.Time) (float64, bool) {
	i, ok := s.index[t.UTC()]
	if !ok {
		return 0, false
	}
	return s.points[i].Open, true
}

// IndexOf returns the position of t in the ordered series.
func (s *Series) IndexOf(t time.Time) (int, bool) {
	i, ok := s.index[t.UTC()]
	return i, ok
}

// Range returns the first and last timestamps. Returns ErrNoPriceData if empty.
func (s *Series) Range() (time.Time, time.Time, error) {
	if len(s.points) == 0 {
		return time.Time{}, time.Time{}, ErrNoPriceData
	}
	return s.points[0].Timestamp, s.points[len(s.points)-1].Timestamp, nil
}
