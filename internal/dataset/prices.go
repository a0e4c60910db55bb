package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"social-volatility/internal/domain"
	"social-volatility/internal/normalization"
)

// ctxCheckEvery is how many rows are read between context checks.
const ctxCheckEvery = 4096

// LoadPrices reads the minute-bar file for an asset and date range.
// Columns "time" (epoch seconds) and "open" are required; others are ignored.
// Timestamps are floored to the minute and the result is sorted by timestamp.
func (l *Loader) LoadPrices(ctx context.Context, asset domain.Asset, r domain.DateRange) ([]domain.PriceObservation, LoadStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, LoadStats{}, err
	}

	candidates := l.pricePathCandidates(asset, r)
	path, ok := firstExisting(candidates)
	if !ok {
		return nil, LoadStats{}, notFound(asset, r.Label(), candidates)
	}

	wrap := func(err error) error {
		return &domain.DatasetError{Asset: asset, Range: r.Label(), Path: path, Err: err}
	}

	table, err := openTable(path)
	if err != nil {
		return nil, LoadStats{Path: path}, wrap(err)
	}
	defer table.Close()

	timeCol, err := table.require("time")
	if err != nil {
		return nil, LoadStats{Path: path}, wrap(err)
	}
	openCol, err := table.require("open")
	if err != nil {
		return nil, LoadStats{Path: path}, wrap(err)
	}

	stats := LoadStats{Path: path}
	var (
		out      []domain.PriceObservation
		firstErr error
	)

	for {
		record, err := table.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, wrap(fmt.Errorf("read row %d: %w", stats.Rows+1, err))
		}
		stats.Rows++

		if stats.Rows%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		obs, perr := parsePriceRow(asset, record, timeCol, openCol, stats.Rows)
		if perr != nil {
			stats.Failed++
			if firstErr == nil {
				firstErr = perr
			}
			l.logger.Debug().Err(perr).Str("asset", asset.String()).Str("path", path).Msg("dropping price row")
			continue
		}
		out = append(out, obs)
	}
	stats.Loaded = len(out)

	if stats.Failed > 0 {
		l.logger.Warn().
			Str("asset", asset.String()).
			Str("range", r.Label()).
			Int("failed", stats.Failed).
			Int("rows", stats.Rows).
			Msg("price rows dropped")
	}
	if err := l.checkThreshold(stats, firstErr); err != nil {
		return nil, stats, wrap(err)
	}

	normalization.SortObservations(out)

	l.logger.Info().
		Str("asset", asset.String()).
		Str("range", r.Label()).
		Int("loaded", stats.Loaded).
		Msg("prices loaded")

	return out, stats, nil
}

// LoadPriceRanges loads and concatenates several ranges in order.
// Per-range stats are returned in the same order as ranges.
func (l *Loader) LoadPriceRanges(ctx context.Context, asset domain.Asset, ranges []domain.DateRange) ([][]domain.PriceObservation, []LoadStats, error) {
	out := make([][]domain.PriceObservation, 0, len(ranges))
	stats := make([]LoadStats, 0, len(ranges))
	for _, r := range ranges {
		obs, st, err := l.LoadPrices(ctx, asset, r)
		if err != nil {
			return nil, stats, err
		}
		out = append(out, obs)
		stats = append(stats, st)
	}
	return out, stats, nil
}

func parsePriceRow(asset domain.Asset, record []string, timeCol, openCol, row int) (domain.PriceObservation, error) {
	rawTime := field(record, timeCol)
	ts, err := normalization.Normalize(rawTime, normalization.LoadPolicy)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			pe.Field = "time"
			pe.Row = row
			return domain.PriceObservation{}, pe
		}
		return domain.PriceObservation{}, &domain.ParseError{Field: "time", Value: rawTime, Row: row, Err: err}
	}

	rawOpen := field(record, openCol)
	open, err := strconv.ParseFloat(rawOpen, 64)
	if err != nil {
		return domain.PriceObservation{}, &domain.ParseError{Field: "open", Value: rawOpen, Row: row, Err: err}
	}
	if math.IsNaN(open) || math.IsInf(open, 0) || open <= 0 {
		return domain.PriceObservation{}, &domain.ParseError{Field: "open", Value: rawOpen, Row: row, Err: errors.New("price must be positive")}
	}

	return domain.PriceObservation{Asset: asset, Timestamp: ts, Open: open}, nil
}
