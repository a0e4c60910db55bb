package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"social-volatility/internal/domain"
	"social-volatility/internal/normalization"
)

// Sentiment file columns.
const (
	colCreatedAt = "created_at"
	colCompound  = "vader_sentiment_compound"
	colRetweets  = "retweet_count"
	colFavorites = "favorite_count"
	colFollowers = "followers_count"
	colText      = "text"
)

// LoadSentiment reads the scored tweet file of a corpus and normalizes
// created_at with policy. Rows with an empty or NaN compound are kept with a
// nil Sentiment; the aligner drops them.
func (l *Loader) LoadSentiment(ctx context.Context, corpus string, policy normalization.Policy) ([]domain.TweetRecord, LoadStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, LoadStats{}, err
	}
	if err := policy.Validate(); err != nil {
		return nil, LoadStats{}, err
	}

	asset, aerr := domain.ParseAsset(corpus)
	if aerr != nil {
		asset = domain.Asset(corpus)
	}

	path := l.sentimentPath(corpus)
	if _, ok := firstExisting([]string{path}); !ok {
		return nil, LoadStats{}, notFound(asset, "", []string{path})
	}

	wrap := func(err error) error {
		return &domain.DatasetError{Asset: asset, Path: path, Err: err}
	}

	table, err := openTable(path)
	if err != nil {
		return nil, LoadStats{Path: path}, wrap(err)
	}
	defer table.Close()

	createdCol, err := table.require(colCreatedAt)
	if err != nil {
		return nil, LoadStats{Path: path}, wrap(err)
	}
	compoundCol, err := table.require(colCompound)
	if err != nil {
		return nil, LoadStats{Path: path}, wrap(err)
	}
	cols := sentimentColumns{
		created:   createdCol,
		compound:  compoundCol,
		retweets:  table.optional(colRetweets),
		favorites: table.optional(colFavorites),
		followers: table.optional(colFollowers),
		text:      table.optional(colText),
	}
	for name, idx := range map[string]int{colRetweets: cols.retweets, colFavorites: cols.favorites, colFollowers: cols.followers} {
		if idx < 0 {
			l.logger.Warn().Str("corpus", corpus).Str("column", name).Msg("engagement column missing, using zero")
		}
	}

	stats := LoadStats{Path: path}
	var (
		out      []domain.TweetRecord
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

		tw, perr := parseTweetRow(record, cols, policy, stats.Rows)
		if perr != nil {
			stats.Failed++
			if firstErr == nil {
				firstErr = perr
			}
			l.logger.Debug().Err(perr).Str("corpus", corpus).Msg("dropping tweet row")
			continue
		}
		out = append(out, tw)
	}
	stats.Loaded = len(out)

	if stats.Failed > 0 {
		l.logger.Warn().
			Str("corpus", corpus).
			Int("failed", stats.Failed).
			Int("rows", stats.Rows).
			Msg("tweet rows dropped")
	}
	if err := l.checkThreshold(stats, firstErr); err != nil {
		return nil, stats, wrap(err)
	}

	normalization.SortTweets(out)

	l.logger.Info().Str("corpus", corpus).Int("loaded", stats.Loaded).Msg("tweets loaded")
	return out, stats, nil
}

type sentimentColumns struct {
	created, compound, retweets, favorites, followers, text int
}

func parseTweetRow(record []string, cols sentimentColumns, policy normalization.Policy, row int) (domain.TweetRecord, error) {
	rawCreated := field(record, cols.created)
	created, err := normalization.Normalize(rawCreated, policy)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			pe.Field = colCreatedAt
			pe.Row = row
			return domain.TweetRecord{}, pe
		}
		return domain.TweetRecord{}, &domain.ParseError{Field: colCreatedAt, Value: rawCreated, Row: row, Err: err}
	}

	sentiment, err := parseCompound(field(record, cols.compound))
	if err != nil {
		return domain.TweetRecord{}, &domain.ParseError{Field: colCompound, Value: field(record, cols.compound), Row: row, Err: err}
	}

	var eng domain.Engagement
	counters := []struct {
		name string
		idx  int
		dst  *int64
	}{
		{colRetweets, cols.retweets, &eng.RetweetCount},
		{colFavorites, cols.favorites, &eng.FavoriteCount},
		{colFollowers, cols.followers, &eng.FollowerCount},
	}
	for _, c := range counters {
		raw := field(record, c.idx)
		n, err := parseCount(raw)
		if err != nil {
			return domain.TweetRecord{}, &domain.ParseError{Field: c.name, Value: raw, Row: row, Err: err}
		}
		*c.dst = n
	}

	return domain.TweetRecord{
		CreatedAt:  created,
		Text:       field(record, cols.text),
		Engagement: eng,
		Sentiment:  sentiment,
	}, nil
}

// parseCompound returns nil for an empty or NaN cell.
func parseCompound(raw string) (*float64, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	if v < -1 || v > 1 {
		return nil, errors.New("compound score outside [-1, 1]")
	}
	return &v, nil
}

// parseCount accepts integer or integral float cells; empty is zero.
func parseCount(raw string) (int64, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, errors.New("negative count")
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, errors.New("count must be a non-negative integer")
	}
	return int64(f), nil
}
