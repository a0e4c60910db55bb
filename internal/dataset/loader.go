// Package dataset replays previously collected price and sentiment files.
// There is no network fallback: a missing file is a DatasetNotFound failure
// for that asset/range only.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"social-volatility/internal/domain"
)

// Errors returned by loaders, always wrapped in a *domain.DatasetError.
var (
	ErrMissingColumn  = errors.New("missing required column")
	ErrParseThreshold = errors.New("parse failure rate above threshold")
)

// DefaultMaxParseFailureRate is used when Loader.MaxParseFailureRate is zero.
const DefaultMaxParseFailureRate = 0.01

// LoadStats counts rows read from one file.
type LoadStats struct {
	Path   string
	Rows   int // data rows read, excluding header
	Loaded int // rows turned into records
	Failed int // rows dropped with a ParseError
}

// FailureRate returns Failed / Rows, 0 for an empty file.
func (s LoadStats) FailureRate() float64 {
	if s.Rows == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Rows)
}

// Loader reads CSV checkpoints from a data directory laid out as
//
//	<dir>/raw/crypto/{asset}_{YYYY_MM_DD}-{YYYY_MM_DD}_minute.csv
//	<dir>/processed/twitter/{corpus}_sentiment.csv
type Loader struct {
	dir                 string
	maxParseFailureRate float64
	logger              zerolog.Logger
}

// NewLoader creates a loader rooted at dir.
// A maxParseFailureRate of zero selects DefaultMaxParseFailureRate; a negative
// value disables the threshold.
func NewLoader(dir string, maxParseFailureRate float64, logger zerolog.Logger) *Loader {
	if maxParseFailureRate == 0 {
		maxParseFailureRate = DefaultMaxParseFailureRate
	}
	return &Loader{
		dir:                 dir,
		maxParseFailureRate: maxParseFailureRate,
		logger:              logger.With().Str("component", "dataset").Logger(),
	}
}

// Dir returns the data directory.
func (l *Loader) Dir() string {
	return l.dir
}

// checkThreshold fails the file when too many rows were dropped.
func (l *Loader) checkThreshold(stats LoadStats, firstErr error) error {
	if l.maxParseFailureRate < 0 || stats.Failed == 0 {
		return nil
	}
	if stats.FailureRate() > l.maxParseFailureRate {
		return fmt.Errorf("%w: %d of %d rows failed: %w", ErrParseThreshold, stats.Failed, stats.Rows, firstErr)
	}
	return nil
}

// firstExisting returns the first candidate path that exists.
func firstExisting(candidates []string) (string, bool) {
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// csvTable is an opened CSV file with a header index.
type csvTable struct {
	f       *os.File
	r       *csv.Reader
	columns map[string]int
}

func openTable(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
		if _, exists := columns[name]; !exists {
			columns[name] = i
		}
	}

	return &csvTable{f: f, r: r, columns: columns}, nil
}

func (t *csvTable) Close() error {
	return t.f.Close()
}

// require returns the index of a named column.
func (t *csvTable) require(name string) (int, error) {
	i, ok := t.columns[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return i, nil
}

// optional returns the index of a named column or -1.
func (t *csvTable) optional(name string) int {
	if i, ok := t.columns[name]; ok {
		return i
	}
	return -1
}

// field returns record[i] or "" when the row is short.
func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// notFound wraps a missing-file condition for an asset.
func notFound(asset domain.Asset, rng string, candidates []string) error {
	return &domain.DatasetError{
		Asset: asset,
		Range: rng,
		Path:  strings.Join(candidates, " | "),
		Err:   domain.ErrDatasetNotFound,
	}
}

// pricePathCandidates lists file names tried for an asset/range, ticker first.
func (l *Loader) pricePathCandidates(asset domain.Asset, r domain.DateRange) []string {
	base := filepath.Join(l.dir, "raw", "crypto")
	prefixes := []string{strings.ToLower(asset.String())}
	if corpus := asset.Corpus(); corpus != prefixes[0] {
		prefixes = append(prefixes, corpus)
	}

	var out []string
	for _, p := range prefixes {
		out = append(out, filepath.Join(base, fmt.Sprintf("%s_%s_minute.csv", p, r.Label())))
		out = append(out, filepath.Join(base, fmt.Sprintf("%s_%s.csv", p, r.Label())))
	}
	return out
}

// sentimentPath returns the sentiment file for a corpus.
func (l *Loader) sentimentPath(corpus string) string {
	return filepath.Join(l.dir, "processed", "twitter", fmt.Sprintf("%s_sentiment.csv", corpus))
}
