package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"social-volatility/internal/domain"
)

// TimeLayout is used for every timestamp column.
const TimeLayout = time.DateTime

// WriteSamplesCSV writes one row per sample with columns
// anchor_timestamp, price, sentiment, authority_score, lookback_1..W, lookahead_1..H.
// Samples whose windows do not match W and H are rejected.
func WriteSamplesCSV(w io.Writer, samples []domain.AlignedSample, lookback, lookahead int) error {
	cw := csv.NewWriter(w)

	header := []string{"anchor_timestamp", "price", "sentiment", "authority_score"}
	for i := 1; i <= lookback; i++ {
		header = append(header, "lookback_"+strconv.Itoa(i))
	}
	for i := 1; i <= lookahead; i++ {
		header = append(header, "lookahead_"+strconv.Itoa(i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, 0, len(header))
	for i, s := range samples {
		if len(s.Lookback) != lookback || len(s.Lookahead) != lookahead {
			return fmt.Errorf("sample %d: window lengths %d/%d, want %d/%d",
				i, len(s.Lookback), len(s.Lookahead), lookback, lookahead)
		}
		record = record[:0]
		record = append(record,
			s.Anchor.UTC().Format(TimeLayout),
			formatFloat(s.Price),
			formatOptional(s.Sentiment),
			formatFloat(s.Authority),
		)
		for _, v := range s.Lookback {
			record = append(record, formatFloat(v))
		}
		for _, v := range s.Lookahead {
			record = append(record, formatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteVolatilityCSV writes timestamp, price, log_return, volatility.
// Undefined values are left empty.
func WriteVolatilityCSV(w io.Writer, points []domain.VolatilityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "price", "log_return", "volatility"}); err != nil {
		return err
	}
	for _, p := range points {
		err := cw.Write([]string{
			p.Timestamp.UTC().Format(TimeLayout),
			formatFloat(p.Price),
			formatOptional(p.Return),
			formatOptional(p.Volatility),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEvaluationCSV writes one row per forecast point of every result:
// asset, model, timestamp, predicted, actual, rows, squared_error.
func WriteEvaluationCSV(w io.Writer, results []*domain.EvaluationResult) error {
	cw := csv.NewWriter(w)
	header := []string{"asset", "model", "timestamp", "predicted", "actual", "rows", "squared_error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		for _, p := range r.Points {
			diff := p.Predicted - p.Actual
			err := cw.Write([]string{
				r.Asset.String(),
				r.Model,
				p.Timestamp.UTC().Format(TimeLayout),
				formatFloat(p.Predicted),
				formatFloat(p.Actual),
				strconv.Itoa(p.Rows),
				formatFloat(diff * diff),
			})
			if err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEvaluationSummaryCSV writes one row per result.
func WriteEvaluationSummaryCSV(w io.Writer, rows []EvaluationRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"asset", "model", "start", "end", "mse", "scored", "skipped"}); err != nil {
		return err
	}
	for _, r := range rows {
		err := cw.Write([]string{
			r.Asset,
			r.Model,
			r.Start.UTC().Format(TimeLayout),
			r.End.UTC().Format(TimeLayout),
			formatFloat(r.MSE),
			strconv.Itoa(r.Scored),
			strconv.Itoa(r.Skipped),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
