package normalization

import (
	"errors"
	"testing"
	"time"

	"social-volatility/internal/domain"
)

func TestParse_EpochSeconds(t *testing.T) {
	got, err := Parse("1646438400")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2022, 3, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParse_StripsOffsetKeepingWallClock(t *testing.T) {
	got, err := Parse("2022-03-05 23:59:58+02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2022, 3, 5, 23, 59, 58, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("expected %v in UTC, got %v", want, got)
	}
}

func TestParse_Formats(t *testing.T) {
	want := time.Date(2022, 3, 5, 10, 15, 30, 0, time.UTC)
	inputs := []string{
		"2022-03-05T10:15:30Z",
		"2022-03-05T10:15:30+00:00",
		"2022-03-05 10:15:30",
		"2022-03-05T10:15:30",
		"Sat Mar 05 10:15:30 +0000 2022",
	}
	for _, in := range inputs {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{
		"", "yesterday", "2022-13-45 99:00:00",
		"NaN", "nan", "Inf", "-Infinity", "1e300", "1e400",
		"9223372036854775807", "-99999999999999",
	} {
		_, err := Parse(in)
		if !errors.Is(err, domain.ErrParse) {
			t.Errorf("%q: expected ErrParse, got %v", in, err)
		}
		var pe *domain.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%q: expected *ParseError, got %T", in, err)
		}
	}
}

func TestParse_FloatEpoch(t *testing.T) {
	got, err := Parse("1646438400.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2022, 3, 5, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFloor_Minute(t *testing.T) {
	in := time.Date(2022, 3, 5, 10, 15, 30, 123456, time.UTC)
	got := Floor(in, GrainMinute)
	want := time.Date(2022, 3, 5, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFloor_Hour(t *testing.T) {
	in := time.Date(2022, 3, 5, 10, 59, 59, 0, time.UTC)
	got := Floor(in, GrainHour)
	want := time.Date(2022, 3, 5, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFloor_Idempotent(t *testing.T) {
	instants := []time.Time{
		time.Date(2022, 3, 5, 10, 15, 30, 999, time.UTC),
		time.Date(2022, 3, 5, 23, 59, 59, 0, time.FixedZone("x", 3600)),
		time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, g := range []Grain{GrainMinute, GrainHour} {
		for _, in := range instants {
			once := Floor(in, g)
			twice := Floor(once, g)
			if !once.Equal(twice) {
				t.Errorf("grain %s: floor not idempotent for %v: %v vs %v", g, in, once, twice)
			}
		}
	}
}

func TestRoundHour(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2022, 3, 5, 10, 29, 59, 0, time.UTC), time.Date(2022, 3, 5, 10, 0, 0, 0, time.UTC)},
		{time.Date(2022, 3, 5, 10, 30, 0, 0, time.UTC), time.Date(2022, 3, 5, 11, 0, 0, 0, time.UTC)},
		{time.Date(2022, 3, 5, 23, 45, 0, 0, time.UTC), time.Date(2022, 3, 6, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := RoundHour(tt.in); !got.Equal(tt.want) {
			t.Errorf("RoundHour(%v): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestPolicy_FloorAndNearestDiffer(t *testing.T) {
	in := time.Date(2022, 3, 5, 10, 45, 0, 0, time.UTC)
	floor := Policy{Grain: GrainHour, Rounding: RoundingFloor}.Apply(in)
	nearest := Policy{Grain: GrainHour, Rounding: RoundingNearest}.Apply(in)
	if floor.Equal(nearest) {
		t.Fatalf("expected different results, both %v", floor)
	}
	if floor.Hour() != 10 || nearest.Hour() != 11 {
		t.Errorf("unexpected hours: floor=%d nearest=%d", floor.Hour(), nearest.Hour())
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := (Policy{Grain: GrainMinute, Rounding: RoundingFloor}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Policy{Grain: GrainMinute, Rounding: RoundingNearest}).Validate(); !errors.Is(err, ErrNearestNeedsHour) {
		t.Errorf("expected ErrNearestNeedsHour, got %v", err)
	}
	if err := (Policy{Grain: "day", Rounding: RoundingFloor}).Validate(); err == nil {
		t.Error("expected error for unknown grain")
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("2022-03-05 10:15:30+00:00", Policy{Grain: GrainMinute, Rounding: RoundingFloor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2022, 3, 5, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSortTweets_Deterministic(t *testing.T) {
	t0 := time.Date(2022, 3, 5, 10, 0, 0, 0, time.UTC)
	tweets := []domain.TweetRecord{
		{CreatedAt: t0.Add(time.Minute), Text: "b"},
		{CreatedAt: t0, Text: "z"},
		{CreatedAt: t0, Text: "a"},
	}
	SortTweets(tweets)
	if tweets[0].Text != "a" || tweets[1].Text != "z" || tweets[2].Text != "b" {
		t.Errorf("unexpected order: %q %q %q", tweets[0].Text, tweets[1].Text, tweets[2].Text)
	}
}
