package idhash

import (
	"testing"
	"time"

	"social-volatility/internal/domain"
)

func TestComputeTweetID(t *testing.T) {
	at := time.Date(2022, 3, 5, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		name  string
		asset domain.Asset
		at    time.Time
		text  string
	}{
		{"plain", domain.AssetBTC, at, "bitcoin to the moon"},
		{"empty text", domain.AssetETH, at, ""},
		{"separator in text", domain.AssetBTC, at, "a|b|c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ComputeTweetID(tt.asset, tt.at, tt.text)
			if len(id) != 64 {
				t.Errorf("expected 64 hex chars, got %d", len(id))
			}
			if again := ComputeTweetID(tt.asset, tt.at, tt.text); again != id {
				t.Errorf("not deterministic: %s != %s", id, again)
			}
		})
	}
}

func TestComputeTweetID_Distinct(t *testing.T) {
	at := time.Date(2022, 3, 5, 10, 15, 0, 0, time.UTC)
	base := ComputeTweetID(domain.AssetBTC, at, "hello")

	if ComputeTweetID(domain.AssetETH, at, "hello") == base {
		t.Error("asset must change the id")
	}
	if ComputeTweetID(domain.AssetBTC, at.Add(time.Nanosecond), "hello") == base {
		t.Error("timestamp must change the id")
	}
	if ComputeTweetID(domain.AssetBTC, at, "hello!") == base {
		t.Error("text must change the id")
	}
	if ComputeTweetID(domain.AssetBTC, at.In(time.FixedZone("x", 3600)), "hello") != base {
		t.Error("the same instant in another zone must keep the id")
	}
}

func TestComputeEvaluationID(t *testing.T) {
	start := time.Date(2022, 3, 6, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	id := ComputeEvaluationID(domain.AssetBTC, "linear", start, end)
	if len(id) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(id))
	}
	if ComputeEvaluationID(domain.AssetBTC, "mean", start, end) == id {
		t.Error("model must change the id")
	}
	if ComputeEvaluationID(domain.AssetBTC, "linear", start, end.Add(time.Hour)) == id {
		t.Error("end must change the id")
	}
}
