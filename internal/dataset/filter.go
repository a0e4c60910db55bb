package dataset

import (
	"strings"

	"social-volatility/internal/domain"
)

// FilterByAsset keeps the tweets whose text mentions one of the asset's
// keywords. It splits a shared corpus such as crypto_sentiment.csv into
// per-coin sets. Matching is case-sensitive.
func FilterByAsset(tweets []domain.TweetRecord, asset domain.Asset) []domain.TweetRecord {
	keywords := asset.Keywords()
	if len(keywords) == 0 {
		return nil
	}

	var out []domain.TweetRecord
	for _, tw := range tweets {
		for _, kw := range keywords {
			if strings.Contains(tw.Text, kw) {
				out = append(out, tw)
				break
			}
		}
	}
	return out
}
