package normalization

import (
	"sort"

	"social-volatility/internal/domain"
)

// SortObservations orders price observations by (timestamp ASC).
// The sort is stable so duplicates keep file order and last-write-wins stays meaningful.
func SortObservations(obs []domain.PriceObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// SortTweets orders tweets by (created_at ASC, text ASC).
func SortTweets(tweets []domain.TweetRecord) {
	sort.SliceStable(tweets, func(i, j int) bool {
		return compareTweets(&tweets[i], &tweets[j]) < 0
	})
}

// IsSorted reports whether observations are in non-decreasing timestamp order.
func IsSorted(obs []domain.PriceObservation) bool {
	return sort.SliceIsSorted(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// compareTweets returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareTweets(a, b *domain.TweetRecord) int {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	}
	if a.Text != b.Text {
		if a.Text < b.Text {
			return -1
		}
		return 1
	}
	return 0
}
