package domain

import "time"

// Engagement holds the reach counters attached to a tweet.
type Engagement struct {
	RetweetCount  int64
	FavoriteCount int64
	FollowerCount int64
}

// Popularity is retweets plus favorites.
func (e Engagement) Popularity() int64 {
	return e.RetweetCount + e.FavoriteCount
}

// TweetRecord is a pre-scored social post.
type TweetRecord struct {
	CreatedAt  time.Time  // canonical instant, normalized by the loader
	Text       string     // raw post text
	Engagement Engagement // reach counters
	Sentiment  *float64   // VADER compound in [-1, 1], nil if unscored
}

// Sentiment labels.
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// SentimentLabel classifies a compound score with the ±0.05 VADER convention.
func SentimentLabel(compound float64) string {
	switch {
	case compound >= 0.05:
		return SentimentPositive
	case compound <= -0.05:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
