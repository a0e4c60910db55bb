// Package idhash derives deterministic identifiers from natural keys.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"social-volatility/internal/domain"
)

// ComputeTweetID computes a deterministic tweet id using SHA256.
// Formula: SHA256(asset|created_at_unix_nano|text)
// Returns hex-encoded hash (64 characters).
func ComputeTweetID(asset domain.Asset, createdAt time.Time, text string) string {
	data := fmt.Sprintf("%s|%d|%s", asset, createdAt.UnixNano(), text)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeEvaluationID computes a deterministic evaluation id using SHA256.
// Formula: SHA256(asset|model|start_unix|end_unix)
func ComputeEvaluationID(asset domain.Asset, model string, start, end time.Time) string {
	data := fmt.Sprintf("%s|%s|%d|%d", asset, model, start.Unix(), end.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
