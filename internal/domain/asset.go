package domain

import (
	"fmt"
	"strings"
)

// Asset identifies one of the tracked cryptocurrencies.
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetDOGE Asset = "DOGE"
	AssetSOL  Asset = "SOL"
	AssetAVAX Asset = "AVAX"
)

// AllAssets returns every tracked asset in a fixed order.
func AllAssets() []Asset {
	return []Asset{AssetBTC, AssetETH, AssetDOGE, AssetSOL, AssetAVAX}
}

// String returns the string representation of Asset.
func (a Asset) String() string {
	return string(a)
}

// IsValid checks if the asset is one of the tracked values.
func (a Asset) IsValid() bool {
	switch a {
	case AssetBTC, AssetETH, AssetDOGE, AssetSOL, AssetAVAX:
		return true
	}
	return false
}

// Corpus returns the name used for the asset's sentiment corpus files.
func (a Asset) Corpus() string {
	switch a {
	case AssetBTC:
		return "bitcoin"
	case AssetETH:
		return "ethereum"
	case AssetDOGE:
		return "doge"
	case AssetSOL:
		return "solana"
	case AssetAVAX:
		return "avalanche"
	}
	return strings.ToLower(string(a))
}

// Keywords returns the terms that mark a tweet as being about the asset.
// Matching is case-sensitive for the ticker and lower-case for the name.
func (a Asset) Keywords() []string {
	switch a {
	case AssetBTC:
		return []string{"bitcoin", "BTC"}
	case AssetETH:
		return []string{"ethereum", "ETH"}
	case AssetDOGE:
		return []string{"dogecoin", "DOGE"}
	case AssetSOL:
		return []string{"solana", "SOL"}
	case AssetAVAX:
		return []string{"avalanche", "AVAX"}
	}
	return nil
}

// ParseAsset accepts a ticker (any case) or a corpus name.
func ParseAsset(s string) (Asset, error) {
	upper := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if upper.IsValid() {
		return upper, nil
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, a := range AllAssets() {
		if a.Corpus() == lower {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown asset %q", s)
}
