package common

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAsset = errors.New("unknown asset")

// Asset is the closed enumeration of currencies the engine understands.
type Asset string

const (
	USDT Asset = "USDT"
	BTC  Asset = "BTC"
	ETH  Asset = "ETH"
	SOL  Asset = "SOL"
)

// SupportedAssets lists every Asset a freshly constructed Engine accepts.
var SupportedAssets = []Asset{USDT, BTC, ETH, SOL}

// ParseAsset resolves a wire token into an Asset, failing closed on
// anything outside SupportedAssets.
func ParseAsset(token string) (Asset, error) {
	asset := Asset(strings.ToUpper(token))
	for _, a := range SupportedAssets {
		if a == asset {
			return asset, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAsset, token)
}

// AssetPair is the canonical identity of a market: base priced in quote.
type AssetPair struct {
	Base  Asset
	Quote Asset
}

// Ticker renders the pair as "{BASE}_{QUOTE}", the wire/display identity
// used throughout the rest of the system (market-data channel names,
// gateway routes, reply payloads).
func (p AssetPair) Ticker() string {
	return fmt.Sprintf("%s_%s", p.Base, p.Quote)
}

// ParseTicker is the inverse of Ticker: it splits "{BASE}_{QUOTE}" and
// resolves both halves to known assets. Fails if either half is unknown
// or base == quote.
func ParseTicker(ticker string) (AssetPair, error) {
	parts := strings.Split(ticker, "_")
	if len(parts) != 2 {
		return AssetPair{}, fmt.Errorf("%w: malformed ticker %q", ErrUnknownAsset, ticker)
	}

	base, err := ParseAsset(parts[0])
	if err != nil {
		return AssetPair{}, err
	}
	quote, err := ParseAsset(parts[1])
	if err != nil {
		return AssetPair{}, err
	}
	if base == quote {
		return AssetPair{}, fmt.Errorf("%w: base and quote must differ, got %q", ErrUnknownAsset, ticker)
	}

	return AssetPair{Base: base, Quote: quote}, nil
}
