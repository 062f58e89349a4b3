// Package oracle defines the MarketDataOracle interface, the single
// consolidation point for external price/pair APIs (DexScreener,
// Rugcheck, GoPlus, Birdeye). The engine treats these vendors as
// opaque HTTP oracles.
package oracle

import (
	"context"
	"time"

	"github.com/solguard/riskengine/internal/schema"
)

// Overview is the thin metadata shape returned by overview().
type Overview struct {
	Price      float64
	MarketCap  float64
	Liquidity  float64
	Volume24h  float64
	LPBurned   *bool // nil if unknown
}

// PricePoint is one (t, v) sample from priceHistory().
type PricePoint struct {
	T int64
	V float64
}

// MarketDataOracle is the narrow adapter the fusion engine consumes
// instead of calling vendor APIs directly; detectors do not call it.
type MarketDataOracle interface {
	Overview(ctx context.Context, mint string) (Overview, error)
	PriceHistory(ctx context.Context, mint string, days int) ([]PricePoint, error)
	TopHolders(ctx context.Context, mint string) ([]schema.Holder, error)
}

// cacheTTL bounds how long an oracle response is reused, keeping the
// core's view of "top holders" stable across repeated lookups for the
// same mint without re-hitting the vendor API.
const cacheTTL = 60 * time.Second
