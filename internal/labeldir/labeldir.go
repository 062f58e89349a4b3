// Package labeldir implements the labelled-entity directory shared by
// the funding-source analyzer and the on-chain tracer: address
// classification against CEX, swap-service, bridge and mixer
// directories. Matching is exact equality only, never substring.
package labeldir

import (
	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/schema"
)

// Tier is the risk weight assigned to a funding source's class.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Match is one resolved classification.
type Match struct {
	EntityType schema.EntityType
	Label      string // service name, e.g. "FixedFloat"
	Tier       Tier
	Matched    bool
}

// Directory resolves an address to its labelled entity, first match
// wins in the order: swap-service (HIGH) -> mixer (HIGH) -> bridge
// (MEDIUM) -> CEX (LOW) -> exchange whitelist (LOW, includes
// auto-detected addresses).
type Directory struct {
	cfg       *config.Config
	whitelist *exchange.Whitelist
}

// New builds a Directory over the configured service maps.
func New(cfg *config.Config, whitelist *exchange.Whitelist) *Directory {
	return &Directory{cfg: cfg, whitelist: whitelist}
}

// Classify resolves address against every directory, exact equality
// only.
func (d *Directory) Classify(address string) Match {
	if name, ok := find(d.cfg.SwapServiceAddresses, address); ok {
		return Match{EntityType: schema.EntitySwap, Label: name, Tier: TierHigh, Matched: true}
	}
	if name, ok := find(d.cfg.MixerAddresses, address); ok {
		return Match{EntityType: schema.EntityMixer, Label: name, Tier: TierHigh, Matched: true}
	}
	if name, ok := find(d.cfg.BridgeAddresses, address); ok {
		return Match{EntityType: schema.EntityBridge, Label: name, Tier: TierMedium, Matched: true}
	}
	if name, ok := find(d.cfg.CEXDepositAddresses, address); ok {
		return Match{EntityType: schema.EntityCEX, Label: name, Tier: TierLow, Matched: true}
	}
	if d.whitelist != nil && d.whitelist.IsExchange(address) {
		return Match{EntityType: schema.EntityCEX, Label: "exchange", Tier: TierLow, Matched: true}
	}
	return Match{EntityType: schema.EntityUnknown, Matched: false}
}

func find(dir config.ServiceDirectory, address string) (string, bool) {
	for name, addrs := range dir {
		for _, a := range addrs {
			if a == address { // exact equality only
				return name, true
			}
		}
	}
	return "", false
}
