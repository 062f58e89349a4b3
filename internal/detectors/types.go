// Package detectors implements the six-detector analysis pipeline:
// bundle, aged-wallet, funding-source, whale, sniper-farm and
// time-based detection. Each detector is a closed variant behind the
// same Detector capability; the aggregator is a simple fan-out, not a
// dynamic registry.
package detectors

import (
	"context"

	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// ChainSource is the slice of the signature fetcher the detectors
// consume. *sigfetch.Fetcher satisfies it; tests substitute a scripted
// in-memory source.
type ChainSource interface {
	FetchSignatures(ctx context.Context, address string, bound sigfetch.Bound) ([]schema.Signature, error)
	FetchTransaction(ctx context.Context, sig string) (*schema.Transaction, error)
	AccountLabel(ctx context.Context, address string) (string, error)
}

// Input is everything a detector needs to run one analysis pass. It
// carries no mutable shared state — the aggregator builds a fresh Input
// per request.
type Input struct {
	Mint              string
	TotalSupply       uint64
	Decimals          uint8
	Holders           []schema.Holder // top holders, IsExchange already tagged
	DeploySlot        *uint64         // optional; inferred as earliest slot if nil
	HistoricalHolders []schema.Holder // optional, time-based distribution-change input

	Fetcher   ChainSource
	Whitelist *exchange.Whitelist
	Cfg       *config.Config
}

// Detector analyzes Input under ctx and returns its partial contribution
// to the fused report. A detector that cannot obtain data must return an
// empty output (schema.DetectorOutput.Empty == true), never fabricated
// values.
type Detector interface {
	Name() schema.DetectorName
	Analyze(ctx context.Context, in Input) schema.DetectorOutput
}

// nonExchangeHolders filters out exchange-whitelisted holders; they are
// never counted toward concentration or bundle evidence.
func nonExchangeHolders(holders []schema.Holder, w *exchange.Whitelist) []schema.Holder {
	out := make([]schema.Holder, 0, len(holders))
	for _, h := range holders {
		if h.IsExchange || (w != nil && w.IsExchange(h.Address)) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func emptyOutput(name schema.DetectorName, failedHard bool) schema.DetectorOutput {
	return schema.DetectorOutput{
		Name:       name,
		Empty:      true,
		FailedHard: failedHard,
		Evidence:   map[string]interface{}{},
	}
}

func addresses(holders []schema.Holder) []string {
	out := make([]string, 0, len(holders))
	for _, h := range holders {
		out = append(out, h.Address)
	}
	return out
}

func clampScore(v int) int {
	return schema.Clamp(v, 0, 100)
}
