package fusion

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/detectors"
	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/oracle"
	"github.com/solguard/riskengine/internal/rpcpool"
	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// Engine is the request-facing entry point: it validates the mint,
// pulls top holders from the market-data oracle and the mint supply
// from the chain fetcher, tags exchange holders, and hands the
// assembled input to the Aggregator.
type Engine struct {
	cfg       *config.Config
	oracle    oracle.MarketDataOracle
	agg       *Aggregator
	fetcher   *sigfetch.Fetcher
	whitelist *exchange.Whitelist

	// OnTokenAnalyzed, if set, fires after every fused analysis.
	OnTokenAnalyzed func(mint string, level schema.RiskLevel)
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(cfg *config.Config, o oracle.MarketDataOracle, agg *Aggregator, fetcher *sigfetch.Fetcher, w *exchange.Whitelist) *Engine {
	return &Engine{cfg: cfg, oracle: o, agg: agg, fetcher: fetcher, whitelist: w}
}

// AnalyzeMint runs one full analysis for mint. bypass skips the dedup
// cooldown. Invalid mint addresses are fatal to the request; everything
// recoverable degrades to a partial report instead.
func (e *Engine) AnalyzeMint(ctx context.Context, mint string, bypass bool) (*schema.AnalysisReport, error) {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return nil, fmt.Errorf("%w: mint %q", rpcpool.ErrInvalidInput, mint)
	}

	holders, err := e.oracle.TopHolders(ctx, mint)
	if err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("oracle top-holders lookup failed")
		holders = nil
	}
	holders = rankAndTag(holders, e.whitelist)

	token := schema.TokenMint{Address: mint}
	if e.fetcher != nil {
		token.TotalSupply, token.Decimals, err = e.fetcher.MintSupply(ctx, mint)
		if err != nil {
			log.Warn().Err(err).Str("mint", mint).Msg("mint supply lookup failed")
		}
	}

	in := detectors.Input{
		Mint:        token.Address,
		TotalSupply: token.TotalSupply,
		Decimals:    token.Decimals,
		Holders:     holders,
		Whitelist:   e.whitelist,
		Cfg:         e.cfg,
	}
	if e.fetcher != nil {
		in.Fetcher = e.fetcher
	}

	report, err := e.agg.Analyze(ctx, in, bypass)
	if err != nil {
		return nil, err
	}
	if e.OnTokenAnalyzed != nil {
		e.OnTokenAnalyzed(mint, report.RiskLevel)
	}
	return report, nil
}

// rankAndTag sorts holders by descending balance, assigns 1-indexed
// ranks, and marks exchange-whitelisted addresses.
func rankAndTag(holders []schema.Holder, w *exchange.Whitelist) []schema.Holder {
	out := make([]schema.Holder, len(holders))
	copy(out, holders)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	for i := range out {
		out[i].Rank = i + 1
		if w != nil && w.IsExchange(out[i].Address) {
			out[i].IsExchange = true
		}
	}
	return out
}
