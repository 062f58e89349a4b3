package detectors

import (
	"context"

	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// WhaleDetector scans the earliest mint signatures for large
// single-owner token-balance increases within 600s of launch.
type WhaleDetector struct{}

func NewWhaleDetector() *WhaleDetector { return &WhaleDetector{} }

func (d *WhaleDetector) Name() schema.DetectorName { return schema.DetectorWhale }

const whaleWindowSeconds = 600
const whaleThresholdPct = 1.0

func (d *WhaleDetector) Analyze(ctx context.Context, in Input) schema.DetectorOutput {
	if in.TotalSupply == 0 {
		return emptyOutput(d.Name(), false)
	}
	if in.Fetcher == nil {
		return emptyOutput(d.Name(), true)
	}

	sigs, err := in.Fetcher.FetchSignatures(ctx, in.Mint, sigfetch.Bound{Limit: earlySignatureWindow})
	if err != nil || len(sigs) == 0 {
		return emptyOutput(d.Name(), err != nil)
	}

	launch := sigs[0].BlockTime
	for _, s := range sigs {
		if s.BlockTime != 0 && (launch == 0 || s.BlockTime < launch) {
			launch = s.BlockTime
		}
	}

	exchangeSet := map[string]bool{}
	for _, h := range in.Holders {
		if h.IsExchange {
			exchangeSet[h.Address] = true
		}
	}

	type buy struct {
		owner string
		pct   float64
	}
	var nonExchangeBuys []buy
	exchangeBuyCount := 0

	for _, s := range sigs {
		if s.BlockTime == 0 || s.BlockTime-launch > whaleWindowSeconds {
			continue
		}
		tx, err := in.Fetcher.FetchTransaction(ctx, s.Sig)
		if err != nil || tx == nil || tx.Failed {
			continue
		}
		for _, delta := range tx.TokenDeltas {
			if delta.Mint != in.Mint {
				continue
			}
			gain := delta.PostUI - delta.PreUI
			if gain <= 0 {
				continue
			}
			pct := 100 * gain / float64(in.TotalSupply)
			if pct < whaleThresholdPct {
				continue
			}
			if (in.Whitelist != nil && in.Whitelist.IsExchange(delta.Owner)) || exchangeSet[delta.Owner] {
				exchangeBuyCount++
				continue
			}
			nonExchangeBuys = append(nonExchangeBuys, buy{owner: delta.Owner, pct: pct})
		}
	}

	if len(nonExchangeBuys) == 0 && exchangeBuyCount == 0 {
		return emptyOutput(d.Name(), false)
	}

	score := 0
	var findings []schema.Finding
	totalPct := 0.0
	largest := 0.0
	addrs := make([]string, 0, len(nonExchangeBuys))
	for _, b := range nonExchangeBuys {
		totalPct += b.pct
		if b.pct > largest {
			largest = b.pct
		}
		addrs = append(addrs, b.owner)
	}
	avg := 0.0
	if len(nonExchangeBuys) > 0 {
		avg = totalPct / float64(len(nonExchangeBuys))
	}

	if len(nonExchangeBuys) > 0 {
		score = clampScore(int(totalPct))
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityHigh,
			Code:                  "whale_early_buy",
			Message:               "non-exchange wallets made large buys within the launch window",
			ContributingAddresses: addrs,
		})
	}

	evidence := map[string]interface{}{
		"non_exchange_whale_count":   len(nonExchangeBuys),
		"non_exchange_whale_percent": totalPct,
		"largest_buy_percent":        largest,
		"average_buy_percent":        avg,
		"exchange_whale_count":       exchangeBuyCount,
	}

	return schema.DetectorOutput{
		Name:         d.Name(),
		PartialScore: clampScore(score),
		Findings:     findings,
		Evidence:     evidence,
	}
}
