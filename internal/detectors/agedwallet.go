package detectors

import (
	"context"
	"sort"
	"time"

	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// AgedWalletDetector tiers the top-20 holder wallets by first-transaction
// age and detects coordinated-ownership patterns across the suspicious
// subset.
type AgedWalletDetector struct{}

func NewAgedWalletDetector() *AgedWalletDetector { return &AgedWalletDetector{} }

func (d *AgedWalletDetector) Name() schema.DetectorName { return schema.DetectorAgedWallet }

type walletProfile struct {
	Address     string
	AgeDays     float64
	TxCount     int
	BirthUnix   int64
	FirstSigs   []schema.Signature // oldest-first, for pattern detection
	Suspicious  bool
}

func ageTier(days float64) string {
	switch {
	case days >= 730:
		return "extreme"
	case days >= 400:
		return "high"
	case days >= 180:
		return "medium"
	case days >= 90:
		return "low"
	default:
		return "none"
	}
}

func (d *AgedWalletDetector) Analyze(ctx context.Context, in Input) schema.DetectorOutput {
	if in.Fetcher == nil {
		return emptyOutput(d.Name(), true)
	}

	holders := in.Holders
	if len(holders) > 20 {
		holders = holders[:20]
	}
	holders = nonExchangeHolders(holders, in.Whitelist)
	if len(holders) == 0 {
		return emptyOutput(d.Name(), false)
	}

	var profiles []walletProfile
	anyData := false
	for _, h := range holders {
		sigs, err := in.Fetcher.FetchSignatures(ctx, h.Address, sigfetch.Bound{UntilOldest: true})
		if err != nil || len(sigs) == 0 {
			continue
		}
		anyData = true
		birth := sigs[0].BlockTime
		ageDays := float64(time.Now().Unix()-birth) / 86400
		p := walletProfile{
			Address:   h.Address,
			AgeDays:   ageDays,
			TxCount:   len(sigs),
			BirthUnix: birth,
			FirstSigs: sigs,
		}
		p.Suspicious = ageDays >= 90 && len(sigs) > 10
		profiles = append(profiles, p)
	}
	if !anyData {
		return emptyOutput(d.Name(), true)
	}

	tierHistogram := map[string]int{}
	var suspicious []walletProfile
	for _, p := range profiles {
		tierHistogram[ageTier(p.AgeDays)]++
		if p.Suspicious {
			suspicious = append(suspicious, p)
		}
	}

	score := 0
	var findings []schema.Finding

	if tierHistogram["extreme"] >= 5 {
		score += 50
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityMedium,
			Code:     "aged_extreme_tier_cluster",
			Message:  "five or more top holders are extremely aged wallets",
		})
	}

	switch {
	case len(suspicious) >= 10:
		score += 40
	case len(suspicious) >= 5:
		score += 25
	}

	var firedPatterns []string
	if len(suspicious) >= 3 {
		if sameFundingSourcePattern(ctx, in.Fetcher, suspicious) {
			score += 25
			firedPatterns = append(firedPatterns, "same_funding_source")
		}
		if similarAgesPattern(suspicious) {
			score += 20
			firedPatterns = append(firedPatterns, "similar_ages")
		}
		if coordinatedBuysPattern(suspicious) {
			score += 30
			firedPatterns = append(firedPatterns, "coordinated_buys")
		}
		if noSellsPattern(ctx, in.Fetcher, suspicious, in.Mint) {
			score += 15
			firedPatterns = append(firedPatterns, "no_sells")
		}
		if similarBuyAmountsPattern(suspicious, in.Holders) {
			score += 20
			firedPatterns = append(firedPatterns, "similar_buy_amounts")
		}
	}
	for _, p := range firedPatterns {
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityHigh,
			Code:                  "aged_pattern_" + p,
			Message:               "aged-wallet coordination pattern detected: " + p,
			ContributingAddresses: addressesOf(suspicious),
		})
	}

	percentByAddr := map[string]float64{}
	for _, h := range in.Holders {
		percentByAddr[h.Address] = h.Percentage
	}
	for _, p := range profiles {
		if p.AgeDays < 7 && percentByAddr[p.Address] > 20 {
			score += 25
			findings = append(findings, schema.Finding{
				Severity:              schema.SeverityHigh,
				Code:                  "aged_fresh_wallet_risk",
				Message:               "a top holder younger than 7 days controls over 20% of supply",
				ContributingAddresses: []string{p.Address},
			})
			break
		}
	}

	evidence := map[string]interface{}{
		"tier_histogram":    tierHistogram,
		"suspicious_count":  len(suspicious),
		"fired_patterns":    firedPatterns,
	}

	return schema.DetectorOutput{
		Name:         d.Name(),
		PartialScore: clampScore(score),
		Findings:     findings,
		Evidence:     evidence,
	}
}

func addressesOf(profiles []walletProfile) []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Address)
	}
	return out
}

// sameFundingSourcePattern resolves each suspicious wallet's earliest
// counterparty (the first account key in its oldest transaction that
// isn't the wallet itself) and checks whether 5+ wallets share one.
func sameFundingSourcePattern(ctx context.Context, fetcher ChainSource, suspicious []walletProfile) bool {
	counts := map[string]int{}
	for _, p := range suspicious {
		if len(p.FirstSigs) == 0 {
			continue
		}
		tx, err := fetcher.FetchTransaction(ctx, p.FirstSigs[0].Sig)
		if err != nil || tx == nil {
			continue
		}
		for _, k := range tx.AccountKeys {
			if k != p.Address {
				counts[k]++
				break
			}
		}
	}
	for _, n := range counts {
		if n >= 5 {
			return true
		}
	}
	return false
}

func similarAgesPattern(suspicious []walletProfile) bool {
	if len(suspicious) < 5 {
		return false
	}
	births := make([]int64, 0, len(suspicious))
	for _, p := range suspicious {
		births = append(births, p.BirthUnix)
	}
	sort.Slice(births, func(i, j int) bool { return births[i] < births[j] })
	for i := 0; i+4 < len(births); i++ {
		if float64(births[i+4]-births[i])/86400 <= 7 {
			return true
		}
	}
	return false
}

func coordinatedBuysPattern(suspicious []walletProfile) bool {
	if len(suspicious) < 5 {
		return false
	}
	var firstBuys []int64
	for _, p := range suspicious {
		if len(p.FirstSigs) > 0 {
			firstBuys = append(firstBuys, p.FirstSigs[0].BlockTime)
		}
	}
	sort.Slice(firstBuys, func(i, j int) bool { return firstBuys[i] < firstBuys[j] })
	for i := 0; i+4 < len(firstBuys); i++ {
		if firstBuys[i+4]-firstBuys[i] <= 60 {
			return true
		}
	}
	return false
}

// noSellsPattern samples each suspicious wallet's earliest transactions
// (bounded, to stay within rate discipline) and checks whether its
// token balance for this mint ever decreased.
func noSellsPattern(ctx context.Context, fetcher ChainSource, suspicious []walletProfile, mint string) bool {
	if len(suspicious) == 0 {
		return false
	}
	const sampleDepth = 5
	inboundOnly := 0
	for _, p := range suspicious {
		sample := p.FirstSigs
		if len(sample) > sampleDepth {
			sample = sample[:sampleDepth]
		}
		sold := false
		for _, s := range sample {
			tx, err := fetcher.FetchTransaction(ctx, s.Sig)
			if err != nil || tx == nil {
				continue
			}
			for _, delta := range tx.TokenDeltas {
				if delta.Owner == p.Address && delta.Mint == mint && delta.PostUI < delta.PreUI {
					sold = true
				}
			}
		}
		if !sold {
			inboundOnly++
		}
	}
	return float64(inboundOnly)/float64(len(suspicious)) >= 0.8
}

func similarBuyAmountsPattern(suspicious []walletProfile, holders []schema.Holder) bool {
	if len(suspicious) < 5 {
		return false
	}
	byAddr := map[string]float64{}
	for _, h := range holders {
		byAddr[h.Address] = h.Balance
	}
	var amounts []float64
	for _, p := range suspicious {
		if amt, ok := byAddr[p.Address]; ok {
			amounts = append(amounts, amt)
		}
	}
	if len(amounts) < 5 {
		return false
	}
	sorted := append([]float64(nil), amounts...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	if median == 0 {
		return false
	}
	within := 0
	for _, a := range amounts {
		ratio := a / median
		if ratio >= 0.8 && ratio <= 1.2 {
			within++
		}
	}
	return float64(within)/float64(len(amounts)) >= 0.8
}

