package detectors

import (
	"context"
	"math"
	"time"

	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/labeldir"
	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// FundingDetector classifies each top-10 holder's earliest funding
// counterparties against the labelled-entity directory and synthesizes
// coordinated-funding and dominance patterns.
type FundingDetector struct {
	Directory *labeldir.Directory
}

func NewFundingDetector(dir *labeldir.Directory) *FundingDetector {
	return &FundingDetector{Directory: dir}
}

func (d *FundingDetector) Name() schema.DetectorName { return schema.DetectorFunding }

type fundingClassification struct {
	Holder        schema.Holder
	Match         labeldir.Match
	AgeDays       float64
	FeeConfidence float64 // swap-service fee-signature confidence, 0 if absent
}

func (d *FundingDetector) Analyze(ctx context.Context, in Input) schema.DetectorOutput {
	if in.Fetcher == nil || d.Directory == nil {
		return emptyOutput(d.Name(), true)
	}

	holders := nonExchangeHolders(in.Holders, in.Whitelist)
	if len(holders) > 10 {
		holders = holders[:10]
	}
	if len(holders) == 0 {
		return emptyOutput(d.Name(), false)
	}

	var classifications []fundingClassification
	for i, h := range holders {
		if i > 0 {
			time.Sleep(150 * time.Millisecond) // rate discipline between wallets
		}
		sigs, err := in.Fetcher.FetchSignatures(ctx, h.Address, sigfetch.Bound{UntilOldest: true})
		if err != nil || len(sigs) == 0 {
			continue
		}
		birth := sigs[0].BlockTime
		ageDays := float64(time.Now().Unix()-birth) / 86400

		oldest := sigs
		if len(oldest) > 3 {
			oldest = oldest[:3]
		}

		match := labeldir.Match{}
		feeConf := 0.0
		fundingAddr := ""
		for j, s := range oldest {
			if j > 0 {
				time.Sleep(50 * time.Millisecond)
			}
			tx, err := in.Fetcher.FetchTransaction(ctx, s.Sig)
			if err != nil || tx == nil {
				continue
			}
			for _, addr := range tx.AccountKeys {
				if addr == h.Address {
					continue
				}
				if fundingAddr == "" {
					fundingAddr = addr
				}
				if m := d.Directory.Classify(addr); m.Matched {
					match = m
					break
				}
			}
			if match.Matched {
				if match.EntityType == schema.EntitySwap {
					feeConf = swapFeeConfidence(receivedSOL(tx, h.Address))
				}
				break
			}
		}

		// An unmatched funding origin may still be a labelled exchange on
		// an enriched endpoint; a match promotes it into the whitelist for
		// every later membership test.
		if !match.Matched && fundingAddr != "" && in.Whitelist != nil {
			if label, err := in.Fetcher.AccountLabel(ctx, fundingAddr); err == nil && label != "" {
				if exchange.TryAutoDetect(in.Whitelist, fundingAddr, label, "rpc:getAccountInfo") {
					match = d.Directory.Classify(fundingAddr)
				}
			}
		}

		classifications = append(classifications, fundingClassification{Holder: h, Match: match, AgeDays: ageDays, FeeConfidence: feeConf})
	}

	if len(classifications) == 0 {
		return emptyOutput(d.Name(), true)
	}

	score := 0
	var findings []schema.Finding
	sourceBreakdown := map[string]float64{}
	sourceAddrs := map[string][]string{}
	sourceFresh := map[string]int{}
	var suspiciousPct float64

	for _, c := range classifications {
		if !c.Match.Matched {
			continue
		}
		key := string(c.Match.EntityType) + ":" + c.Match.Label
		sourceBreakdown[key] += c.Holder.Percentage
		sourceAddrs[key] = append(sourceAddrs[key], c.Holder.Address)
		if c.AgeDays < 7 {
			sourceFresh[key]++
		}
		if c.Match.Tier == labeldir.TierHigh || c.Match.Tier == labeldir.TierMedium {
			suspiciousPct += c.Holder.Percentage
		}
	}

	for key, addrs := range sourceAddrs {
		if len(addrs) < 3 {
			continue
		}
		tier := matchTierFor(classifications, key)
		sev := schema.SeverityMedium
		add := 20
		switch {
		case len(addrs) >= 5 && tier == labeldir.TierHigh:
			sev = schema.SeverityCritical
			add = 40
		case tier == labeldir.TierHigh:
			sev = schema.SeverityHigh
			add = 30
		case tier == labeldir.TierMedium:
			sev = schema.SeverityMedium
			add = 20
		}
		score += add
		findings = append(findings, schema.Finding{
			Severity:              sev,
			Code:                  "funding_coordinated",
			Message:               "three or more holders funded from " + key,
			ContributingAddresses: addrs,
		})

		if sourceFresh[key] >= 3 && tier == labeldir.TierHigh {
			score += 50
			findings = append(findings, schema.Finding{
				Severity:              schema.SeverityCritical,
				Code:                  "funding_fresh_wallet_cluster",
				Message:               "three or more fresh wallets funded from a high-tier source " + key,
				ContributingAddresses: addrs,
			})
		}

		pct := sourceBreakdown[key]
		if tier == labeldir.TierHigh {
			switch {
			case pct >= 40:
				score += 50
				findings = append(findings, schema.Finding{
					Severity:              schema.SeverityCritical,
					Code:                  "funding_single_source_dominance",
					Message:               "a single high-tier source funds 40%+ of supply",
					ContributingAddresses: addrs,
				})
			case pct >= 25:
				score += 30
				findings = append(findings, schema.Finding{
					Severity:              schema.SeverityHigh,
					Code:                  "funding_single_source_dominance",
					Message:               "a single high-tier source funds 25%+ of supply",
					ContributingAddresses: addrs,
				})
			}
		}
	}

	feeMatched := 0
	var feeAddrs []string
	for _, c := range classifications {
		if c.FeeConfidence >= 0.6 {
			feeMatched++
			feeAddrs = append(feeAddrs, c.Holder.Address)
		}
	}
	if feeMatched >= 2 {
		score += 10
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityHigh,
			Code:                  "funding_swap_fee_signature",
			Message:               "multiple holders received swap-service payouts matching the service's fee signature",
			ContributingAddresses: feeAddrs,
		})
	}

	evidence := map[string]interface{}{
		"source_breakdown":      sourceBreakdown,
		"suspicious_percent":    suspiciousPct,
		"classified_holders":    len(classifications),
		"fee_signature_matches": feeMatched,
	}

	return schema.DetectorOutput{
		Name:         d.Name(),
		PartialScore: clampScore(score),
		Findings:     findings,
		Evidence:     evidence,
	}
}

// receivedSOL is the holder's positive lamport delta in tx, in SOL.
func receivedSOL(tx *schema.Transaction, holder string) float64 {
	for i, key := range tx.AccountKeys {
		if key != holder || i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
			continue
		}
		delta := int64(tx.PostBalances[i]) - int64(tx.PreBalances[i])
		if delta > 0 {
			return float64(delta) / 1e9
		}
	}
	return 0
}

// swapFeeConfidence scores how closely a swap-service payout matches the
// typical instant-exchange fee band. Services send a round-ish amount
// minus 0.3-3% fee; the candidate sent amount is reconstructed as the
// nearest round 0.1 SOL multiple above the received amount. A fee in the
// usual 0.5-2% band scores 1.0, the wider band 0.6, anything else 0.
func swapFeeConfidence(received float64) float64 {
	if received <= 0 {
		return 0
	}
	sent := math.Ceil(received/0.1) * 0.1
	if sent-received < 1e-9 {
		// An exact round amount carries no fee signature.
		return 0
	}
	feePct := (sent - received) / sent * 100
	if feePct < 0.3 || feePct > 3.0 {
		return 0
	}
	if feePct < 0.5 || feePct > 2.0 {
		return 0.6
	}
	return 1.0
}

func matchTierFor(classifications []fundingClassification, key string) labeldir.Tier {
	for _, c := range classifications {
		if !c.Match.Matched {
			continue
		}
		if string(c.Match.EntityType)+":"+c.Match.Label == key {
			return c.Match.Tier
		}
	}
	return labeldir.TierLow
}
