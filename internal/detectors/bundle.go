package detectors

import (
	"context"
	"math"
	"sort"

	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// BundleDetector finds coordinated launch buys: timing-cluster detection
// over the earliest signatures plus holder-concentration and
// network-pattern scoring over the top holders, all exchange-filtered
// first.
type BundleDetector struct{}

func NewBundleDetector() *BundleDetector { return &BundleDetector{} }

func (d *BundleDetector) Name() schema.DetectorName { return schema.DetectorBundle }

const earlySignatureWindow = 100
const timingClusterWindow = 20
const timingClusterGapMs = 400

func (d *BundleDetector) Analyze(ctx context.Context, in Input) schema.DetectorOutput {
	if in.Fetcher == nil {
		return emptyOutput(d.Name(), true)
	}

	sigs, err := in.Fetcher.FetchSignatures(ctx, in.Mint, sigfetch.Bound{Limit: earlySignatureWindow})
	if err != nil || len(sigs) == 0 {
		return emptyOutput(d.Name(), err != nil)
	}

	score := 0
	var findings []schema.Finding
	evidence := map[string]interface{}{}

	clusterWallets := largestTimingCluster(resolveEarlySenders(ctx, in, sigs))
	evidence["largest_timing_cluster"] = len(clusterWallets)
	if len(clusterWallets) >= 3 {
		score += 40
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityHigh,
			Code:                  "bundle_timing_cluster",
			Message:               "large cluster of non-exchange wallets bought within a tight timing window",
			ContributingAddresses: clusterWallets,
		})
	}

	filtered := nonExchangeHolders(in.Holders, in.Whitelist)
	top20 := filtered
	if len(top20) > 20 {
		top20 = top20[:20]
	}

	identicalBand := identicalPercentageCount(top20, 0.5, 5.0)
	if identicalBand >= 8 {
		score += 35
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityHigh,
			Code:                  "bundle_identical_percentage",
			Message:               "many top holders share near-identical allocation percentages",
			ContributingAddresses: addresses(top20),
		})
	}

	narrowBand, variance := countInBandWithVariance(top20, 1.0, 3.0)
	if narrowBand >= 10 && variance < 0.04 {
		score += 25
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityMedium,
			Code:                  "bundle_low_variance_band",
			Message:               "top holders cluster tightly around the same allocation percentage",
			ContributingAddresses: addresses(top20),
		})
	}

	top5Sum := sumTopN(top20, 5)
	if top5Sum > 60 {
		score += 20
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityMedium,
			Code:                  "bundle_top5_concentration",
			Message:               "top five non-exchange holders control over 60% of supply",
			ContributingAddresses: addresses(topN(top20, 5)),
		})
	}
	top10Sum := sumTopN(top20, 10)
	if top10Sum > 80 {
		score += 15
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityLow,
			Code:                  "bundle_top10_concentration",
			Message:               "top ten non-exchange holders control over 80% of supply",
			ContributingAddresses: addresses(topN(top20, 10)),
		})
	}

	if groupSize := largestPercentageGroup(top20); groupSize >= 5 {
		score += 15
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityMedium,
			Code:                  "bundle_network_pattern",
			Message:               "five or more holders share the same rounded allocation percentage",
			ContributingAddresses: addresses(top20),
		})
	}

	legitLiquidity := exchangeRatio(in.Holders) > 0.5
	if legitLiquidity {
		score -= 15
	}

	score = clampScore(score)
	evidence["top5_sum_pct"] = top5Sum
	evidence["top10_sum_pct"] = top10Sum
	evidence["is_bundled"] = score >= 50
	evidence["is_legit_liquidity"] = legitLiquidity

	return schema.DetectorOutput{
		Name:         d.Name(),
		PartialScore: score,
		Findings:     findings,
		Evidence:     evidence,
	}
}

// earlyBuy is one resolved early mint transaction: the fee-payer wallet
// and when it landed.
type earlyBuy struct {
	sender    string
	blockTime int64
}

// resolveEarlySenders takes the first timingClusterWindow signatures in
// slot order and resolves each one's fee-payer wallet. Signatures with
// no resolvable sender and exchange-owned senders are dropped before
// clustering.
func resolveEarlySenders(ctx context.Context, in Input, sigs []schema.Signature) []earlyBuy {
	window := make([]schema.Signature, len(sigs))
	copy(window, sigs)
	sort.Slice(window, func(i, j int) bool { return window[i].Slot < window[j].Slot })
	if len(window) > timingClusterWindow {
		window = window[:timingClusterWindow]
	}

	var out []earlyBuy
	for _, s := range window {
		tx, err := in.Fetcher.FetchTransaction(ctx, s.Sig)
		if err != nil || tx == nil || len(tx.AccountKeys) == 0 {
			continue
		}
		sender := tx.AccountKeys[0]
		if sender == "" || sender == in.Mint {
			continue
		}
		if in.Whitelist != nil && in.Whitelist.IsExchange(sender) {
			continue
		}
		out = append(out, earlyBuy{sender: sender, blockTime: s.BlockTime})
	}
	return out
}

// largestTimingCluster walks resolved early buys in slot order and opens
// a new cluster whenever consecutive block times differ by more than
// timingClusterGapMs, returning the distinct sender wallets of the
// largest cluster.
func largestTimingCluster(buys []earlyBuy) []string {
	var best []earlyBuy
	curStart := 0
	for i := 1; i <= len(buys); i++ {
		broke := i == len(buys)
		if !broke {
			gapMs := (buys[i].blockTime - buys[i-1].blockTime) * 1000
			if gapMs > timingClusterGapMs {
				broke = true
			}
		}
		if broke {
			if size := i - curStart; size > len(best) {
				best = buys[curStart:i]
			}
			curStart = i
		}
	}

	seen := map[string]bool{}
	var wallets []string
	for _, b := range best {
		if seen[b.sender] {
			continue
		}
		seen[b.sender] = true
		wallets = append(wallets, b.sender)
	}
	return wallets
}

// identicalPercentageCount buckets holders in [lo, hi] by percentage
// rounded to 0.1% and returns the size of the largest bucket, i.e. how
// many holders hold an effectively identical share.
func identicalPercentageCount(holders []schema.Holder, lo, hi float64) int {
	buckets := map[float64]int{}
	for _, h := range holders {
		if h.Percentage < lo || h.Percentage > hi {
			continue
		}
		key := math.Round(h.Percentage/0.1) * 0.1
		buckets[key]++
	}
	best := 0
	for _, n := range buckets {
		if n > best {
			best = n
		}
	}
	return best
}

func countInBandWithVariance(holders []schema.Holder, lo, hi float64) (int, float64) {
	var inBand []float64
	for _, h := range holders {
		if h.Percentage >= lo && h.Percentage <= hi {
			inBand = append(inBand, h.Percentage)
		}
	}
	if len(inBand) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range inBand {
		mean += v
	}
	mean /= float64(len(inBand))
	varSum := 0.0
	for _, v := range inBand {
		varSum += (v - mean) * (v - mean)
	}
	return len(inBand), varSum / float64(len(inBand))
}

func sumTopN(holders []schema.Holder, n int) float64 {
	sorted := sortedByPercentageDesc(holders)
	if n > len(sorted) {
		n = len(sorted)
	}
	sum := 0.0
	for _, h := range sorted[:n] {
		sum += h.Percentage
	}
	return sum
}

func topN(holders []schema.Holder, n int) []schema.Holder {
	sorted := sortedByPercentageDesc(holders)
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func sortedByPercentageDesc(holders []schema.Holder) []schema.Holder {
	out := make([]schema.Holder, len(holders))
	copy(out, holders)
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out
}

// largestPercentageGroup buckets holders by percentage rounded to the
// nearest 0.05% and returns the size of the largest bucket.
func largestPercentageGroup(holders []schema.Holder) int {
	buckets := map[float64]int{}
	for _, h := range holders {
		key := math.Round(h.Percentage/0.05) * 0.05
		buckets[key]++
	}
	best := 0
	for _, n := range buckets {
		if n > best {
			best = n
		}
	}
	return best
}

func exchangeRatio(holders []schema.Holder) float64 {
	if len(holders) == 0 {
		return 0
	}
	n := 0
	for _, h := range holders {
		if h.IsExchange {
			n++
		}
	}
	return float64(n) / float64(len(holders))
}
