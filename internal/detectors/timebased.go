package detectors

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// TimeBasedDetector runs per-holder slow-bleed classification over a
// 168-hour lookback, optional distribution-change analysis against a
// historical snapshot, fake-CTO synthesis, and the Gini coefficient
// over current holder balances.
type TimeBasedDetector struct{}

func NewTimeBasedDetector() *TimeBasedDetector { return &TimeBasedDetector{} }

func (d *TimeBasedDetector) Name() schema.DetectorName { return schema.DetectorTimeBased }

const lookbackHours = 168
const bleedSampleDepth = 200

type bleedClassification struct {
	Address       string
	Kind          string // gradual_dump | stair_step | sudden_drop | none
	SellPercent   float64
	DurationHours float64
	SellCount     int
}

func (d *TimeBasedDetector) Analyze(ctx context.Context, in Input) schema.DetectorOutput {
	if in.Fetcher == nil {
		return emptyOutput(d.Name(), true)
	}

	holders := in.Holders
	if len(holders) > 20 {
		holders = holders[:20]
	}
	if len(holders) == 0 {
		return emptyOutput(d.Name(), false)
	}

	cutoff := time.Now().Add(-lookbackHours * time.Hour).Unix()
	var bleeds []bleedClassification
	for _, h := range holders {
		if h.Balance <= 0 {
			continue
		}
		sigs, err := in.Fetcher.FetchSignatures(ctx, h.Address, sigfetch.Bound{Limit: bleedSampleDepth})
		if err != nil || len(sigs) == 0 {
			continue
		}

		var sold float64
		sellCount := 0
		var firstSell, lastSell int64
		for _, s := range sigs {
			if s.BlockTime < cutoff {
				continue
			}
			tx, err := in.Fetcher.FetchTransaction(ctx, s.Sig)
			if err != nil || tx == nil {
				continue
			}
			for _, delta := range tx.TokenDeltas {
				if delta.Owner != h.Address || delta.Mint != in.Mint {
					continue
				}
				if delta.PostUI < delta.PreUI {
					sold += delta.PreUI - delta.PostUI
					sellCount++
					if firstSell == 0 || s.BlockTime < firstSell {
						firstSell = s.BlockTime
					}
					if s.BlockTime > lastSell {
						lastSell = s.BlockTime
					}
				}
			}
		}
		if sellCount == 0 {
			continue
		}

		sellPercent := 100 * sold / h.Balance
		durationHours := float64(lastSell-firstSell) / 3600

		kind := "none"
		switch {
		case sellPercent >= 20 && sellCount >= 5 && durationHours > 24:
			kind = "gradual_dump"
		case sellPercent >= 20 && sellCount >= 3 && sellCount < 5:
			kind = "stair_step"
		case sellPercent >= 20 && sellCount <= 2:
			kind = "sudden_drop"
		}
		if kind == "none" {
			continue
		}
		bleeds = append(bleeds, bleedClassification{
			Address:       h.Address,
			Kind:          kind,
			SellPercent:   sellPercent,
			DurationHours: durationHours,
			SellCount:     sellCount,
		})
	}

	score := 0
	var findings []schema.Finding

	velocity := 0
	for _, b := range bleeds {
		switch b.Kind {
		case "sudden_drop":
			velocity += 40
		case "stair_step":
			velocity += 25
		case "gradual_dump":
			velocity += 15
		}
		velocity += int(math.Min(20, b.SellPercent*0.5))
	}
	velocity = clampScore(velocity)
	score += velocity

	for _, b := range bleeds {
		findings = append(findings, schema.Finding{
			Severity:              bleedSeverity(b.Kind),
			Code:                  "time_based_" + b.Kind,
			Message:               "holder exhibits a " + b.Kind + " sell pattern",
			ContributingAddresses: []string{b.Address},
		})
	}

	var newWhales, exitedWhales []string
	var top10Change float64
	fakeCTOConfidence := 0
	if len(in.HistoricalHolders) > 0 {
		newWhales, exitedWhales, top10Change = distributionChange(holders, in.HistoricalHolders)

		newWhalePercent := 0.0
		pctByAddr := map[string]float64{}
		for _, h := range holders {
			pctByAddr[h.Address] = h.Percentage
		}
		for _, a := range newWhales {
			newWhalePercent += pctByAddr[a]
		}

		confidence := 0
		if len(newWhales) >= 5 {
			confidence += 30
		}
		if newWhalePercent > 30 {
			confidence += 35
		}
		if len(exitedWhales) >= 3 {
			confidence += 20
		}
		if math.Abs(top10Change) > 15 {
			confidence += 15
		}
		fakeCTOConfidence = confidence
		if confidence >= 50 {
			score += schema.Clamp(confidence*3/5, 0, 60)
			findings = append(findings, schema.Finding{
				Severity:              schema.SeverityCritical,
				Code:                  "time_based_fake_cto",
				Message:               "holder distribution shift matches a fake-CTO relaunch pattern",
				ContributingAddresses: append(append([]string{}, newWhales...), exitedWhales...),
			})
		}
	}

	gini := giniCoefficient(holders)
	if gini > 0.7 {
		score += 20
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityMedium,
			Code:     "time_based_high_gini",
			Message:  "holder distribution is heavily concentrated (Gini > 0.7)",
		})
	}

	isSlowRug := len(bleeds) >= 2 && velocity > 30
	if isSlowRug {
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityHigh,
			Code:     "time_based_slow_rug",
			Message:  "multiple holders are bleeding supply with significant velocity",
		})
	}

	if len(bleeds) == 0 && len(in.HistoricalHolders) == 0 {
		return emptyOutput(d.Name(), false)
	}

	evidence := map[string]interface{}{
		"bleed_count":         len(bleeds),
		"velocity_score":      velocity,
		"gini":                gini,
		"is_slow_rug":         isSlowRug,
		"new_whales":          newWhales,
		"exited_whales":       exitedWhales,
		"top10_change":        top10Change,
		"fake_cto_confidence": fakeCTOConfidence,
	}

	return schema.DetectorOutput{
		Name:         d.Name(),
		PartialScore: clampScore(score),
		Findings:     findings,
		Evidence:     evidence,
	}
}

func bleedSeverity(kind string) schema.Severity {
	switch kind {
	case "sudden_drop":
		return schema.SeverityHigh
	case "stair_step":
		return schema.SeverityMedium
	default:
		return schema.SeverityLow
	}
}

// distributionChange computes the symmetric diff of top-10 address sets
// between current and historical holders, plus the change in combined
// top-10 percentage.
func distributionChange(current, historical []schema.Holder) (newWhales, exitedWhales []string, top10Change float64) {
	curTop10 := topN(current, 10)
	histTop10 := topN(historical, 10)

	curSet := map[string]bool{}
	curTotal := 0.0
	for _, h := range curTop10 {
		curSet[h.Address] = true
		curTotal += h.Percentage
	}
	histSet := map[string]bool{}
	histTotal := 0.0
	for _, h := range histTop10 {
		histSet[h.Address] = true
		histTotal += h.Percentage
	}

	for addr := range curSet {
		if !histSet[addr] {
			newWhales = append(newWhales, addr)
		}
	}
	for addr := range histSet {
		if !curSet[addr] {
			exitedWhales = append(exitedWhales, addr)
		}
	}
	sort.Strings(newWhales)
	sort.Strings(exitedWhales)

	top10Change = curTotal - histTotal
	return
}

// giniCoefficient applies the standard formula over holder balances. A
// single holder owning everything is maximal inequality, 1.
func giniCoefficient(holders []schema.Holder) float64 {
	n := len(holders)
	if n == 0 {
		return 0
	}
	if n == 1 {
		if holders[0].Balance > 0 {
			return 1
		}
		return 0
	}
	balances := make([]float64, n)
	for i, h := range holders {
		balances[i] = h.Balance
	}
	sort.Float64s(balances)

	var sumOfDiffs, sum float64
	for _, bi := range balances {
		sum += bi
		for _, bj := range balances {
			sumOfDiffs += math.Abs(bi - bj)
		}
	}
	if sum == 0 {
		return 0
	}
	return sumOfDiffs / (2 * float64(n) * sum)
}
