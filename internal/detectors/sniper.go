package detectors

import (
	"context"
	"time"

	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// SniperDetector identifies wallets that received tokens within the
// first 10 slots after deploy, flags Jito-bundle usage, and clusters
// snipers landing in the same slot.
type SniperDetector struct{}

func NewSniperDetector() *SniperDetector { return &SniperDetector{} }

func (d *SniperDetector) Name() schema.DetectorName { return schema.DetectorSniperFarm }

const sniperWindowSlots = 10

type sniperWallet struct {
	Address   string
	Slot      uint64
	Fresh     bool
	JitoUsed  bool
	TipAmount float64
}

func (d *SniperDetector) Analyze(ctx context.Context, in Input) schema.DetectorOutput {
	if in.Fetcher == nil {
		return emptyOutput(d.Name(), true)
	}

	sigs, err := in.Fetcher.FetchSignatures(ctx, in.Mint, sigfetch.Bound{Limit: earlySignatureWindow})
	if err != nil || len(sigs) == 0 {
		return emptyOutput(d.Name(), err != nil)
	}

	deploySlot := sigs[0].Slot
	if in.DeploySlot != nil {
		deploySlot = *in.DeploySlot
	} else {
		for _, s := range sigs {
			if s.Slot < deploySlot {
				deploySlot = s.Slot
			}
		}
	}

	jitoTips := map[string]bool{}
	if in.Cfg != nil {
		for _, a := range in.Cfg.JitoTipAccounts {
			jitoTips[a] = true
		}
	}

	var snipers []sniperWallet
	for _, s := range sigs {
		if s.Slot < deploySlot || s.Slot > deploySlot+sniperWindowSlots {
			continue
		}
		tx, err := in.Fetcher.FetchTransaction(ctx, s.Sig)
		if err != nil || tx == nil || tx.Failed {
			continue
		}

		receiver := ""
		jitoUsed := false
		tip := 0.0
		for _, delta := range tx.TokenDeltas {
			if delta.Mint == in.Mint && delta.PostUI > delta.PreUI {
				receiver = delta.Owner
				break
			}
		}
		if receiver == "" {
			continue
		}
		for i, key := range tx.AccountKeys {
			if !jitoTips[key] || i >= len(tx.PostBalances) || i >= len(tx.PreBalances) {
				continue
			}
			delta := int64(tx.PostBalances[i]) - int64(tx.PreBalances[i])
			if delta > 0 {
				jitoUsed = true
				tip += float64(delta) / 1e9
			}
		}

		_, fresh := walletAge(ctx, in.Fetcher, receiver)
		snipers = append(snipers, sniperWallet{
			Address:   receiver,
			Slot:      s.Slot,
			Fresh:     fresh,
			JitoUsed:  jitoUsed,
			TipAmount: tip,
		})
	}

	if len(snipers) == 0 {
		return emptyOutput(d.Name(), false)
	}

	bySlot := map[uint64][]sniperWallet{}
	for _, sn := range snipers {
		bySlot[sn.Slot] = append(bySlot[sn.Slot], sn)
	}

	clusterCount := 0
	var findings []schema.Finding
	for _, group := range bySlot {
		if len(group) < 3 {
			continue
		}
		clusterCount++
		jitoUsers := 0
		var addrs []string
		for _, sn := range group {
			addrs = append(addrs, sn.Address)
			if sn.JitoUsed {
				jitoUsers++
			}
		}
		pattern := "coordinated_buy"
		if float64(jitoUsers) > float64(len(group))/2 {
			pattern = "jito_bundle"
		}
		findings = append(findings, schema.Finding{
			Severity:              schema.SeverityHigh,
			Code:                  "sniper_same_slot_cluster",
			Message:               "three or more wallets sniped mint in slot with pattern " + pattern,
			ContributingAddresses: addrs,
		})
	}

	freshCount := 0
	jitoCount := 0
	var totalSniperSupply float64
	for _, sn := range snipers {
		if sn.Fresh {
			freshCount++
		}
		if sn.JitoUsed {
			jitoCount++
		}
	}
	freshPercent := 100 * float64(freshCount) / float64(len(snipers))
	jitoPercent := 100 * float64(jitoCount) / float64(len(snipers))

	if freshCount >= 3 {
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityMedium,
			Code:     "sniper_fresh_farm_cluster",
			Message:  "three or more fresh wallets among mint snipers",
		})
	}

	holderPctByAddr := map[string]float64{}
	for _, h := range in.Holders {
		holderPctByAddr[h.Address] = h.Percentage
	}
	for _, sn := range snipers {
		totalSniperSupply += holderPctByAddr[sn.Address]
	}

	score := min(30, int(freshPercent*0.5)) +
		min(20, int(jitoPercent*0.3)) +
		min(30, int(totalSniperSupply)) +
		5*clusterCount

	firstIn := snipers[0]
	for _, sn := range snipers {
		if sn.Slot < firstIn.Slot {
			firstIn = sn
		}
	}
	if firstIn.Fresh {
		score += 15
	}

	evidence := map[string]interface{}{
		"sniper_count":        len(snipers),
		"fresh_percent":       freshPercent,
		"jito_percent":        jitoPercent,
		"total_sniper_supply": totalSniperSupply,
		"cluster_count":       clusterCount,
		"deploy_slot":         deploySlot,
	}

	return schema.DetectorOutput{
		Name:         d.Name(),
		PartialScore: clampScore(score),
		Findings:     findings,
		Evidence:     evidence,
	}
}

// walletAge fetches the oldest signature for address and reports whether
// the wallet is younger than 24 hours.
func walletAge(ctx context.Context, fetcher ChainSource, address string) (float64, bool) {
	sigs, err := fetcher.FetchSignatures(ctx, address, sigfetch.Bound{UntilOldest: true})
	if err != nil || len(sigs) == 0 {
		return 0, false
	}
	ageHours := float64(time.Now().Unix()-sigs[0].BlockTime) / 3600
	return ageHours, ageHours < 24
}
