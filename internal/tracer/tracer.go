// Package tracer implements the on-chain funding-flow tracer: a
// backward-hop walk to the largest incoming SOL source at each level,
// terminating on cycles or labelled entities, plus cluster and
// wash-trading sub-analyses.
package tracer

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solguard/riskengine/internal/labeldir"
	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

const maxHops = 5
const recentTxWindow = 30
const minIncomingSOL = 0.5
const feeSlack = 0.10
const rugHolderThreshold = 100

// ChainSource is the slice of the signature fetcher the tracer
// consumes. *sigfetch.Fetcher satisfies it; tests substitute a scripted
// in-memory source.
type ChainSource interface {
	FetchSignatures(ctx context.Context, address string, bound sigfetch.Bound) ([]schema.Signature, error)
	FetchTransaction(ctx context.Context, sig string) (*schema.Transaction, error)
	TokenAccountsByOwner(ctx context.Context, owner string) ([]string, error)
	LargestHolderCount(ctx context.Context, mint string) (int, error)
}

// RugCandidate flags a token a cluster member holds with too few
// holders to have organic distribution.
type RugCandidate struct {
	Holder string
	Mint   string
}

// CEXDeposit records a hop that terminated on a known exchange wallet.
type CEXDeposit struct {
	Exchange  string
	Address   string
	AmountSOL float64
	Hop       int
}

// WashAnalysis summarizes circular SOL flow for the originating wallet.
type WashAnalysis struct {
	CircularCounterparties []string
	SuspiciousVolumeSOL    float64
}

// Result is the terminal output of one trace.
type Result struct {
	Target            string
	Chain             []schema.FundingHop
	CEXDeposits       []CEXDeposit
	Cluster           []string
	PotentialNextRugs []RugCandidate
	WashTrading       WashAnalysis
	Summary           string
}

// Tracer walks funding flows backward from a target wallet.
type Tracer struct {
	fetcher   ChainSource
	directory *labeldir.Directory
}

func New(fetcher ChainSource, directory *labeldir.Directory) *Tracer {
	return &Tracer{fetcher: fetcher, directory: directory}
}

// Trace produces the backward funding chain, cluster, and wash-trading
// sub-analysis for address.
func (t *Tracer) Trace(ctx context.Context, address string) (*Result, error) {
	visited := map[string]bool{address: true}
	clusterSet := map[string]bool{address: true}

	var chain []schema.FundingHop
	var cexDeposits []CEXDeposit
	current := address
	var originIn, originOut []walletTransfer

	for hop := 1; hop <= maxHops; hop++ {
		in, out, err := t.scanTransfers(ctx, current)
		if err != nil {
			break
		}
		if hop == 1 {
			originIn, originOut = in, out
		}
		transfers := in
		if len(transfers) == 0 {
			break
		}

		largest := transfers[0]
		for _, tr := range transfers[1:] {
			if tr.amountSOL > largest.amountSOL {
				largest = tr
			}
		}

		match := t.directory.Classify(largest.counterparty)
		entity := match.EntityType
		if !match.Matched {
			entity = schema.EntityWallet
		}
		fhop := schema.FundingHop{
			Level:       hop,
			From:        largest.counterparty,
			To:          current,
			AmountSOL:   largest.amountSOL,
			Sig:         largest.sig,
			Timestamp:   largest.blockTime,
			EntityType:  entity,
			EntityLabel: match.Label,
		}
		chain = append(chain, fhop)
		clusterSet[largest.counterparty] = true

		if match.Matched {
			if match.EntityType == schema.EntityCEX {
				cexDeposits = append(cexDeposits, CEXDeposit{
					Exchange:  match.Label,
					Address:   largest.counterparty,
					AmountSOL: largest.amountSOL,
					Hop:       hop,
				})
			}
			break // labelled-entity termination
		}
		if visited[largest.counterparty] {
			log.Info().Str("address", largest.counterparty).Msg("tracer: cycle detected, stopping walk")
			break
		}
		visited[largest.counterparty] = true
		current = largest.counterparty
	}

	cluster := make([]string, 0, len(clusterSet))
	for addr := range clusterSet {
		cluster = append(cluster, addr)
	}

	rugs := t.scanPotentialNextRugs(ctx, cluster)
	wash := washTradingAnalysis(originIn, originOut)

	result := &Result{
		Target:            address,
		Chain:             chain,
		CEXDeposits:       cexDeposits,
		Cluster:           cluster,
		PotentialNextRugs: rugs,
		WashTrading:       wash,
		Summary:           summarize(chain),
	}
	return result, nil
}

// walletTransfer is one qualifying SOL movement between address and a
// counterparty within a single transaction.
type walletTransfer struct {
	counterparty string
	amountSOL    float64
	sig          string
	blockTime    time.Time
}

// scanTransfers fetches address's recent transactions and splits
// qualifying SOL movements into inbound (address's balance increased)
// and outbound (address's balance decreased), each paired with the
// counterparty whose opposite delta matches within fee slack.
func (t *Tracer) scanTransfers(ctx context.Context, address string) (in, out []walletTransfer, err error) {
	sigs, err := t.fetcher.FetchSignatures(ctx, address, sigfetch.Bound{Limit: recentTxWindow})
	if err != nil {
		return nil, nil, err
	}

	for _, s := range sigs {
		tx, terr := t.fetcher.FetchTransaction(ctx, s.Sig)
		if terr != nil || tx == nil || tx.Failed {
			continue
		}
		idx := indexOf(tx.AccountKeys, address)
		if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
			continue
		}
		deltaLamports := int64(tx.PostBalances[idx]) - int64(tx.PreBalances[idx])
		amountSOL := math.Abs(float64(deltaLamports)) / 1e9
		if amountSOL < minIncomingSOL {
			continue
		}

		counterparty := findCounterparty(tx, idx, -deltaLamports)
		if counterparty == "" {
			continue
		}
		tr := walletTransfer{
			counterparty: counterparty,
			amountSOL:    amountSOL,
			sig:          s.Sig,
			blockTime:    time.Unix(s.BlockTime, 0),
		}
		if deltaLamports > 0 {
			in = append(in, tr)
		} else {
			out = append(out, tr)
		}
	}
	return in, out, nil
}

// findCounterparty locates the account whose delta matches
// wantDeltaLamports (callers pass the negated delta of the wallet
// itself), allowing 10% slack for transaction fees.
func findCounterparty(tx *schema.Transaction, selfIdx int, wantDeltaLamports int64) string {
	for i, key := range tx.AccountKeys {
		if i == selfIdx || i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
			continue
		}
		delta := int64(tx.PostBalances[i]) - int64(tx.PreBalances[i])
		if (wantDeltaLamports > 0) != (delta > 0) {
			continue
		}
		diff := math.Abs(float64(delta-wantDeltaLamports)) / math.Abs(float64(wantDeltaLamports))
		if diff <= feeSlack {
			return key
		}
	}
	return ""
}

func indexOf(keys []string, target string) int {
	for i, k := range keys {
		if k == target {
			return i
		}
	}
	return -1
}

// scanPotentialNextRugs enumerates each cluster member's held tokens and
// flags any whose largest-accounts list comes back under the RPC's own
// 20-entry cap, a reliable signal the true holder count is well under
// the 100-holder threshold.
func (t *Tracer) scanPotentialNextRugs(ctx context.Context, cluster []string) []RugCandidate {
	var rugs []RugCandidate
	for _, holder := range cluster {
		mints, err := t.fetcher.TokenAccountsByOwner(ctx, holder)
		if err != nil {
			continue
		}
		for _, mint := range mints {
			count, err := t.fetcher.LargestHolderCount(ctx, mint)
			if err != nil {
				continue
			}
			if count > 0 && count < rugHolderThreshold/5 { // below the 20-entry RPC cap
				rugs = append(rugs, RugCandidate{Holder: holder, Mint: mint})
			}
		}
	}
	return rugs
}

// washTradingAnalysis tallies per-counterparty inbound/outbound SOL for
// the originating wallet; any counterparty present in both directions
// signals a circular path.
func washTradingAnalysis(inbound, outbound []walletTransfer) WashAnalysis {
	inByCounterparty := map[string]float64{}
	for _, tr := range inbound {
		inByCounterparty[tr.counterparty] += tr.amountSOL
	}
	outByCounterparty := map[string]float64{}
	for _, tr := range outbound {
		outByCounterparty[tr.counterparty] += tr.amountSOL
	}

	var circular []string
	suspicious := 0.0
	for cp, inAmt := range inByCounterparty {
		outAmt, ok := outByCounterparty[cp]
		if !ok {
			continue
		}
		circular = append(circular, cp)
		suspicious += math.Min(inAmt, outAmt)
	}

	return WashAnalysis{CircularCounterparties: circular, SuspiciousVolumeSOL: suspicious}
}

func summarize(chain []schema.FundingHop) string {
	for _, hop := range chain {
		if hop.EntityType == schema.EntityCEX {
			return "CEX DEPOSIT FOUND at hop " + strconv.Itoa(hop.Level) + ": " + hop.EntityLabel
		}
	}
	if len(chain) == 0 {
		return "no funding chain resolved"
	}
	return "funding chain traced " + strconv.Itoa(len(chain)) + " hop(s) without reaching a labelled entity"
}
