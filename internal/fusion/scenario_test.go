package fusion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/detectors"
	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/labeldir"
	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
)

// scriptedSource is an in-memory detectors.ChainSource. Signatures are
// stored oldest-first per address; limit bounds return them newest-first
// the way the live RPC does.
type scriptedSource struct {
	sigs   map[string][]schema.Signature
	txs    map[string]*schema.Transaction
	labels map[string]string
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		sigs:   map[string][]schema.Signature{},
		txs:    map[string]*schema.Transaction{},
		labels: map[string]string{},
	}
}

func (s *scriptedSource) FetchSignatures(_ context.Context, address string, bound sigfetch.Bound) ([]schema.Signature, error) {
	stored := s.sigs[address]
	if bound.UntilOldest {
		return append([]schema.Signature(nil), stored...), nil
	}
	out := make([]schema.Signature, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
		if bound.Limit > 0 && len(out) >= bound.Limit {
			break
		}
	}
	return out, nil
}

func (s *scriptedSource) FetchTransaction(_ context.Context, sig string) (*schema.Transaction, error) {
	if tx, ok := s.txs[sig]; ok {
		return tx, nil
	}
	return nil, errors.New("unknown signature")
}

func (s *scriptedSource) AccountLabel(_ context.Context, address string) (string, error) {
	return s.labels[address], nil
}

func allDetectorSet() []detectors.Detector {
	return []detectors.Detector{
		detectors.NewBundleDetector(),
		detectors.NewAgedWalletDetector(),
		detectors.NewWhaleDetector(),
		detectors.NewSniperDetector(),
		detectors.NewTimeBasedDetector(),
	}
}

func scenarioDirectory(cfg *config.Config, w *exchange.Whitelist) *labeldir.Directory {
	if cfg.SwapServiceAddresses == nil {
		cfg.SwapServiceAddresses = config.ServiceDirectory{}
	}
	if cfg.MixerAddresses == nil {
		cfg.MixerAddresses = config.ServiceDirectory{}
	}
	if cfg.BridgeAddresses == nil {
		cfg.BridgeAddresses = config.ServiceDirectory{}
	}
	if cfg.CEXDepositAddresses == nil {
		cfg.CEXDepositAddresses = config.ServiceDirectory{}
	}
	return labeldir.New(cfg, w)
}

// Benign token: spread-out holder percentages, aged quiet wallets, no
// funding matches, no early whales, no snipers.
func TestScenarioBenignToken(t *testing.T) {
	const mint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	now := time.Now().Unix()
	src := newScriptedSource()

	pcts := []float64{8, 6, 5, 4, 3, 3, 2, 2, 1.5, 1}
	var holders []schema.Holder
	for i, p := range pcts {
		addr := fmt.Sprintf("benign-h%d", i+1)
		holders = append(holders, schema.Holder{Address: addr, Balance: p * 100, Percentage: p, Rank: i + 1})
		var sigs []schema.Signature
		for j := 0; j < 6; j++ {
			sigs = append(sigs, schema.Signature{
				Sig:       fmt.Sprintf("%s-s%d", addr, j),
				Slot:      uint64(1000 + j),
				BlockTime: now - 300*86400 + int64(j)*86400,
			})
		}
		src.sigs[addr] = sigs
	}

	for i := 0; i < 5; i++ {
		sig := fmt.Sprintf("mint-s%d", i)
		src.sigs[mint] = append(src.sigs[mint], schema.Signature{
			Sig:       sig,
			Slot:      uint64(10 + i*10),
			BlockTime: now - 30*86400 + int64(i)*100,
		})
		src.txs[sig] = &schema.Transaction{
			Signature:   sig,
			AccountKeys: []string{fmt.Sprintf("organic-buyer-%d", i)},
		}
	}

	cfg := testCfg()
	dets := append(allDetectorSet(), detectors.NewFundingDetector(scenarioDirectory(cfg, nil)))
	agg := New(cfg, dets)

	report, err := agg.Analyze(context.Background(), detectors.Input{
		Mint:        mint,
		TotalSupply: 100000,
		Holders:     holders,
		Fetcher:     src,
		Cfg:         cfg,
	}, false)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.SafetyScore < 80 || report.RiskLevel != schema.RiskSafe {
		t.Fatalf("expected SAFE with score >= 80, got score=%d level=%v", report.SafetyScore, report.RiskLevel)
	}
	bundle := report.Detectors[schema.DetectorBundle]
	if isBundled, _ := bundle.Evidence["is_bundled"].(bool); isBundled {
		t.Fatalf("benign token must not be flagged as bundled: %+v", bundle.Evidence)
	}
	for _, f := range report.Findings {
		if f.Severity != schema.SeverityInfo {
			t.Fatalf("expected empty or INFO-only findings, got %+v", f)
		}
	}
}

// Classic bundle: ten holders at exactly 2.0%, all funded from a swap
// service within a minute, all wallets under a day old, all mint buys
// landing in the same instant.
func TestScenarioClassicBundle(t *testing.T) {
	const mint = "bundle-mint"
	const swopshop = "swopshop-hot"
	now := time.Now().Unix()
	src := newScriptedSource()

	var holders []schema.Holder
	for i := 0; i < 10; i++ {
		addr := fmt.Sprintf("bundle-w%d", i+1)
		holders = append(holders, schema.Holder{Address: addr, Balance: 2000, Percentage: 2.0, Rank: i + 1})

		fundSig := fmt.Sprintf("fund-%s", addr)
		src.sigs[addr] = []schema.Signature{{Sig: fundSig, Slot: 90, BlockTime: now - 3600 + int64(i)}}
		src.txs[fundSig] = &schema.Transaction{
			Signature:    fundSig,
			AccountKeys:  []string{addr, swopshop},
			PreBalances:  []uint64{0, 10_000_000_000},
			PostBalances: []uint64{1_980_000_000, 8_020_000_000}, // 1.98 SOL payout, 1% fee shape
		}

		buySig := fmt.Sprintf("buy-%s", addr)
		src.sigs[mint] = append(src.sigs[mint], schema.Signature{
			Sig:       buySig,
			Slot:      uint64(100 + i),
			BlockTime: now - 1800,
		})
		src.txs[buySig] = &schema.Transaction{Signature: buySig, AccountKeys: []string{addr}}
	}

	cfg := testCfg()
	cfg.SwapServiceAddresses = config.ServiceDirectory{"Swopshop": {swopshop}}
	whitelist := exchange.New(nil)
	agg := New(cfg, []detectors.Detector{
		detectors.NewBundleDetector(),
		detectors.NewFundingDetector(scenarioDirectory(cfg, whitelist)),
	})

	report, err := agg.Analyze(context.Background(), detectors.Input{
		Mint:        mint,
		TotalSupply: 100000,
		Holders:     holders,
		Fetcher:     src,
		Whitelist:   whitelist,
		Cfg:         cfg,
	}, false)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	bundle := report.Detectors[schema.DetectorBundle]
	if bundle.PartialScore < 60 {
		t.Fatalf("expected bundle partial >= 60, got %d", bundle.PartialScore)
	}
	if isBundled, _ := bundle.Evidence["is_bundled"].(bool); !isBundled {
		t.Fatalf("expected is_bundled=true, evidence %+v", bundle.Evidence)
	}

	funding := report.Detectors[schema.DetectorFunding]
	critical := false
	for _, f := range funding.Findings {
		if f.Code == "funding_fresh_wallet_cluster" && f.Severity == schema.SeverityCritical {
			critical = true
		}
	}
	if !critical {
		t.Fatalf("expected CRITICAL fresh-wallet cluster finding, got %+v", funding.Findings)
	}

	if report.SafetyScore > 20 || report.RiskLevel != schema.RiskDangerous {
		t.Fatalf("expected DANGEROUS with score <= 20, got score=%d level=%v", report.SafetyScore, report.RiskLevel)
	}
}

// Aged-wallet farm: twelve two-year-old wallets with real history, born
// within a minute of each other, identical position sizes.
func TestScenarioAgedWalletFarm(t *testing.T) {
	const mint = "farm-mint"
	now := time.Now().Unix()
	src := newScriptedSource()

	var holders []schema.Holder
	for i := 0; i < 12; i++ {
		addr := fmt.Sprintf("farm-w%d", i+1)
		holders = append(holders, schema.Holder{Address: addr, Balance: 1000, Percentage: 2, Rank: i + 1})

		birth := now - 800*86400 + int64(i*5) // births within a 60s span
		sigs := []schema.Signature{{Sig: fmt.Sprintf("%s-birth", addr), Slot: 1, BlockTime: birth}}
		for j := 1; j < 12; j++ {
			sigs = append(sigs, schema.Signature{
				Sig:       fmt.Sprintf("%s-s%d", addr, j),
				Slot:      uint64(1 + j),
				BlockTime: birth + int64(j)*86400,
			})
		}
		src.sigs[addr] = sigs
		src.txs[fmt.Sprintf("%s-birth", addr)] = &schema.Transaction{
			Signature:   fmt.Sprintf("%s-birth", addr),
			AccountKeys: []string{addr, "farm-funder"},
		}
	}

	cfg := testCfg()
	agg := New(cfg, []detectors.Detector{detectors.NewAgedWalletDetector()})

	report, err := agg.Analyze(context.Background(), detectors.Input{
		Mint:    mint,
		Holders: holders,
		Fetcher: src,
		Cfg:     cfg,
	}, false)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	aged := report.Detectors[schema.DetectorAgedWallet]
	if aged.PartialScore != 100 {
		t.Fatalf("expected aged partial clamped to 100, got %d", aged.PartialScore)
	}
	fired, _ := aged.Evidence["fired_patterns"].([]string)
	want := map[string]bool{"same_funding_source": false, "similar_ages": false, "coordinated_buys": false, "similar_buy_amounts": false}
	for _, p := range fired {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, hit := range want {
		if !hit {
			t.Fatalf("expected pattern %s to fire, fired: %v", p, fired)
		}
	}
	if report.RiskLevel != schema.RiskDangerous {
		t.Fatalf("expected DANGEROUS, got %v", report.RiskLevel)
	}
}

// Fake CTO revival: six of the historical top-10 rotated out, the new
// whales jointly hold 32% and the top-10 total jumped 15 points.
func TestScenarioFakeCTORevival(t *testing.T) {
	const mint = "cto-mint"
	src := newScriptedSource()

	newPcts := []float64{6, 6, 5, 5, 5, 5}
	oldPcts := []float64{4, 4, 3, 2}
	var current []schema.Holder
	for i, p := range newPcts {
		current = append(current, schema.Holder{Address: fmt.Sprintf("cto-new%d", i+1), Balance: p * 100, Percentage: p})
	}
	for i, p := range oldPcts {
		current = append(current, schema.Holder{Address: fmt.Sprintf("cto-old%d", i+1), Balance: p * 100, Percentage: p})
	}

	var historical []schema.Holder
	for i, p := range oldPcts {
		historical = append(historical, schema.Holder{Address: fmt.Sprintf("cto-old%d", i+1), Balance: p * 100, Percentage: p})
	}
	for i := 0; i < 6; i++ {
		historical = append(historical, schema.Holder{Address: fmt.Sprintf("cto-gone%d", i+1), Balance: 283, Percentage: 2.83})
	}

	cfg := testCfg()
	agg := New(cfg, []detectors.Detector{detectors.NewTimeBasedDetector()})

	report, err := agg.Analyze(context.Background(), detectors.Input{
		Mint:              mint,
		Holders:           current,
		HistoricalHolders: historical,
		Fetcher:           src,
		Cfg:               cfg,
	}, false)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	tb := report.Detectors[schema.DetectorTimeBased]
	if conf, _ := tb.Evidence["fake_cto_confidence"].(int); conf < 85 {
		t.Fatalf("expected fake-CTO confidence >= 85, got %v", tb.Evidence["fake_cto_confidence"])
	}
	if tb.PartialScore < 50 {
		t.Fatalf("expected time-based partial >= 50, got %d", tb.PartialScore)
	}
	if report.RiskLevel != schema.RiskRisky && report.RiskLevel != schema.RiskDangerous {
		t.Fatalf("expected RISKY or DANGEROUS, got %v", report.RiskLevel)
	}
}

// Exchange-heavy token: three exchange hot wallets dominate the top-5
// but that is benign liquidity, not a bundle.
func TestScenarioLegitExchangeHeavy(t *testing.T) {
	const mint = "cex-heavy-mint"
	now := time.Now().Unix()
	src := newScriptedSource()

	whitelist := exchange.New([]string{"bin-hot-1", "bin-hot-2", "bin-hot-3"})
	holders := []schema.Holder{
		{Address: "bin-hot-1", Balance: 1500, Percentage: 15, Rank: 1, IsExchange: true},
		{Address: "bin-hot-2", Balance: 1200, Percentage: 12, Rank: 2, IsExchange: true},
		{Address: "bin-hot-3", Balance: 800, Percentage: 8, Rank: 3, IsExchange: true},
		{Address: "cex-np1", Balance: 300, Percentage: 3, Rank: 4},
		{Address: "cex-np2", Balance: 200, Percentage: 2, Rank: 5},
	}

	exchangePct := 0.0
	exchangeCount := 0
	for _, h := range holders {
		if h.IsExchange {
			exchangeCount++
			exchangePct += h.Percentage
		}
	}
	if exchangeCount != 3 || exchangePct != 35 {
		t.Fatalf("fixture error: expected 3 exchange holders at 35%%, got %d/%v", exchangeCount, exchangePct)
	}

	for i := 0; i < 3; i++ {
		sig := fmt.Sprintf("cexmint-s%d", i)
		src.sigs[mint] = append(src.sigs[mint], schema.Signature{
			Sig:       sig,
			Slot:      uint64(10 + i*10),
			BlockTime: now - 10*86400 + int64(i)*100,
		})
		src.txs[sig] = &schema.Transaction{Signature: sig, AccountKeys: []string{fmt.Sprintf("cex-organic-%d", i)}}
	}

	cfg := testCfg()
	agg := New(cfg, []detectors.Detector{detectors.NewBundleDetector()})

	report, err := agg.Analyze(context.Background(), detectors.Input{
		Mint:        mint,
		TotalSupply: 10000,
		Holders:     holders,
		Fetcher:     src,
		Whitelist:   whitelist,
		Cfg:         cfg,
	}, false)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	bundle := report.Detectors[schema.DetectorBundle]
	if legit, _ := bundle.Evidence["is_legit_liquidity"].(bool); !legit {
		t.Fatalf("expected is_legit_liquidity=true, evidence %+v", bundle.Evidence)
	}
	if isBundled, _ := bundle.Evidence["is_bundled"].(bool); isBundled {
		t.Fatalf("exchange liquidity must not read as a bundle")
	}
	if report.SafetyScore < 70 {
		t.Fatalf("expected safety >= 70, got %d", report.SafetyScore)
	}
}

// A funding origin the directory does not know, but the RPC provider
// labels as an exchange, is promoted into the whitelist mid-analysis.
func TestFundingAutoDetectsLabelledExchange(t *testing.T) {
	const mint = "autodetect-mint"
	now := time.Now().Unix()
	src := newScriptedSource()
	src.labels["okx-hot-77"] = "OKX Hot Wallet 77"

	holders := []schema.Holder{{Address: "auto-w1", Balance: 100, Percentage: 1, Rank: 1}}
	src.sigs["auto-w1"] = []schema.Signature{{Sig: "auto-fund", Slot: 5, BlockTime: now - 90*86400}}
	src.txs["auto-fund"] = &schema.Transaction{
		Signature:   "auto-fund",
		AccountKeys: []string{"auto-w1", "okx-hot-77"},
	}

	cfg := testCfg()
	whitelist := exchange.New(nil)
	det := detectors.NewFundingDetector(scenarioDirectory(cfg, whitelist))

	det.Analyze(context.Background(), detectors.Input{
		Mint:      mint,
		Holders:   holders,
		Fetcher:   src,
		Whitelist: whitelist,
		Cfg:       cfg,
	})

	if !whitelist.IsExchange("okx-hot-77") {
		t.Fatal("expected labelled funding origin to be auto-promoted into the whitelist")
	}
	dets := whitelist.Detections()
	if len(dets) != 1 || dets[0].Source != "rpc:getAccountInfo" {
		t.Fatalf("expected one rpc-sourced detection, got %+v", dets)
	}
}
