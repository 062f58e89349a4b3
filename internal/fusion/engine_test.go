package fusion

import (
	"context"
	"errors"
	"testing"

	"github.com/solguard/riskengine/internal/detectors"
	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/oracle"
	"github.com/solguard/riskengine/internal/rpcpool"
	"github.com/solguard/riskengine/internal/schema"
)

const benignMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestAnalyzeMintRejectsInvalidAddress(t *testing.T) {
	engine := NewEngine(testCfg(), oracle.NewMock(), New(testCfg(), nil), nil, nil)
	_, err := engine.AnalyzeMint(context.Background(), "not-a-mint", false)
	if !errors.Is(err, rpcpool.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnalyzeMintBenignToken(t *testing.T) {
	mock := oracle.NewMock()
	mock.Holders[benignMint] = []schema.Holder{
		{Address: "h1", Balance: 800, Percentage: 8},
		{Address: "h2", Balance: 600, Percentage: 6},
		{Address: "h3", Balance: 500, Percentage: 5},
	}

	dets := []detectors.Detector{
		&fakeDetector{name: schema.DetectorBundle, output: schema.DetectorOutput{Name: schema.DetectorBundle, Empty: true}},
	}
	engine := NewEngine(testCfg(), mock, New(testCfg(), dets), nil, exchange.New(nil))

	var notified schema.RiskLevel
	engine.OnTokenAnalyzed = func(_ string, level schema.RiskLevel) { notified = level }

	report, err := engine.AnalyzeMint(context.Background(), benignMint, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SafetyScore < 80 || report.RiskLevel != schema.RiskSafe {
		t.Fatalf("expected SAFE report, got score=%d level=%v", report.SafetyScore, report.RiskLevel)
	}
	if notified != schema.RiskSafe {
		t.Fatalf("expected OnTokenAnalyzed to fire with SAFE, got %v", notified)
	}
}

func TestRankAndTag(t *testing.T) {
	w := exchange.New([]string{"ex1"})
	holders := []schema.Holder{
		{Address: "small", Balance: 10},
		{Address: "ex1", Balance: 100},
		{Address: "big", Balance: 50},
	}
	out := rankAndTag(holders, w)
	if out[0].Address != "ex1" || out[0].Rank != 1 || !out[0].IsExchange {
		t.Fatalf("expected ex1 ranked first and tagged exchange, got %+v", out[0])
	}
	if out[1].Address != "big" || out[1].Rank != 2 || out[1].IsExchange {
		t.Fatalf("expected big ranked second untagged, got %+v", out[1])
	}
	if out[2].Rank != 3 {
		t.Fatalf("expected ranks 1-indexed over descending balance, got %+v", out[2])
	}
}
