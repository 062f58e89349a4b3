package detectors

import (
	"testing"

	"github.com/solguard/riskengine/internal/schema"
)

func TestLargestTimingCluster(t *testing.T) {
	buys := []earlyBuy{
		{sender: "w1", blockTime: 100},
		{sender: "w2", blockTime: 100},
		{sender: "w3", blockTime: 100},
		{sender: "w4", blockTime: 105}, // 5s gap breaks the cluster
		{sender: "w5", blockTime: 200},
	}
	got := largestTimingCluster(buys)
	if len(got) != 3 || got[0] != "w1" || got[2] != "w3" {
		t.Fatalf("expected cluster [w1 w2 w3], got %v", got)
	}
}

func TestLargestTimingClusterNoCluster(t *testing.T) {
	buys := []earlyBuy{
		{sender: "w1", blockTime: 100},
		{sender: "w2", blockTime: 200},
		{sender: "w3", blockTime: 300},
	}
	if got := largestTimingCluster(buys); len(got) >= 3 {
		t.Fatalf("expected no 3-wallet cluster, got %v", got)
	}
}

func TestLargestTimingClusterDedupesSenders(t *testing.T) {
	buys := []earlyBuy{
		{sender: "w1", blockTime: 100},
		{sender: "w1", blockTime: 100},
		{sender: "w1", blockTime: 100},
	}
	if got := largestTimingCluster(buys); len(got) != 1 {
		t.Fatalf("three transactions from one wallet are one wallet, got %v", got)
	}
}

func TestIdenticalPercentageCount(t *testing.T) {
	holders := []schema.Holder{
		{Percentage: 2.0}, {Percentage: 2.02}, {Percentage: 1.98},
		{Percentage: 3.5}, {Percentage: 10.0},
	}
	if n := identicalPercentageCount(holders, 0.5, 5.0); n != 3 {
		t.Fatalf("expected 3 holders at identical rounded percentage, got %d", n)
	}
	if n := identicalPercentageCount(nil, 0.5, 5.0); n != 0 {
		t.Fatalf("expected 0 for no holders, got %d", n)
	}
}

func TestSumTopNAndTopN(t *testing.T) {
	holders := []schema.Holder{
		{Address: "a", Percentage: 10},
		{Address: "b", Percentage: 30},
		{Address: "c", Percentage: 20},
	}
	if sum := sumTopN(holders, 2); sum != 50 {
		t.Fatalf("expected top2 sum 50, got %v", sum)
	}
	top := topN(holders, 1)
	if len(top) != 1 || top[0].Address != "b" {
		t.Fatalf("expected top1 to be holder b, got %+v", top)
	}
}

func TestLargestPercentageGroup(t *testing.T) {
	holders := []schema.Holder{
		{Percentage: 1.00}, {Percentage: 1.01}, {Percentage: 1.02},
		{Percentage: 1.03}, {Percentage: 1.04}, {Percentage: 9.0},
	}
	if n := largestPercentageGroup(holders); n < 5 {
		t.Fatalf("expected largest group >= 5, got %d", n)
	}
}

func TestExchangeRatio(t *testing.T) {
	holders := []schema.Holder{{IsExchange: true}, {IsExchange: true}, {IsExchange: false}}
	if r := exchangeRatio(holders); r < 0.6 || r > 0.7 {
		t.Fatalf("expected ratio ~0.667, got %v", r)
	}
}

func TestBundleAnalyzeNoFetcher(t *testing.T) {
	d := NewBundleDetector()
	out := d.Analyze(nil, Input{})
	if !out.Empty || !out.FailedHard {
		t.Fatalf("expected hard-failed empty output with nil fetcher, got %+v", out)
	}
}
