package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/detectors"
	"github.com/solguard/riskengine/internal/schema"
)

type fakeDetector struct {
	name   schema.DetectorName
	output schema.DetectorOutput
}

func (f *fakeDetector) Name() schema.DetectorName { return f.name }
func (f *fakeDetector) Analyze(_ context.Context, _ detectors.Input) schema.DetectorOutput {
	return f.output
}

func testCfg() *config.Config {
	return &config.Config{AnalysisTimeout: 30 * time.Second, DeduplicationWindow: 30 * time.Second}
}

func TestFuseZeroHoldersSafe(t *testing.T) {
	outputs := []schema.DetectorOutput{
		{Name: schema.DetectorBundle, Empty: true},
		{Name: schema.DetectorAgedWallet, Empty: true},
	}
	report := fuse("mint1", outputs)
	if report.SafetyScore != 100 {
		t.Fatalf("expected safety_score 100, got %d", report.SafetyScore)
	}
	if report.RiskLevel != schema.RiskSafe {
		t.Fatalf("expected SAFE, got %v", report.RiskLevel)
	}
	if report.Partial {
		t.Fatalf("expected partial=false for soft-empty detectors")
	}
}

func TestFuseAllEndpointsFailedPartial(t *testing.T) {
	outputs := []schema.DetectorOutput{
		{Name: schema.DetectorBundle, Empty: true, FailedHard: true},
	}
	report := fuse("mint1", outputs)
	if report.SafetyScore != 100 {
		t.Fatalf("expected safety_score 100, got %d", report.SafetyScore)
	}
	if !report.Partial {
		t.Fatalf("expected partial=true")
	}
	if len(report.Findings) != 1 || report.Findings[0].Code != "data_unavailable" {
		t.Fatalf("expected single data_unavailable finding, got %+v", report.Findings)
	}
}

func TestFuseCapsScoreAt100(t *testing.T) {
	outputs := []schema.DetectorOutput{
		{Name: schema.DetectorBundle, PartialScore: 80},
		{Name: schema.DetectorAgedWallet, PartialScore: 80},
	}
	report := fuse("mint1", outputs)
	if report.SafetyScore != 0 {
		t.Fatalf("expected safety_score clamped to 0, got %d", report.SafetyScore)
	}
	if report.RiskLevel != schema.RiskDangerous {
		t.Fatalf("expected DANGEROUS, got %v", report.RiskLevel)
	}
}

func TestDedupFindingsSortsBySeverity(t *testing.T) {
	findings := []schema.Finding{
		{Severity: schema.SeverityLow, Code: "a", Message: "low"},
		{Severity: schema.SeverityCritical, Code: "b", Message: "crit"},
		{Severity: schema.SeverityLow, Code: "a", Message: "low"}, // duplicate
	}
	out := dedupFindings(findings)
	if len(out) != 2 {
		t.Fatalf("expected dedup to drop the duplicate, got %d entries", len(out))
	}
	if out[0].Severity != schema.SeverityCritical {
		t.Fatalf("expected CRITICAL finding first, got %v", out[0].Severity)
	}
}

func TestAggregatorAnalyzeDispatchesAll(t *testing.T) {
	dets := []detectors.Detector{
		&fakeDetector{name: schema.DetectorBundle, output: schema.DetectorOutput{Name: schema.DetectorBundle, PartialScore: 10}},
		&fakeDetector{name: schema.DetectorWhale, output: schema.DetectorOutput{Name: schema.DetectorWhale, PartialScore: 5}},
	}
	agg := New(testCfg(), dets)
	report, err := agg.Analyze(context.Background(), detectors.Input{Mint: "mint1"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SafetyScore != 85 {
		t.Fatalf("expected safety_score 85, got %d", report.SafetyScore)
	}
}

func TestAggregatorDedupCooldown(t *testing.T) {
	dets := []detectors.Detector{
		&fakeDetector{name: schema.DetectorBundle, output: schema.DetectorOutput{Name: schema.DetectorBundle, PartialScore: 10}},
	}
	agg := New(testCfg(), dets)
	r1, _ := agg.Analyze(context.Background(), detectors.Input{Mint: "mint1"}, false)
	r2, _ := agg.Analyze(context.Background(), detectors.Input{Mint: "mint1"}, false)
	if r1 != r2 {
		t.Fatalf("expected the same cached report object within the dedup window")
	}
}
