package detectors

import "testing"

func TestSniperAnalyzeNoFetcher(t *testing.T) {
	d := NewSniperDetector()
	out := d.Analyze(nil, Input{})
	if !out.Empty || !out.FailedHard {
		t.Fatalf("expected hard-failed empty output with nil fetcher, got %+v", out)
	}
}
