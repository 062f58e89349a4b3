// Package fusion implements the analysis-request state machine:
// concurrent detector dispatch, capped-sum scoring, evidence dedup,
// in-flight coalescing and the per-mint re-analysis cooldown.
package fusion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/detectors"
	"github.com/solguard/riskengine/internal/schema"
)

const perDetectorTimeout = 30 * time.Second

// Aggregator fans an Input out to every registered detector and fuses
// their outputs into one AnalysisReport.
type Aggregator struct {
	cfg       *config.Config
	detectors []detectors.Detector

	group singleflight.Group

	mu           sync.Mutex
	lastAnalyzed map[string]time.Time
	lastReport   map[string]*schema.AnalysisReport
}

// New builds an Aggregator over the given detector set.
func New(cfg *config.Config, dets []detectors.Detector) *Aggregator {
	return &Aggregator{
		cfg:          cfg,
		detectors:    dets,
		lastAnalyzed: map[string]time.Time{},
		lastReport:   map[string]*schema.AnalysisReport{},
	}
}

// Analyze runs (or coalesces into) one fused analysis for in.Mint. A
// request for a mint analyzed within the dedup cooldown window returns
// the cached report unless bypass is true.
func (a *Aggregator) Analyze(ctx context.Context, in detectors.Input, bypass bool) (*schema.AnalysisReport, error) {
	if !bypass {
		if cached, ok := a.cachedReport(in.Mint); ok {
			log.Debug().Str("mint", in.Mint).Msg("fusion: dedup cooldown hit, returning cached report")
			return cached, nil
		}
	}

	v, err, shared := a.group.Do(in.Mint, func() (interface{}, error) {
		return a.dispatch(ctx, in)
	})
	if shared {
		log.Debug().Str("mint", in.Mint).Msg("fusion: coalesced into in-flight analysis")
	}
	if err != nil {
		return nil, err
	}
	return v.(*schema.AnalysisReport), nil
}

func (a *Aggregator) cachedReport(mint string) (*schema.AnalysisReport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	window := a.cfg.DeduplicationWindow
	at, ok := a.lastAnalyzed[mint]
	if !ok || time.Since(at) > window {
		return nil, false
	}
	return a.lastReport[mint], true
}

// dispatch runs every detector concurrently (state: Dispatched),
// fuses their outputs (state: Fused), and publishes the result into the
// dedup cache (state: Cached).
func (a *Aggregator) dispatch(ctx context.Context, in detectors.Input) (*schema.AnalysisReport, error) {
	log.Debug().Str("mint", in.Mint).Msg("fusion: state=Dispatched")

	analysisCtx, cancel := context.WithTimeout(ctx, a.cfg.AnalysisTimeout)
	defer cancel()

	outputs := make([]schema.DetectorOutput, len(a.detectors))
	var eg errgroup.Group
	for i, det := range a.detectors {
		i, det := i, det
		eg.Go(func() error {
			dctx, dcancel := context.WithTimeout(analysisCtx, perDetectorTimeout)
			defer dcancel()
			outputs[i] = det.Analyze(dctx, in)
			return nil
		})
	}
	_ = eg.Wait() // detector failures never error; they degrade to empty outputs

	report := fuse(in.Mint, outputs)
	log.Debug().Str("mint", in.Mint).Int("safety_score", report.SafetyScore).Msg("fusion: state=Fused")

	a.mu.Lock()
	a.lastAnalyzed[in.Mint] = time.Now()
	a.lastReport[in.Mint] = report
	a.mu.Unlock()
	log.Debug().Str("mint", in.Mint).Msg("fusion: state=Cached")

	return report, nil
}

// fuse combines detector outputs: capped-sum scoring, risk-level
// thresholding, and evidence dedup + stable sort by severity.
func fuse(mint string, outputs []schema.DetectorOutput) *schema.AnalysisReport {
	sum := 0
	var allFindings []schema.Finding
	byName := map[schema.DetectorName]schema.DetectorOutput{}
	partial := false

	for _, out := range outputs {
		byName[out.Name] = out
		if out.Empty {
			if out.FailedHard {
				partial = true
			}
			continue
		}
		sum += out.PartialScore
		allFindings = append(allFindings, out.Findings...)
	}
	sum = schema.Clamp(sum, 0, 100)
	safety := 100 - sum

	findings := dedupFindings(allFindings)
	if len(findings) == 0 && partial {
		findings = append(findings, schema.Finding{
			Severity: schema.SeverityInfo,
			Code:     "data_unavailable",
			Message:  "data unavailable",
		})
	}

	return &schema.AnalysisReport{
		Mint:        mint,
		SafetyScore: safety,
		RiskLevel:   schema.RiskLevelFor(safety),
		Findings:    findings,
		Detectors:   byName,
		EvaluatedAt: time.Now(),
		Partial:     partial,
	}
}

// dedupFindings removes findings whose code and message both repeat an
// earlier finding exactly, and stable-sorts the
// remainder by severity (CRITICAL, HIGH, MEDIUM, LOW, INFO).
func dedupFindings(findings []schema.Finding) []schema.Finding {
	seen := map[string]bool{}
	out := make([]schema.Finding, 0, len(findings))
	for _, f := range findings {
		key := f.Code + "|" + f.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity < out[j].Severity })
	return out
}
