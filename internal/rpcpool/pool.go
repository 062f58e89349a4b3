// Package rpcpool implements a weighted, health-scored RPC load
// balancer: endpoint selection proportional to weight among healthy
// endpoints, exponential backoff with jitter on retry, and a background
// heartbeat that nudges scores without ever surfacing its own result.
package rpcpool

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/solguard/riskengine/internal/config"
)

// Endpoint is one RPC backend with its mutable health state behind a
// per-endpoint lock.
type Endpoint struct {
	URL    string
	Weight int
	Label  string

	client *rpc.Client

	mu           sync.Mutex
	score        int
	failCount    int
	backoffUntil time.Time
}

func newEndpoint(e config.Endpoint) *Endpoint {
	return &Endpoint{
		URL:    e.URL,
		Weight: e.Weight,
		Label:  e.Label,
		client: rpc.New(e.URL),
		score:  100,
	}
}

// Score returns the current health score under lock.
func (e *Endpoint) Score() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// FailCount returns the monotonically increasing failure count.
func (e *Endpoint) FailCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failCount
}

func (e *Endpoint) onSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.score = min(100, e.score+5)
}

func (e *Endpoint) onHardFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.score = max(0, e.score-20)
	e.failCount++
}

func (e *Endpoint) onSoftFailure(backoff time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.score = max(0, e.score-20)
	e.failCount++
	e.backoffUntil = time.Now().Add(backoff)
}

func (e *Endpoint) onHeartbeat(ok bool) {
	if ok {
		e.onSuccess()
		return
	}
	e.onHardFailure()
}

func (e *Endpoint) inBackoff() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Now().Before(e.backoffUntil)
}

func (e *Endpoint) resetScore() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.score = 100
}

// Pool selects and calls across a set of endpoints, tracking health and
// retrying with backoff on failure.
type Pool struct {
	cfg       *config.Config
	endpoints []*Endpoint

	randMu sync.Mutex
	rnd    *rand.Rand

	heartbeat *cron.Cron
}

// New constructs a Pool from the configured endpoint list. The caller
// owns the returned Pool; there is no package-level shared state.
func New(cfg *config.Config) *Pool {
	p := &Pool{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, e := range cfg.RPCEndpoints {
		p.endpoints = append(p.endpoints, newEndpoint(e))
	}
	return p
}

// StartHeartbeat launches a background current-slot ping against every
// endpoint once per 30s. It only adjusts scores; its result is never
// observable outside the pool. Stop via ctx cancellation.
func (p *Pool) StartHeartbeat(ctx context.Context) {
	p.heartbeat = cron.New(cron.WithSeconds())
	_, err := p.heartbeat.AddFunc("*/30 * * * * *", func() {
		p.pingAll(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Msg("heartbeat schedule failed")
		return
	}
	p.heartbeat.Start()
	go func() {
		<-ctx.Done()
		p.heartbeat.Stop()
	}()
}

func (p *Pool) pingAll(ctx context.Context) {
	for _, ep := range p.endpoints {
		go func(ep *Endpoint) {
			hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_, err := ep.client.GetSlot(hctx, rpc.CommitmentConfirmed)
			ep.onHeartbeat(err == nil)
		}(ep)
	}
}

// Select returns a healthy endpoint, sampling proportionally to weight
// among endpoints with score > 50 that are not in a rate-limit backoff.
// If none are healthy, all scores are reset to 100 and the selection is
// retried once; the reset does not clear backoff, so endpoints still
// backing off stay excluded.
func (p *Pool) Select() (*Endpoint, error) {
	healthy := p.healthySet()
	if len(healthy) == 0 {
		for _, e := range p.endpoints {
			e.resetScore()
		}
		healthy = p.healthySet()
	}
	if len(healthy) == 0 {
		return nil, ErrAllEndpointsFailed
	}

	var bag []*Endpoint
	for _, e := range healthy {
		for i := 0; i < e.Weight; i++ {
			bag = append(bag, e)
		}
	}

	p.randMu.Lock()
	idx := p.rnd.Intn(len(bag))
	p.randMu.Unlock()
	return bag[idx], nil
}

func (p *Pool) healthySet() []*Endpoint {
	var out []*Endpoint
	for _, e := range p.endpoints {
		if e.Score() > 50 && !e.inBackoff() {
			out = append(out, e)
		}
	}
	return out
}

// Call runs fn against a selected endpoint's RPC client, retrying up to
// 2*len(endpoints) times with exponential backoff and jitter on failure.
// Each retry re-selects a (possibly the same) endpoint.
func Call[T any](ctx context.Context, p *Pool, method string, fn func(context.Context, *rpc.Client) (T, error)) (T, error) {
	var zero T
	maxAttempts := 2 * len(p.endpoints)
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	backoff := p.cfg.BackoffBase
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ErrDeadlineExceeded
		}

		ep, err := p.Select()
		if err != nil {
			return zero, err
		}

		result, callErr := fn(ctx, ep.client)
		if callErr == nil {
			ep.onSuccess()
			return result, nil
		}

		kind := classify(callErr)
		switch kind {
		case kindSoft:
			ep.onSoftFailure(jittered(backoff, p.cfg.Jitter))
		default:
			ep.onHardFailure()
		}

		log.Warn().Err(callErr).Str("endpoint", ep.Label).Str("method", method).
			Int("attempt", attempt).Msg("rpc call failed, retrying")

		select {
		case <-ctx.Done():
			return zero, ErrDeadlineExceeded
		case <-time.After(jittered(backoff, p.cfg.Jitter)):
		}

		backoff *= 2
		if backoff > p.cfg.BackoffMax {
			backoff = p.cfg.BackoffMax
		}
	}

	return zero, ErrAllEndpointsFailed
}

type failureKind int

const (
	kindHard failureKind = iota
	kindSoft
)

// classify maps a transport/RPC error to hard vs soft failure. Solana
// RPC nodes signal rate limiting via HTTP 429 or a "Too Many Requests"
// / "rate limit" substring in the wrapped error text.
func classify(err error) failureKind {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return kindSoft
	}
	return kindHard
}

func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	delta := float64(base) * jitter
	offset := (rand.Float64()*2 - 1) * delta // +/- jitter
	d := time.Duration(float64(base) + offset)
	if d < 0 {
		d = 0
	}
	return d
}

