package rpcpool

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solguard/riskengine/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		RPCEndpoints: []config.Endpoint{
			{URL: "https://a.example", Weight: 10, Label: "a"},
			{URL: "https://b.example", Weight: 90, Label: "b"},
		},
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
		Jitter:      0.2,
	}
}

func TestSelectSkipsUnhealthy(t *testing.T) {
	p := New(testConfig())
	p.endpoints[0].score = 10 // unhealthy

	for i := 0; i < 20; i++ {
		ep, err := p.Select()
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if ep.Label == "a" {
			t.Fatalf("selected unhealthy endpoint a")
		}
	}
}

func TestSelectResetsWhenAllUnhealthy(t *testing.T) {
	p := New(testConfig())
	for _, e := range p.endpoints {
		e.score = 0
	}
	ep, err := p.Select()
	if err != nil {
		t.Fatalf("select after reset: %v", err)
	}
	if ep == nil {
		t.Fatal("expected non-nil endpoint after reset")
	}
	for _, e := range p.endpoints {
		if e.Score() != 100 {
			t.Fatalf("expected score reset to 100, got %d", e.Score())
		}
	}
}

func TestHealthAccounting(t *testing.T) {
	ep := newEndpoint(config.Endpoint{URL: "https://x", Weight: 50})
	ep.onHardFailure()
	if ep.Score() != 80 || ep.FailCount() != 1 {
		t.Fatalf("hard failure accounting wrong: score=%d fail=%d", ep.Score(), ep.FailCount())
	}
	ep.onSuccess()
	if ep.Score() != 85 {
		t.Fatalf("success accounting wrong: score=%d", ep.Score())
	}
	for i := 0; i < 10; i++ {
		ep.onHardFailure()
	}
	if ep.Score() != 0 {
		t.Fatalf("score should floor at 0, got %d", ep.Score())
	}
	for i := 0; i < 30; i++ {
		ep.onSuccess()
	}
	if ep.Score() != 100 {
		t.Fatalf("score should cap at 100, got %d", ep.Score())
	}
}

func TestCallRetriesUntilBudgetExhausted(t *testing.T) {
	p := New(testConfig())
	attempts := 0
	_, err := Call(context.Background(), p, "test", func(_ context.Context, _ *rpc.Client) (int, error) {
		attempts++
		return 0, errAs("boom")
	})
	if err != ErrAllEndpointsFailed {
		t.Fatalf("expected ErrAllEndpointsFailed, got %v", err)
	}
	if want := 2 * len(p.endpoints); attempts != want {
		t.Fatalf("expected %d attempts, got %d", want, attempts)
	}
}

func TestCallSucceedsAfterFailure(t *testing.T) {
	p := New(testConfig())
	attempts := 0
	got, err := Call(context.Background(), p, "test", func(_ context.Context, _ *rpc.Client) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errAs("transient")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("expected success on retry, got %q err=%v", got, err)
	}
}

func TestCallHonorsCancelledContext(t *testing.T) {
	p := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, p, "test", func(_ context.Context, _ *rpc.Client) (int, error) {
		t.Fatal("fn must not run under a cancelled context")
		return 0, nil
	})
	if err != ErrDeadlineExceeded {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
}

func TestJitteredStaysWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := jittered(base, 0.2)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered value %v outside +/-20%% of base", d)
		}
	}
	if d := jittered(base, 0); d != base {
		t.Fatalf("zero jitter must return base, got %v", d)
	}
}

func TestClassify(t *testing.T) {
	if classify(errAs("HTTP 429 Too Many Requests")) != kindSoft {
		t.Fatal("expected soft classification for 429")
	}
	if classify(errAs("connection refused")) != kindHard {
		t.Fatal("expected hard classification for connection refused")
	}
}

type strErr string

func (e strErr) Error() string { return string(e) }
func errAs(s string) error     { return strErr(s) }
