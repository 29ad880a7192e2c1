package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
)

type step struct {
	status domain.MCPServerStatus
	err    error
}

type sequenceGetter struct {
	mu    sync.Mutex
	steps []step
	calls int
	hook  func(call int)
}

func (g *sequenceGetter) Get(_ context.Context, name string) (*domain.MCPServer, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	idx := call - 1
	if idx >= len(g.steps) {
		idx = len(g.steps) - 1
	}
	s := g.steps[idx]
	hook := g.hook
	g.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if s.err != nil {
		return nil, s.err
	}
	server := &domain.MCPServer{Status: s.status}
	server.Name = name
	return server, nil
}

func (g *sequenceGetter) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestPoller(g Getter, attempts int, reg *prometheus.Registry) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller(g, PollerConfig{
		Interval:     time.Millisecond,
		MaxAttempts:  attempts,
		SafetyBuffer: time.Second,
		Registerer:   reg,
	}, logger)
}

func TestWaitUntilReadyReturnsURL(t *testing.T) {
	pending := step{status: domain.MCPServerStatus{Phase: domain.PhasePending}}
	g := &sequenceGetter{steps: []step{
		{err: ErrNotFound},
		pending,
		pending,
		{status: domain.MCPServerStatus{Phase: domain.PhaseRunning}},
		{status: domain.MCPServerStatus{Phase: domain.PhaseRunning, URL: "http://x:8080"}},
	}}
	reg := prometheus.NewRegistry()
	p := newTestPoller(g, 10, reg)

	var seen []Observation
	url, err := p.WaitUntilReady(context.Background(), "wiki", func(o Observation) { seen = append(seen, o) })
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if url != "http://x:8080" {
		t.Fatalf("unexpected url %q", url)
	}
	if g.count() != 5 {
		t.Fatalf("expected 5 lookups, got %d", g.count())
	}
	if len(seen) != 5 || seen[0].Found || seen[0].Error == "" || seen[4].Attempt != 5 {
		t.Fatalf("unexpected observations %+v", seen)
	}
	if got := testutil.ToFloat64(p.outcomes.WithLabelValues("ready")); got != 1 {
		t.Fatalf("expected ready outcome recorded once, got %v", got)
	}
}

func TestWaitUntilReadyStopsOnFailed(t *testing.T) {
	g := &sequenceGetter{steps: []step{
		{status: domain.MCPServerStatus{Phase: domain.PhasePending}},
		{status: domain.MCPServerStatus{Phase: domain.PhaseFailed, Message: "ImagePullBackOff"}},
		{status: domain.MCPServerStatus{Phase: domain.PhaseRunning, URL: "http://never"}},
	}}
	p := newTestPoller(g, 10, prometheus.NewRegistry())

	_, err := p.WaitUntilReady(context.Background(), "wiki")
	if !errors.Is(err, ErrServerFailed) {
		t.Fatalf("expected failed error, got %v", err)
	}
	var failed *FailedError
	if !errors.As(err, &failed) || failed.Message != "ImagePullBackOff" {
		t.Fatalf("expected reason to be preserved, got %v", err)
	}
	if g.count() != 2 {
		t.Fatalf("expected no lookup after Failed, got %d calls", g.count())
	}
}

func TestWaitUntilReadyTimesOutAfterMaxAttempts(t *testing.T) {
	g := &sequenceGetter{steps: []step{{status: domain.MCPServerStatus{Phase: domain.PhasePending}}}}
	reg := prometheus.NewRegistry()
	p := newTestPoller(g, 4, reg)

	_, err := p.WaitUntilReady(context.Background(), "wiki")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected poll timeout, got %v", err)
	}
	if g.count() != 4 {
		t.Fatalf("expected exactly 4 lookups, got %d", g.count())
	}
	if got := testutil.ToFloat64(p.outcomes.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("expected timeout outcome, got %v", got)
	}
}

func TestWaitUntilReadyTreatsLookupErrorsAsTransient(t *testing.T) {
	g := &sequenceGetter{steps: []step{
		{err: &UpstreamError{Op: "get", Err: errors.New("connection reset")}},
		{err: ErrNotFound},
		{status: domain.MCPServerStatus{Phase: domain.PhaseRunning, URL: "http://ok"}},
	}}
	p := newTestPoller(g, 5, prometheus.NewRegistry())

	url, err := p.WaitUntilReady(context.Background(), "wiki")
	if err != nil || url != "http://ok" {
		t.Fatalf("expected url after transient errors, got %q, %v", url, err)
	}
}

func TestWaitUntilReadyStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := &sequenceGetter{
		steps: []step{{status: domain.MCPServerStatus{Phase: domain.PhasePending}}},
		hook: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	p := newTestPoller(g, 100, prometheus.NewRegistry())

	_, err := p.WaitUntilReady(ctx, "wiki")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	calls := g.count()
	time.Sleep(20 * time.Millisecond)
	if g.count() != calls {
		t.Fatalf("expected polling to stop after cancellation, calls went %d -> %d", calls, g.count())
	}
}

func TestWaitUntilReadyWallClockLimit(t *testing.T) {
	g := &sequenceGetter{
		steps: []step{{status: domain.MCPServerStatus{Phase: domain.PhasePending}}},
		hook:  func(int) { time.Sleep(30 * time.Millisecond) },
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPoller(g, PollerConfig{
		Interval:     time.Millisecond,
		MaxAttempts:  1000,
		SafetyBuffer: 50 * time.Millisecond,
		Registerer:   prometheus.NewRegistry(),
	}, logger)

	_, err := p.WaitUntilReady(context.Background(), "wiki")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected poll timeout from wall-clock limit, got %v", err)
	}
	if g.count() >= 1000 {
		t.Fatalf("expected the wall-clock limit to cut polling short, got %d calls", g.count())
	}
}
