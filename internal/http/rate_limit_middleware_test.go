package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := rl.Allow(ctx, "user:7:mcpservers:write", 3, time.Minute)
		if !d.allowed || d.count != i {
			t.Fatalf("call %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow(ctx, "user:7:mcpservers:write", 3, time.Minute); d.allowed {
		t.Fatalf("expected fourth call to be rejected, got %+v", d)
	}
	if d := rl.Allow(ctx, "user:7:mcpservers:read", 3, time.Minute); !d.allowed {
		t.Fatalf("read budget must be independent of writes, got %+v", d)
	}
	if d := rl.Allow(ctx, "user:7:mcpservers:write", 0, time.Minute); !d.allowed {
		t.Fatalf("zero limit disables limiting, got %+v", d)
	}
}

func TestMemoryRateLimiterCleanup(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()
	rl.Allow(context.Background(), "ip:10.0.0.1:ws:read", 1, time.Millisecond)
	rl.cleanup(time.Now().Add(time.Second))
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired entries to be swept, got %v", rl.entries)
	}
}

func TestRatePolicyForMethod(t *testing.T) {
	p := ratePolicy{read: 100, write: 5}
	if class, limit := p.forMethod(http.MethodGet); class != "read" || limit != 100 {
		t.Fatalf("unexpected GET policy %s/%d", class, limit)
	}
	if class, limit := p.forMethod(http.MethodDelete); class != "write" || limit != 5 {
		t.Fatalf("unexpected DELETE policy %s/%d", class, limit)
	}
}

func TestRateMetricKey(t *testing.T) {
	cases := map[string]string{
		"user:7":        "user",
		"ip:10.0.0.1":   "ip",
		"":              "unknown",
		"anonymous-key": "anonymous-key",
	}
	for in, want := range cases {
		if got := rateMetricKey(in); got != want {
			t.Fatalf("rateMetricKey(%q) = %q, want %q", in, got, want)
		}
	}
}
