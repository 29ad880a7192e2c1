package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 60
	defaultPollBuffer   = 10 * time.Second
)

// Getter looks up a server by name.
type Getter interface {
	Get(ctx context.Context, name string) (*domain.MCPServer, error)
}

// PollerConfig bounds the wait loop. The wall-clock limit is
// MaxAttempts*Interval+SafetyBuffer.
type PollerConfig struct {
	Interval     time.Duration
	MaxAttempts  int
	SafetyBuffer time.Duration
	Registerer   prometheus.Registerer
}

// Observation is one poll result, streamed to observers.
type Observation struct {
	Name    string                `json:"name"`
	Attempt int                   `json:"attempt"`
	Found   bool                  `json:"found"`
	Phase   domain.MCPServerPhase `json:"phase,omitempty"`
	URL     string                `json:"url,omitempty"`
	Message string                `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
	At      time.Time             `json:"at"`
}

// Observer receives every Observation of a wait.
type Observer func(Observation)

// Poller waits for a freshly created server to reach a terminal state.
type Poller struct {
	getter   Getter
	cfg      PollerConfig
	logger   *slog.Logger
	outcomes *prometheus.CounterVec
}

// NewPoller constructs a Poller, filling zero config fields with defaults.
func NewPoller(getter Getter, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultPollAttempts
	}
	if cfg.SafetyBuffer <= 0 {
		cfg.SafetyBuffer = defaultPollBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{getter: getter, cfg: cfg, logger: logger, outcomes: newPollMetrics(cfg.Registerer)}
}

// WaitUntilReady polls name every Interval and returns its URL once it is
// Running with a URL. Failed ends the wait immediately with a *FailedError.
// Lookup errors and not-found are treated as transient. Exhausting the attempt
// budget, or the wall-clock limit, yields ErrPollTimeout. Cancelling ctx stops
// the loop and returns ctx.Err().
func (p *Poller) WaitUntilReady(ctx context.Context, name string, observers ...Observer) (string, error) {
	limit := time.Duration(p.cfg.MaxAttempts)*p.cfg.Interval + p.cfg.SafetyBuffer
	attempt := 0
	readyURL := ""

	err := wait.PollUntilContextTimeout(ctx, p.cfg.Interval, limit, false, func(pollCtx context.Context) (bool, error) {
		attempt++
		server, err := p.getter.Get(pollCtx, name)
		obs := Observation{Name: name, Attempt: attempt, At: time.Now().UTC()}
		if err != nil {
			obs.Error = err.Error()
			p.logger.Debug("mcp server not observable yet", "name", name, "attempt", attempt, "error", err)
		} else {
			obs.Found = true
			obs.Phase = server.Status.Phase
			obs.URL = server.Status.URL
			obs.Message = server.Status.Message
		}
		for _, observe := range observers {
			observe(obs)
		}

		if err == nil {
			switch {
			case server.Status.Ready():
				readyURL = server.Status.URL
				return true, nil
			case server.Status.Phase == domain.PhaseFailed:
				return false, &FailedError{Name: name, Message: server.Status.Message}
			}
			p.logger.Debug("mcp server not ready", "name", name, "attempt", attempt, "phase", server.Status.Phase)
		}
		if attempt >= p.cfg.MaxAttempts {
			return false, fmt.Errorf("%w: %s not ready after %d attempts", ErrPollTimeout, name, attempt)
		}
		return false, nil
	})

	switch {
	case err == nil:
		p.record("ready")
		p.logger.Info("mcp server ready", "name", name, "url", readyURL, "attempts", attempt)
		return readyURL, nil
	case errors.Is(err, ErrServerFailed):
		p.record("failed")
		p.logger.Warn("mcp server failed", "name", name, "attempts", attempt, "error", err)
		return "", err
	case errors.Is(err, ErrPollTimeout):
		p.record("timeout")
		p.logger.Warn("mcp server wait timed out", "name", name, "attempts", attempt)
		return "", err
	case ctx.Err() != nil:
		p.record("cancelled")
		return "", ctx.Err()
	default:
		p.record("timeout")
		p.logger.Warn("mcp server wait hit wall-clock limit", "name", name, "attempts", attempt, "limit", limit, "error", err)
		return "", fmt.Errorf("%w: %s not ready within %s", ErrPollTimeout, name, limit)
	}
}

func (p *Poller) record(outcome string) {
	if p.outcomes == nil {
		return
	}
	p.outcomes.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func newPollMetrics(reg prometheus.Registerer) *prometheus.CounterVec {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpforge",
		Subsystem: "mcpserver",
		Name:      "poll_outcomes_total",
		Help:      "Readiness waits by terminal outcome",
	}, []string{"outcome"})
	if err := reg.Register(outcomes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return outcomes
}
