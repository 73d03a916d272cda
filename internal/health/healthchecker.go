package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, index, embedder, cache).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// HealthPinger is implemented by dependencies with a cheap liveness probe.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// ServiceHealthChecker aggregates component checkers into a single service health flag.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// StartAll launches every dependency checker and the aggregator. It
// returns immediately; everything stops when ctx is cancelled.
func (h *ServiceHealthChecker) StartAll(ctx context.Context, interval time.Duration) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, d := range h.deps {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			c.Start(ctx, interval)
		}(d)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Start(ctx, interval)
	}()
	return &wg
}

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		var down []string
		for _, c := range h.deps {
			if !c.IsHealthy() {
				down = append(down, c.Name())
			}
		}
		if len(down) == 0 {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Strs("down", down).Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}

// ProbeChecker turns a probe function into a HealthChecker.
type ProbeChecker struct {
	name         string
	probe        func(ctx context.Context) error
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewProbeChecker starts unhealthy until the first successful probe.
func NewProbeChecker(name string, probe func(ctx context.Context) error, log zerolog.Logger, probeTimeout time.Duration) *ProbeChecker {
	c := &ProbeChecker{name: name, probe: probe, log: log, probeTimeout: probeTimeout}
	c.healthy.Store(0)
	return c
}

func (c *ProbeChecker) Name() string    { return c.name }
func (c *ProbeChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

// Check runs the probe once and records the result.
func (c *ProbeChecker) Check(ctx context.Context) error {
	to := c.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()
	if err := c.probe(checkCtx); err != nil {
		c.healthy.Store(0)
		c.log.Error().Str("checker", c.name).Err(err).Msg("health check failed")
		return err
	}
	c.healthy.Store(1)
	return nil
}

func (c *ProbeChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Check(ctx)
		}
	}
}

// Embedder is the subset of an embedding provider used for probing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PingProbe probes target via HealthPinger, falling back to a test
// embedding when target is an Embedder without a dedicated ping.
func PingProbe(target any) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if p, ok := target.(HealthPinger); ok {
			return p.HealthPing(ctx)
		}
		if e, ok := target.(Embedder); ok {
			vec, err := e.Embed(ctx, "health-check")
			if err != nil {
				return err
			}
			if len(vec) == 0 {
				return errors.New("empty embedding")
			}
			return nil
		}
		return errors.New("no probe available")
	}
}
