package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterCallDelay spaces catalog calls during a sweep.
const DefaultInterCallDelay = 2 * time.Second

// Gate is waited on before every catalog call in a sweep.
type Gate interface {
	Wait(ctx context.Context) error
}

type GateFunc func(ctx context.Context) error

func (f GateFunc) Wait(ctx context.Context) error { return f(ctx) }

// DelayGate sleeps a fixed duration before every call, including the first.
type DelayGate struct{ d time.Duration }

func NewDelayGate(d time.Duration) *DelayGate { return &DelayGate{d: d} }

func (g *DelayGate) Wait(ctx context.Context) error {
	if g.d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LimiterGate allows one call per interval with burst 1. The first call after
// an idle period passes immediately.
type LimiterGate struct{ lim *rate.Limiter }

func NewLimiterGate(every time.Duration) *LimiterGate {
	if every <= 0 {
		return &LimiterGate{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &LimiterGate{lim: rate.NewLimiter(rate.Every(every), 1)}
}

func (g *LimiterGate) Wait(ctx context.Context) error { return g.lim.Wait(ctx) }

// NopGate never waits.
type NopGate struct{}

func (NopGate) Wait(ctx context.Context) error { return ctx.Err() }

// NewGate builds a gate by name: "delay" (default) or "limiter".
func NewGate(kind string, d time.Duration) (Gate, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "delay":
		return NewDelayGate(d), nil
	case "limiter":
		return NewLimiterGate(d), nil
	case "none":
		return NopGate{}, nil
	default:
		return nil, fmt.Errorf("unknown gate %q (use delay or limiter)", kind)
	}
}
