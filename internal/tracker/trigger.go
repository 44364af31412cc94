package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "steamwatch/pkg/logx"
)

// ErrTriggerStopped is returned by RunNow before Start or after Stop.
var ErrTriggerStopped = errors.New("tracker: trigger not running")

type TriggerConfig struct {
	Enabled  bool
	Schedule string // see ParseSchedule; empty means DefaultSchedule
	Timezone string
}

// Trigger fires sweeps on a schedule. A sweep that is still running when the
// next tick arrives causes that tick to be skipped.
type Trigger struct {
	t   *Tracker
	log logx.Logger

	mu      sync.Mutex
	cfg     TriggerConfig
	c       *cron.Cron
	entry   cron.EntryID
	baseCtx context.Context
	started bool
	bg      sync.WaitGroup
}

func NewTrigger(t *Tracker, cfg TriggerConfig, log logx.Logger) *Trigger {
	return &Trigger{t: t, cfg: cfg, log: log, baseCtx: context.Background()}
}

// Validate checks a config without applying it.
func (tr *Trigger) Validate(cfg TriggerConfig) error {
	_, _, err := buildSchedule(cfg)
	return err
}

func buildSchedule(cfg TriggerConfig) (cron.Schedule, ParsedSpec, error) {
	raw := strings.TrimSpace(cfg.Schedule)
	if raw == "" {
		raw = DefaultSchedule
	}
	spec, err := ParseSchedule(raw)
	if err != nil {
		return nil, ParsedSpec{}, err
	}
	sched, err := spec.Schedule()
	if err != nil {
		return nil, ParsedSpec{}, err
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return nil, ParsedSpec{}, err
	}
	return sched, spec, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Start begins triggering. Sweeps run with ctx; canceling it aborts a sweep
// in progress between items.
func (tr *Trigger) Start(ctx context.Context) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.baseCtx = ctx
	tr.started = true
	return tr.startLocked()
}

func (tr *Trigger) startLocked() error {
	if tr.c != nil || !tr.cfg.Enabled {
		if !tr.cfg.Enabled {
			tr.log.Info("price tracking disabled")
		}
		return nil
	}
	sched, spec, err := buildSchedule(tr.cfg)
	if err != nil {
		return err
	}
	loc, _ := loadLocation(tr.cfg.Timezone)

	cl := cronLogger{log: tr.log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx := tr.baseCtx
	tr.entry = c.Schedule(sched, cron.FuncJob(func() { tr.run(ctx, "schedule") }))
	c.Start()
	tr.c = c

	tr.log.Info("price tracking scheduled",
		logx.String("schedule", spec.String()),
		logx.String("tz", loc.String()),
		logx.Time("next", c.Entry(tr.entry).Next),
	)
	return nil
}

func (tr *Trigger) stopLocked(ctx context.Context) {
	c := tr.c
	tr.c = nil
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply reschedules when the config changed. A running sweep is not interrupted.
func (tr *Trigger) Apply(cfg TriggerConfig) error {
	if cfg.Enabled {
		if err := tr.Validate(cfg); err != nil {
			return err
		}
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if cfg == tr.cfg {
		return nil
	}
	tr.cfg = cfg
	if !tr.started {
		return nil
	}
	// the old cron is not awaited so a reload never blocks on a running sweep
	if c := tr.c; c != nil {
		tr.c = nil
		c.Stop()
	}
	return tr.startLocked()
}

func (tr *Trigger) Stop(ctx context.Context) {
	tr.mu.Lock()
	tr.started = false
	tr.stopLocked(ctx)
	tr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tr.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Next is the next scheduled sweep, zero when not scheduled.
func (tr *Trigger) Next() time.Time {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.c == nil {
		return time.Time{}
	}
	return tr.c.Entry(tr.entry).Next
}

// RunNow starts an out-of-band sweep in the background.
func (tr *Trigger) RunNow() error {
	if tr.t.Running() {
		return ErrSweepRunning
	}
	tr.mu.Lock()
	if !tr.started || tr.baseCtx.Err() != nil {
		tr.mu.Unlock()
		return ErrTriggerStopped
	}
	ctx := tr.baseCtx
	tr.bg.Add(1)
	tr.mu.Unlock()
	go func() {
		defer tr.bg.Done()
		tr.run(ctx, "manual")
	}()
	return nil
}

func (tr *Trigger) run(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := tr.t.Sweep(ctx); err != nil {
		if errors.Is(err, ErrSweepRunning) {
			tr.log.Info("sweep skipped; previous still running", logx.String("reason", reason))
			return
		}
		tr.log.Error("sweep failed", logx.String("reason", reason), logx.Err(err))
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
