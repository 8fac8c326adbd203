package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "calbot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		runCtx:      context.Background(),
		timers:      map[string]*time.Timer{},
		onceAt:      map[string]time.Time{},
		onceTimeout: map[string]time.Duration{},
		onceJob:     map[string]func(ctx context.Context) error{},
		onceVer:     map[string]uint64{},
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// detect timezone change
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		// restart cron with new location and re-register definitions
		s.restartLocked()
	}
}

// Start starts cron triggering and restores one-time timers.
// Jobs run under ctx; cancel it to abort in-flight work on shutdown.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx = ctx
	s.log.Debug("start requested", logx.String("tz", strings.TrimSpace(s.cfg.Timezone)))

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// register existing defs (if any)
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	// Restore one-time timers from persisted definitions.
	s.rebuildOnceTimersLocked()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops cron triggering and stops all runtime one-time timers.
// Persisted one-time definitions remain so they can resume on next Start().
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// runJob executes one trigger of a recurring schedule.
// cron runs each trigger on its own goroutine, so blocking here is fine.
func (s *Service) runJob(d *scheduleDef) {
	if d.opt.Overlap == OverlapSkipIfRunning && !d.state.tryAcquire() {
		s.log.Debug("run skipped (previous still running)", logx.String("name", d.name))
		return
	}
	if d.opt.Overlap == OverlapSkipIfRunning {
		defer d.state.release()
	}
	s.runNamed(d.name, d.timeout, d.job)
}

// runNamed runs a job function with timeout and panic capture.
func (s *Service) runNamed(name string, timeout time.Duration, job func(ctx context.Context) error) {
	if job == nil {
		return
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		return job(ctx)
	}()

	took := time.Since(started)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", name), logx.Duration("took", took))
}
