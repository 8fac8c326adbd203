package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "calbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Moscow"
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

type TaskOptions struct {
	Overlap OverlapPolicy
}

// runState tracks whether a job is already in-flight, for OverlapSkipIfRunning.
type runState struct {
	mu       sync.Mutex
	inflight int
}

func (s *runState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *runState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

type scheduleDef struct {
	id            string
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           func(ctx context.Context) error
	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for @every schedules (startup spread)
	opt           TaskOptions
	state         *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	// runCtx is the context jobs run under; set by Start().
	runCtx context.Context

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// one-time timers (timers are runtime; onceAt/onceTimeout are persistent definitions)
	tmu         sync.Mutex
	timers      map[string]*time.Timer
	onceAt      map[string]time.Time
	onceTimeout map[string]time.Duration
	onceJob     map[string]func(ctx context.Context) error
	onceVer     map[string]uint64
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type OnceInfo struct {
	Name string
	At   time.Time
}

type Snapshot struct {
	Timezone  string
	Schedules []ScheduleInfo
	Once      []OnceInfo
}
