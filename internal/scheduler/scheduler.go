// Package scheduler fires partition registrar ticks on their schedules and
// on demand. Every table runs independently: a failing tick is logged and
// reported for that table only.
package scheduler

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/internal/registrar"
)

// Ticker is one table's tick function. *registrar.Registrar implements it.
type Ticker interface {
	Table() string
	Tick(ctx context.Context, ref time.Time) (*registrar.TickResult, error)
}

// Result is the outcome of one tick.
type Result struct {
	Table  string
	Tick   *registrar.TickResult
	Err    error
	Manual bool
}

// Options configures a Scheduler.
type Options struct {
	// IntervalOverride replaces every table's schedule with a fixed interval
	// when non-zero. The dev profile uses one minute.
	IntervalOverride time.Duration
	// MaxConcurrent bounds RunOnce fan-out. Zero means unbounded.
	MaxConcurrent int
	// OnResult is called after every tick, scheduled or manual.
	OnResult func(Result)
	// Now returns the reference time of scheduled ticks. Defaults to time.Now.
	Now func() time.Time
}

type job struct {
	ticker   Ticker
	schedule string
	entry    cron.EntryID
}

// Scheduler owns one cron entry per table.
type Scheduler struct {
	cron *cron.Cron
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	jobs  map[string]*job
	order []string
}

// New creates a scheduler. Jobs are added with Add before Start.
func New(opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := cron.PrintfLogger(log.New(os.Stderr, "scheduler: ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger)),
		),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Add schedules t with the given expression (see ParseSchedule).
func (s *Scheduler) Add(t Ticker, schedule string) error {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return sherrors.Configuration("table %s: %v", t.Table(), err)
	}
	if s.opts.IntervalOverride > 0 {
		spec = EverySpec(s.opts.IntervalOverride)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := t.Table()
	if _, exists := s.jobs[table]; exists {
		return sherrors.Configuration("table %s is already scheduled", table)
	}

	entry, err := s.cron.AddFunc(spec, func() {
		s.fire(s.ctx, t, s.opts.Now(), false)
	})
	if err != nil {
		return sherrors.Configuration("table %s: invalid schedule %q: %v", table, spec, err)
	}

	s.jobs[table] = &job{ticker: t, schedule: spec, entry: entry}
	s.order = append(s.order, table)
	log.Printf("scheduler: scheduled table=%s schedule=%q", table, spec)
	return nil
}

// Tables returns the scheduled table names in the order they were added.
func (s *Scheduler) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Schedule returns the cron spec of a table.
func (s *Scheduler) Schedule(table string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[table]
	if !ok {
		return "", false
	}
	return j.schedule, true
}

// Next returns the next scheduled firing of a table, zero before Start.
func (s *Scheduler) Next(table string) time.Time {
	s.mu.Lock()
	j, ok := s.jobs[table]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(j.entry).Next
}

// Start begins firing scheduled ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("scheduler: started with %d table(s)", len(s.Tables()))
}

// Stop stops scheduling, cancels running ticks and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		log.Printf("scheduler: stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger runs one table's tick now.
func (s *Scheduler) Trigger(ctx context.Context, table string, ref time.Time) (*registrar.TickResult, error) {
	s.mu.Lock()
	j, ok := s.jobs[table]
	s.mu.Unlock()
	if !ok {
		return nil, sherrors.NotFound("registrar", table)
	}
	res := s.fire(ctx, j.ticker, ref, true)
	return res.Tick, res.Err
}

// RunOnce ticks every table once at ref, concurrently. Each table's outcome
// is reported separately; it never fails as a whole.
func (s *Scheduler) RunOnce(ctx context.Context, ref time.Time) []Result {
	s.mu.Lock()
	tickers := make([]Ticker, 0, len(s.order))
	for _, table := range s.order {
		tickers = append(tickers, s.jobs[table].ticker)
	}
	s.mu.Unlock()

	results := make([]Result, len(tickers))
	var g errgroup.Group
	if s.opts.MaxConcurrent > 0 {
		g.SetLimit(s.opts.MaxConcurrent)
	}
	for i, t := range tickers {
		g.Go(func() error {
			results[i] = s.fire(ctx, t, ref, true)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) fire(ctx context.Context, t Ticker, ref time.Time, manual bool) Result {
	res, err := t.Tick(ctx, ref)
	result := Result{Table: t.Table(), Tick: res, Err: err, Manual: manual}
	if err != nil {
		log.Printf("scheduler: tick failed table=%s ref=%s retryable=%v: %v",
			t.Table(), ref.UTC().Format(time.RFC3339), sherrors.IsRetryable(err), err)
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(result)
	}
	return result
}

