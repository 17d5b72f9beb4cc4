/*
scheduler.go - Automated batch recalculation scheduler

PURPOSE:
  Periodically recalculates every employee's payroll for the current
  period so draft and in-review records pick up new sales and profile
  changes without a manual batch call.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls Engine.CalculateBatch for the period containing "now"
  - Approved and locked records fail with InvalidState and are counted,
    never changed
  - The last report is kept for GET-style inspection via LastRun

CONFIGURATION:
  - CheckInterval: How often to run (BATCH_INTERVAL, 0 disables)

USAGE:
  scheduler := NewBatchScheduler(engine, logger, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CalculateBatch endpoint (manual batch)
  - payroll/batch.go: CalculateBatch
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

// BatchRun summarizes one scheduled batch.
type BatchRun struct {
	Period    payroll.Period
	StartedAt time.Time
	Succeeded int
	Failed    int
	Err       error
}

// BatchScheduler runs CalculateBatch on a ticker.
type BatchScheduler struct {
	Engine        *payroll.Engine
	Logger        *zap.Logger
	CheckInterval time.Duration
	Now           func() time.Time

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun *BatchRun
}

// NewBatchScheduler creates a new scheduler. An interval of zero or less
// leaves it disabled.
func NewBatchScheduler(engine *payroll.Engine, logger *zap.Logger, interval time.Duration) *BatchScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchScheduler{
		Engine:        engine,
		Logger:        logger,
		CheckInterval: interval,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *BatchScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CheckInterval <= 0 {
		s.Logger.Info("batch scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info("batch scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *BatchScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("batch scheduler stopped")
}

func (s *BatchScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one batch for the current period and records the outcome.
func (s *BatchScheduler) RunNow(ctx context.Context) BatchRun {
	now := s.Now().UTC()
	run := BatchRun{Period: payroll.NewPeriod(now.Year(), now.Month()), StartedAt: now}

	res, err := s.Engine.CalculateBatch(ctx, run.Period, nil)
	if err != nil {
		run.Err = err
		s.Logger.Error("scheduled batch failed", zap.Stringer("period", run.Period), zap.Error(err))
	} else {
		run.Succeeded = len(res.Succeeded)
		run.Failed = len(res.Failed)
	}

	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()
	return run
}

// LastRun returns the most recent run, if any.
func (s *BatchScheduler) LastRun() (BatchRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return BatchRun{}, false
	}
	return *s.lastRun, true
}
