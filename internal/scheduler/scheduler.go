package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"pulsefeed/internal/domain"
)

const (
	// cycleTimeout bounds one scrape-and-persist pass.
	cycleTimeout = 5 * time.Minute
	// maxErrorMessage caps the error summary stored with a run.
	maxErrorMessage = 500
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrCycleRunning  = errors.New("cycle already running for source")
	ErrNotStarted    = errors.New("scheduler not started")
)

// JobStatus describes one registered job.
type JobStatus struct {
	ID      string    `json:"id"`
	NextRun time.Time `json:"next_run"`
}

// Status is a snapshot of the scheduler for introspection.
type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

type job struct {
	scraper  Scraper
	interval time.Duration

	// runMu serializes cycles for this source. Timer fires that find it
	// held are skipped; manual triggers are rejected.
	runMu sync.Mutex

	mu      sync.Mutex
	nextRun time.Time
}

func (j *job) setNextRun(t time.Time) {
	j.mu.Lock()
	j.nextRun = t
	j.mu.Unlock()
}

func (j *job) getNextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextRun
}

// Scheduler owns one recurring job per source. Each job runs a full
// cycle: scrape, reconcile, recompute trends, log the run, broadcast.
// Cycles for different sources run concurrently; cycles for the same
// source never overlap.
type Scheduler struct {
	reconciler  Reconciler
	trends      TrendEngine
	runs        RunLog
	txManager   TransactionManager
	broadcaster Broadcaster
	publisher   Publisher
	logger      *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New assembles a scheduler. publisher may be nil when no broker is
// configured.
func New(
	reconciler Reconciler,
	trends TrendEngine,
	runs RunLog,
	txManager TransactionManager,
	broadcaster Broadcaster,
	publisher Publisher,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		reconciler:  reconciler,
		trends:      trends,
		runs:        runs,
		txManager:   txManager,
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      logger,
		jobs:        make(map[string]*job),
	}
}

// Register adds a recurring job for the scraper. Call before Start.
func (s *Scheduler) Register(scraper Scraper, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := scraper.Name()
	if _, ok := s.jobs[name]; !ok {
		s.order = append(s.order, name)
	}
	s.jobs[name] = &job{scraper: scraper, interval: interval}
}

// Start launches one worker per registered job and returns. Every job
// runs a cycle immediately, then on its interval, until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	now := time.Now().UTC()
	started := make([]*job, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		j.setNextRun(now)
		started = append(started, j)
	}
	s.mu.Unlock()

	for _, j := range started {
		s.wg.Add(1)
		go s.runJob(j)
	}

	s.logger.Info("scheduler started", "jobs", len(started))
}

// Stop cancels all workers and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunSource triggers one immediate cycle for the named source and
// returns its fetch-side result. The recurring timer is not rescheduled
// by a manual run.
func (s *Scheduler) RunSource(name string) (domain.ScrapeResult, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	running := s.running
	ctx := s.ctx
	s.mu.Unlock()

	if !ok {
		return domain.ScrapeResult{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if !running {
		return domain.ScrapeResult{}, ErrNotStarted
	}

	return s.runCycle(ctx, j)
}

// Status reports whether the scheduler is active and when each job
// fires next.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Jobs: []JobStatus{}}
	if !s.running {
		return st
	}

	st.Running = true
	for _, name := range s.order {
		st.Jobs = append(st.Jobs, JobStatus{
			ID:      "scrape_" + name,
			NextRun: s.jobs[name].getNextRun(),
		})
	}
	return st
}

func (s *Scheduler) runJob(j *job) {
	defer s.wg.Done()

	j.setNextRun(time.Now().UTC().Add(j.interval))
	if _, err := s.runCycle(s.ctx, j); err != nil {
		s.logger.Warn("startup cycle skipped", "source", j.scraper.Name(), "error", err)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			j.setNextRun(time.Now().UTC().Add(j.interval))
			if _, err := s.runCycle(s.ctx, j); err != nil {
				s.logger.Info("timer fire skipped", "source", j.scraper.Name(), "error", err)
			}
		}
	}
}

// runCycle executes one full cycle for j. The only error it returns is
// ErrCycleRunning; persistence failures are logged, reported through
// the run log and event counts, and never abort the timer loop.
func (s *Scheduler) runCycle(ctx context.Context, j *job) (domain.ScrapeResult, error) {
	if !j.runMu.TryLock() {
		return domain.ScrapeResult{}, ErrCycleRunning
	}
	defer j.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	name := j.scraper.Name()
	startedAt := time.Now().UTC()
	s.logger.Info("starting cycle", "source", name)

	result := j.scraper.Scrape(ctx)

	newCount := 0
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := s.reconciler.Upsert(txCtx, result.Items)
		if err != nil {
			return err
		}
		newCount = n

		if err := s.trends.Recompute(txCtx); err != nil {
			return err
		}

		run := &domain.ScrapeRun{
			Source:          name,
			Status:          domain.DeriveStatus(len(result.Items), len(result.Errors)),
			ItemsScraped:    len(result.Items),
			ItemsNew:        newCount,
			ErrorMessage:    truncate(strings.Join(result.Errors, "; "), maxErrorMessage),
			DurationSeconds: round2(result.Duration.Seconds()),
			StartedAt:       startedAt,
			FinishedAt:      time.Now().UTC(),
		}
		return s.runs.Record(txCtx, run)
	})
	if err != nil {
		// The transaction rolled back, so nothing was inserted.
		newCount = 0
		s.logger.Error("persisting cycle results failed", "source", name, "error", err)
	}

	s.logger.Info("finished cycle",
		"source", name,
		"items", len(result.Items),
		"new", newCount,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)

	event := domain.CycleEvent{
		Event:  domain.EventScrapeComplete,
		Source: name,
		Items:  len(result.Items),
		New:    newCount,
		Errors: len(result.Errors),
	}
	s.broadcaster.Publish(event)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("publishing cycle event failed", "source", name, "error", err)
		}
	}

	return result, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
