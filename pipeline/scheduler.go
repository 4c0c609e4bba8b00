package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sig-0/iq"

	"github.com/remesas-ve/tasas/pipeline/config"
	"github.com/remesas-ve/tasas/runlock"
)

// ErrRunInProgress is returned to a manual trigger arriving while
// a run is active or already queued. Triggers are not retried
// automatically; callers observe progress via Status
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// maxRunHistory bounds the in-memory run registry
const maxRunHistory = 256

// Scheduler is the bridge between triggers and the orchestrator:
// a periodic due-time queue plus on-demand manual runs, with
// cross-process mutual exclusion through the run lock
type Scheduler struct {
	orchestrator *Orchestrator
	lock         runlock.Lock
	logger       *slog.Logger

	interval      time.Duration
	lockTTL       time.Duration
	queryInterval time.Duration

	q    iq.Queue[scheduledRun]
	qMux sync.Mutex

	runs     map[xid.ID]*Report
	runOrder []xid.ID
	runMux   sync.RWMutex

	busy bool
}

// NewScheduler creates a new run scheduler
func NewScheduler(
	orchestrator *Orchestrator,
	lock runlock.Lock,
	cfg *config.Config,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		orchestrator:  orchestrator,
		lock:          lock,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval:      time.Duration(cfg.IntervalSeconds) * time.Second,
		lockTTL:       time.Duration(cfg.LockTTLSeconds) * time.Second,
		queryInterval: time.Second, // every second
		q:             iq.NewQueue[scheduledRun](),
		runs:          make(map[xid.ID]*Report),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start starts the scheduling service loop [BLOCKING].
// The first periodic run is due immediately
func (s *Scheduler) Start(ctx context.Context) error {
	s.schedule(time.Now().UTC(), true)

	ticker := time.NewTicker(s.queryInterval)
	defer ticker.Stop()

	// handleDue executes every run that is due, in order
	handleDue := func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				next := s.nextRun()
				if next == nil {
					return // nothing due
				}

				s.runOnce(ctx, *next)
			}
		}
	}

	// Execute the first set of due runs (on boot)
	handleDue()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler service shut down")

			return nil
		case <-ticker.C:
			handleDue()
		}
	}
}

// Trigger enqueues a manual run, returning its identifier immediately
// while the pipeline executes out-of-band. Rejects with
// ErrRunInProgress while another run is active or queued
func (s *Scheduler) Trigger() (xid.ID, error) {
	s.qMux.Lock()
	defer s.qMux.Unlock()

	if s.busy {
		return xid.NilID(), ErrRunInProgress
	}

	// A queued manual run counts as in progress
	for i := 0; i < s.q.Len(); i++ {
		if !s.q.Index(i).periodic {
			return xid.NilID(), ErrRunInProgress
		}
	}

	return s.scheduleLocked(time.Now().UTC(), false), nil
}

// Status fetches the report for the given run, if any
func (s *Scheduler) Status(id xid.ID) (Report, bool) {
	s.runMux.RLock()
	defer s.runMux.RUnlock()

	report, ok := s.runs[id]
	if !ok {
		return Report{}, false
	}

	return *report, true
}

// schedule queues a new run due at the given time
func (s *Scheduler) schedule(at time.Time, periodic bool) xid.ID {
	s.qMux.Lock()
	defer s.qMux.Unlock()

	return s.scheduleLocked(at, periodic)
}

func (s *Scheduler) scheduleLocked(at time.Time, periodic bool) xid.ID {
	id := xid.New()

	s.registerReport(&Report{
		ID:     id,
		Status: StatusPending,
	})

	s.q.Push(scheduledRun{
		at:       at,
		id:       id,
		periodic: periodic,
	})

	return id
}

// nextRun fetches the next due run, as of the moment of calling
func (s *Scheduler) nextRun() *scheduledRun {
	s.qMux.Lock()
	defer s.qMux.Unlock()

	now := time.Now().UTC()

	if s.q.Len() == 0 {
		return nil // nothing scheduled
	}

	// Check if the top element is due
	if s.q.Index(0).at.After(now) {
		return nil // earliest run is in the future
	}

	next := s.q.PopFront()

	// The run occupies the scheduler until it terminates
	s.busy = true

	return next
}

// runOnce executes a single run end to end: lock acquisition,
// orchestration, outcome bookkeeping and periodic rescheduling.
// The run lock is released unconditionally on every exit path
func (s *Scheduler) runOnce(ctx context.Context, sr scheduledRun) {
	defer func() {
		s.qMux.Lock()
		s.busy = false

		if sr.periodic {
			s.scheduleLocked(time.Now().UTC().Add(s.interval), true)
		}
		s.qMux.Unlock()
	}()

	acquired, err := s.lock.TryAcquire(ctx, s.lockTTL)
	if err != nil {
		s.finishRun(sr.id, &Outcome{
			Status: StatusFailed,
			Errors: []error{fmt.Errorf("unable to acquire run lock: %w", err)},
		})

		return
	}

	if !acquired {
		s.finishRun(sr.id, &Outcome{
			Status: StatusFailed,
			Errors: []error{errors.New("run lock held by another worker")},
		})

		s.logger.Warn("run lock held elsewhere, skipping run", "id", sr.id.String())

		return
	}

	defer func() {
		releaseCtx, cancelFn := context.WithTimeout(
			context.WithoutCancel(ctx),
			time.Second*5,
		)
		defer cancelFn()

		if err := s.lock.Release(releaseCtx); err != nil {
			s.logger.Error("unable to release run lock", "err", err)
		}
	}()

	s.setStatus(sr.id, StatusRunning)

	s.logger.Info("pipeline run started", "id", sr.id.String())

	outcome := s.orchestrator.Execute(ctx)

	s.finishRun(sr.id, outcome)

	s.logger.Info(
		"pipeline run finished",
		"id", sr.id.String(),
		"outcome", outcome.Status.String(),
		"rates_written", outcome.RatesWritten,
	)
}

func (s *Scheduler) registerReport(report *Report) {
	s.runMux.Lock()
	defer s.runMux.Unlock()

	s.runs[report.ID] = report
	s.runOrder = append(s.runOrder, report.ID)

	// Evict the oldest terminal runs past the history cap
	for len(s.runOrder) > maxRunHistory {
		oldest := s.runOrder[0]

		if !s.runs[oldest].Status.Terminal() {
			break
		}

		delete(s.runs, oldest)
		s.runOrder = s.runOrder[1:]
	}
}

func (s *Scheduler) setStatus(id xid.ID, status Status) {
	s.runMux.Lock()
	defer s.runMux.Unlock()

	report, ok := s.runs[id]
	if !ok {
		return
	}

	report.Status = status

	if status == StatusRunning {
		report.StartedAt = time.Now().UTC()
	}
}

func (s *Scheduler) finishRun(id xid.ID, outcome *Outcome) {
	s.runMux.Lock()
	defer s.runMux.Unlock()

	report, ok := s.runs[id]
	if !ok {
		return
	}

	report.Status = outcome.Status
	report.RatesWritten = outcome.RatesWritten
	report.FinishedAt = time.Now().UTC()

	for _, err := range outcome.Errors {
		report.Errors = append(report.Errors, err.Error())
	}
}
