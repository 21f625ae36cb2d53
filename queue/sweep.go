package queue

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mfellsbbtv/oneclick-provisioner/jobstore"
	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/metrics"
)

// DefaultSweepSchedule re-checks for stale jobs every minute.
const DefaultSweepSchedule = "* * * * *"

// DefaultStaleAge is how long a pending job may sit untouched before
// the sweeper assumes its queue entry was lost and pushes a new one.
const DefaultStaleAge = 10 * time.Minute

// Enqueuer is the queue surface the sweeper produces into. Satisfied by
// Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, attempt int) error
}

// Sweeper periodically requeues pending jobs whose queue entries went
// missing (worker crash between dequeue and MarkRunning, Redis flush).
// Requeueing an already-queued job is harmless: the worker drops
// entries whose store record is terminal, and MarkRunning settles the
// rest.
type Sweeper struct {
	store     jobstore.Store
	queue     Enqueuer
	logger    *log.Logger
	collector *metrics.Collector
	schedule  string
	staleAge  time.Duration
	cron      *cron.Cron
}

// SweeperOption customizes sweeper construction.
type SweeperOption func(*Sweeper)

// WithSweepSchedule overrides the cron schedule (standard 5-field spec).
func WithSweepSchedule(spec string) SweeperOption {
	return func(s *Sweeper) { s.schedule = spec }
}

// WithStaleAge overrides how old an untouched pending job must be
// before it is requeued.
func WithStaleAge(age time.Duration) SweeperOption {
	return func(s *Sweeper) { s.staleAge = age }
}

// WithSweepCollector attaches a metrics collector.
func WithSweepCollector(c *metrics.Collector) SweeperOption {
	return func(s *Sweeper) { s.collector = c }
}

// NewSweeper wires a sweeper. store, queue, and logger are required.
func NewSweeper(store jobstore.Store, q Enqueuer, logger *log.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("sweeper requires a job store")
	}
	if q == nil {
		return nil, errors.New("sweeper requires a queue")
	}
	if logger == nil {
		return nil, errors.New("sweeper requires a logger")
	}

	s := &Sweeper{
		store:    store,
		queue:    q,
		logger:   logger,
		schedule: DefaultSweepSchedule,
		staleAge: DefaultStaleAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the sweep on its cron schedule and begins running.
// The ctx bounds each individual sweep, not the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", map[string]any{
		"schedule":  s.schedule,
		"stale_age": s.staleAge.String(),
	})
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep requeues every stale pending job once. Exported for the
// single-shot CLI path and tests.
func (s *Sweeper) Sweep(ctx context.Context) {
	jobs, err := s.store.Stale(ctx, s.staleAge)
	if err != nil {
		s.logger.Error("stale job scan failed", map[string]any{"error": err.Error()})
		return
	}
	for _, job := range jobs {
		if err := s.queue.Enqueue(ctx, job.ID, job.Attempt); err != nil {
			s.logger.Error("requeue failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			continue
		}
		s.collector.IncJobRequeued()
		s.logger.Warn("requeued stale job", map[string]any{
			"job_id":  job.ID,
			"attempt": job.Attempt,
		})
	}
}
