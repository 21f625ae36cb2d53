package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfellsbbtv/oneclick-provisioner/adapter"
	"github.com/mfellsbbtv/oneclick-provisioner/audit"
	"github.com/mfellsbbtv/oneclick-provisioner/jobstore"
	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/metrics"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// EventContractVersion is stamped on every published completion event.
const EventContractVersion = "1.0.0"

// DefaultPollWait is how long one Dequeue blocks before the loop checks
// for shutdown.
const DefaultPollWait = 5 * time.Second

// Runner executes one provisioning request end to end. Satisfied by
// provision.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req *types.Request) (*types.JobOutcome, error)
}

// Dequeuer is the queue surface the worker consumes. Satisfied by Queue.
type Dequeuer interface {
	Dequeue(ctx context.Context, wait time.Duration) (*Payload, error)
}

// Worker drains the queue: for each job it records the running
// transition, fans the request out through the runner, persists the
// outcome, and then notifies and archives best-effort.
type Worker struct {
	store     jobstore.Store
	queue     Dequeuer
	runner    Runner
	notifier  adapter.Adapter
	archiver  audit.Archiver
	collector *metrics.Collector
	logger    *log.Logger
	pollWait  time.Duration
}

// WorkerOption customizes worker construction.
type WorkerOption func(*Worker)

// WithNotifier attaches a completion-event adapter. Publish failures are
// logged, never fatal.
func WithNotifier(a adapter.Adapter) WorkerOption {
	return func(w *Worker) { w.notifier = a }
}

// WithArchiver attaches an audit archiver. Archive failures are logged,
// never fatal.
func WithArchiver(a audit.Archiver) WorkerOption {
	return func(w *Worker) { w.archiver = a }
}

// WithCollector attaches a metrics collector.
func WithCollector(c *metrics.Collector) WorkerOption {
	return func(w *Worker) { w.collector = c }
}

// WithPollWait overrides the Dequeue block duration.
func WithPollWait(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollWait = d }
}

// NewWorker wires a worker. store, queue, runner, and logger are
// required; notification, audit, and metrics are optional.
func NewWorker(store jobstore.Store, q Dequeuer, runner Runner, logger *log.Logger, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, errors.New("worker requires a job store")
	}
	if q == nil {
		return nil, errors.New("worker requires a queue")
	}
	if runner == nil {
		return nil, errors.New("worker requires a runner")
	}
	if logger == nil {
		return nil, errors.New("worker requires a logger")
	}

	w := &Worker{
		store:    store,
		queue:    q,
		runner:   runner,
		logger:   logger,
		pollWait: DefaultPollWait,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run drains the queue until ctx is canceled. Returns nil on clean
// shutdown; a queue transport failure is returned so the process can
// restart rather than spin.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", map[string]any{"poll_wait": w.pollWait.String()})
	for {
		payload, err := w.queue.Dequeue(ctx, w.pollWait)
		if ctx.Err() != nil {
			w.logger.Info("worker stopping", nil)
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}
		if payload == nil {
			continue
		}
		w.ProcessOne(ctx, payload)
	}
}

// ProcessOne runs a single dequeued job to its terminal state. Exported
// so a submit-and-wait CLI path can reuse the exact worker semantics.
func (w *Worker) ProcessOne(ctx context.Context, payload *Payload) {
	logger := w.logger.ForJob(payload.JobID, payload.Attempt)

	job, err := w.store.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			logger.Warn("dequeued unknown job, dropping", nil)
			return
		}
		logger.Error("store lookup failed", map[string]any{"error": err.Error()})
		return
	}
	// Cancelled or already-terminal jobs can still be sitting on the
	// queue; the store is authoritative.
	if job.Status.Terminal() {
		logger.Info("job already terminal, dropping", map[string]any{"status": string(job.Status)})
		return
	}

	if err := w.store.MarkRunning(ctx, job.ID); err != nil {
		logger.Error("mark running failed", map[string]any{"error": err.Error()})
		return
	}
	job.Attempt++
	w.collector.IncJobStarted()
	logger.Info("job started", map[string]any{
		"employee": job.Request.Employee.WorkEmail,
		"apps":     len(job.Request.Apps),
	})

	outcome, runErr := w.runner.Run(ctx, &job.Request)

	status := types.JobCompleted
	errMsg := ""
	switch {
	case runErr != nil:
		status = types.JobFailed
		errMsg = runErr.Error()
	case outcome.Overall == types.StatusError:
		status = types.JobFailed
	}

	if err := w.store.Complete(ctx, job.ID, status, outcome, errMsg); err != nil {
		logger.Error("persist outcome failed", map[string]any{"error": err.Error()})
	}

	if status == types.JobFailed {
		w.collector.IncJobFailed()
	} else {
		w.collector.IncJobCompleted()
	}
	if outcome != nil {
		for id, res := range outcome.PerApp {
			if res == nil {
				continue
			}
			w.collector.RecordProviderOutcome(string(id), string(res.Status), outcome.Duration)
		}
	}

	logger.Info("job finished", map[string]any{
		"status": string(status),
		"error":  errMsg,
	})

	job.Status = status
	job.Outcome = outcome
	job.Error = errMsg
	w.notify(ctx, job, outcome)
	w.archive(ctx, job, outcome)
}

func (w *Worker) notify(ctx context.Context, job *types.Job, outcome *types.JobOutcome) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Publish(ctx, newEvent(job, outcome)); err != nil {
		w.collector.IncNotifyFailure()
		w.logger.ForJob(job.ID, job.Attempt).Warn("completion event delivery failed", map[string]any{"error": err.Error()})
		return
	}
	w.collector.IncNotifySuccess()
}

func (w *Worker) archive(ctx context.Context, job *types.Job, outcome *types.JobOutcome) {
	if w.archiver == nil {
		return
	}
	if err := w.archiver.Archive(ctx, audit.NewRecord(job, outcome)); err != nil {
		w.collector.IncArchiveFailure()
		w.logger.ForJob(job.ID, job.Attempt).Warn("audit archive failed", map[string]any{"error": err.Error()})
		return
	}
	w.collector.IncArchiveSuccess()
}

// newEvent builds the published completion payload. Statuses and
// identifiers only; result metadata never crosses this boundary.
func newEvent(job *types.Job, outcome *types.JobOutcome) *adapter.JobCompletedEvent {
	event := &adapter.JobCompletedEvent{
		ContractVersion: EventContractVersion,
		EventType:       "job_completed",
		JobID:           job.ID,
		Attempt:         job.Attempt,
		EmployeeEmail:   job.Request.Employee.WorkEmail,
		Overall:         string(types.StatusError),
		PerApp:          make(map[string]string),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if outcome != nil {
		event.Overall = string(outcome.Overall)
		event.DurationMs = outcome.Duration.Milliseconds()
		for id, res := range outcome.PerApp {
			if res == nil {
				event.PerApp[string(id)] = string(types.StatusError)
				continue
			}
			event.PerApp[string(id)] = string(res.Status)
		}
	}
	return event
}
