package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/cli/config"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/reader"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/render"
	"github.com/mfellsbbtv/oneclick-provisioner/jobstore"
	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/queue"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// Exit codes for provision --wait. Partial outcomes still complete;
// per-app detail is in the rendered outcome.
const (
	exitSuccess         = 0
	exitProvisionFailed = 1
)

// SubmitResponse is the response for an async provision submit.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ProvisionCommand returns the provision command.
// Submits a request as a job. By default the job is enqueued for the
// worker; --wait runs it inline and prints the outcome.
func ProvisionCommand() *cli.Command {
	return &cli.Command{
		Name:      "provision",
		Usage:     "Submit a provisioning request",
		ArgsUsage: "<request-file>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Run the job inline and wait for the outcome (no queue)",
			},
			&cli.BoolFlag{
				Name:  "show-secrets",
				Usage: "Include generated credentials in --wait output",
			},
		),
		Action: provisionAction,
	}
}

func provisionAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("request-file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for provision", 1)
	}

	req, err := reader.Read(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	job := &types.Job{Request: *req}
	if err := store.Create(ctx, job); err != nil {
		return err
	}

	if !c.Bool("wait") {
		q, err := buildQueue(&cfg.Queue)
		if err != nil {
			return err
		}
		defer func() { _ = q.Close() }()

		if err := q.Enqueue(ctx, job.ID, job.Attempt); err != nil {
			return err
		}
		return r.Render(SubmitResponse{JobID: job.ID, Status: string(types.JobPending)})
	}

	return provisionInline(ctx, c, r, cfg, store, job)
}

// provisionInline runs the job through the exact worker path without a
// queue: same status transitions, notification, and archival.
func provisionInline(ctx context.Context, c *cli.Context, r *render.Renderer, cfg *config.Config, store jobstore.Store, job *types.Job) error {
	logger := log.NewLogger()

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	notifier, err := buildAdapter(&cfg.Adapter)
	if err != nil {
		return err
	}
	archiver, err := buildArchiver(ctx, &cfg.Audit)
	if err != nil {
		return err
	}

	var opts []queue.WorkerOption
	if notifier != nil {
		opts = append(opts, queue.WithNotifier(notifier))
		defer func() { _ = notifier.Close() }()
	}
	if archiver != nil {
		opts = append(opts, queue.WithArchiver(archiver))
		defer func() { _ = archiver.Close() }()
	}

	worker, err := queue.NewWorker(store, nopDequeuer{}, orch, logger, opts...)
	if err != nil {
		return err
	}

	worker.ProcessOne(ctx, &queue.Payload{
		JobID:      job.ID,
		Attempt:    job.Attempt,
		EnqueuedAt: time.Now().UTC(),
	})

	done, err := store.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if !c.Bool("show-secrets") {
		done = redactJob(done)
	}

	if err := r.Render(done); err != nil {
		return err
	}
	if done.Status == types.JobFailed {
		return cli.Exit("", exitProvisionFailed)
	}
	return cli.Exit("", exitSuccess)
}

// nopDequeuer satisfies the worker constructor for the inline path,
// where jobs are handed to ProcessOne directly.
type nopDequeuer struct{}

func (nopDequeuer) Dequeue(context.Context, time.Duration) (*queue.Payload, error) {
	return nil, nil
}
