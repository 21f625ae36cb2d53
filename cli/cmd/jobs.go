package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/audit"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/render"
	"github.com/mfellsbbtv/oneclick-provisioner/jobstore"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// JobRow is the thin list view of a job. No outcome payload, so no
// secret-bearing metadata can appear here.
type JobRow struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Employee  string    `json:"employee"`
	Email     string    `json:"email"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
}

// JobsCommand returns the jobs command with subcommands.
func JobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Manage provisioning jobs (list, inspect, cancel)",
		Subcommands: []*cli.Command{
			jobsListCommand(),
			jobsInspectCommand(),
			jobsCancelCommand(),
		},
	}
}

func jobsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List jobs",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: pending, running, completed, failed, cancelled",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of jobs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: jobsListAction,
	}
}

func jobsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	filter := jobstore.Filter{Limit: c.Int("limit")}
	if s := c.String("status"); s != "" {
		status := types.JobStatus(s)
		if !status.Valid() {
			return cli.Exit(fmt.Sprintf("invalid status: %s", s), 1)
		}
		filter.Status = &status
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

	jobs, err := store.List(ctx, filter)
	if err != nil {
		return err
	}

	rows := make([]JobRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, JobRow{
			ID:        job.ID,
			Status:    string(job.Status),
			Employee:  job.Request.Employee.FullName,
			Email:     job.Request.Employee.WorkEmail,
			Attempt:   job.Attempt,
			CreatedAt: job.CreatedAt,
		})
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(rows) > listWarningThreshold && filter.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(rows))
	}

	return r.Render(rows)
}

func jobsInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a job by ID",
		ArgsUsage: "<job-id>",
		Flags: append(TUIReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "show-secrets",
				Usage: "Include generated credentials in the output",
			},
		),
		Action: jobsInspectAction,
	}
}

func jobsInspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("job-id required", 1)
	}
	jobID := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
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

	job, err := store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("job not found: %s", jobID), 1)
		}
		return err
	}

	if !c.Bool("show-secrets") {
		job = redactJob(job)
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_job", job)
	}

	return r.Render(job)
}

func jobsCancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a pending job",
		ArgsUsage: "<job-id>",
		Flags:     ReadOnlyFlags(),
		Action:    jobsCancelAction,
	}
}

func jobsCancelAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("job-id required", 1)
	}
	jobID := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for cancel", 1)
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

	if err := store.Cancel(ctx, jobID); err != nil {
		switch {
		case errors.Is(err, jobstore.ErrNotFound):
			return cli.Exit(fmt.Sprintf("job not found: %s", jobID), 1)
		case errors.Is(err, jobstore.ErrNotPending):
			return cli.Exit(fmt.Sprintf("job is not pending: %s", jobID), 1)
		}
		return err
	}

	return r.Render(JobRow{ID: jobID, Status: string(types.JobCancelled)})
}

// redactJob returns a copy of the job with secret-bearing result
// metadata replaced. The stored record is untouched.
func redactJob(job *types.Job) *types.Job {
	if job.Outcome == nil {
		return job
	}

	copied := *job
	outcome := *job.Outcome
	outcome.PerApp = make(map[types.ProviderID]*types.Result, len(job.Outcome.PerApp))
	for id, res := range job.Outcome.PerApp {
		if res == nil {
			outcome.PerApp[id] = nil
			continue
		}
		r := *res
		r.Metadata = audit.Redact(res.Metadata)
		outcome.PerApp[id] = &r
	}
	copied.Outcome = &outcome
	return &copied
}
