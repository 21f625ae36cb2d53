package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/cli/render"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/tui"
	"github.com/mfellsbbtv/oneclick-provisioner/jobstore"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// StatsCommand returns the stats command with subcommands.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics",
		Subcommands: []*cli.Command{
			statsJobsCommand(),
		},
	}
}

func statsJobsCommand() *cli.Command {
	return &cli.Command{
		Name:   "jobs",
		Usage:  "Show job statistics",
		Flags:  TUIReadOnlyFlags(),
		Action: statsJobsAction,
	}
}

func statsJobsAction(c *cli.Context) error {
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

	jobs, err := store.List(ctx, jobstore.Filter{})
	if err != nil {
		return err
	}

	stats := buildJobStats(jobs)

	if c.Bool("tui") {
		return r.RenderTUI("stats_jobs", stats)
	}

	return r.Render(stats)
}

// buildJobStats aggregates job records into the stats payload. Provider
// outcomes are counted from completed outcomes only; jobs that never
// ran contribute nothing to the per-provider breakdown.
func buildJobStats(jobs []types.Job) *tui.JobStats {
	stats := &tui.JobStats{
		Total:            len(jobs),
		ProviderOutcomes: make(map[string]map[string]int),
	}

	for _, job := range jobs {
		switch job.Status {
		case types.JobPending:
			stats.Pending++
		case types.JobRunning:
			stats.Running++
		case types.JobCompleted:
			stats.Completed++
		case types.JobFailed:
			stats.Failed++
		case types.JobCancelled:
			stats.Cancelled++
		}

		if job.Outcome == nil {
			continue
		}
		for id, res := range job.Outcome.PerApp {
			if res == nil {
				continue
			}
			byStatus := stats.ProviderOutcomes[string(id)]
			if byStatus == nil {
				byStatus = make(map[string]int)
				stats.ProviderOutcomes[string(id)] = byStatus
			}
			byStatus[string(res.Status)]++
		}
	}

	return stats
}
