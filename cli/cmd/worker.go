package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/metrics"
	"github.com/mfellsbbtv/oneclick-provisioner/queue"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// WorkerCommand returns the worker command.
// Runs the BRPOP loop plus the cron sweep until interrupted.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the provisioning worker loop",
		Flags: []cli.Flag{
			ConfigFlag,
		},
		Action: workerAction,
	}
}

func workerAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := log.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q, err := buildQueue(&cfg.Queue)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

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

	collector := metrics.NewCollector(workerID(), storeLabel(cfg.Store.Driver))

	opts := []queue.WorkerOption{queue.WithCollector(collector)}
	if notifier != nil {
		opts = append(opts, queue.WithNotifier(notifier))
		defer func() { _ = notifier.Close() }()
	}
	if archiver != nil {
		opts = append(opts, queue.WithArchiver(archiver))
		defer func() { _ = archiver.Close() }()
	}
	if cfg.Worker.PollWait.Duration > 0 {
		opts = append(opts, queue.WithPollWait(cfg.Worker.PollWait.Duration))
	}

	worker, err := queue.NewWorker(store, q, orch, logger, opts...)
	if err != nil {
		return err
	}

	var sweepOpts []queue.SweeperOption
	if cfg.Worker.SweepSchedule != "" {
		sweepOpts = append(sweepOpts, queue.WithSweepSchedule(cfg.Worker.SweepSchedule))
	}
	if cfg.Worker.StaleAge.Duration > 0 {
		sweepOpts = append(sweepOpts, queue.WithStaleAge(cfg.Worker.StaleAge.Duration))
	}
	sweepOpts = append(sweepOpts, queue.WithSweepCollector(collector))

	sweeper, err := queue.NewSweeper(store, q, logger, sweepOpts...)
	if err != nil {
		return err
	}

	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	logger.Info("worker started", map[string]any{
		"worker_id": collector.Snapshot().WorkerID,
		"store":     storeLabel(cfg.Store.Driver),
		"version":   types.Version,
	})

	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	logger.Info("worker shutting down", nil)
	return nil
}

// workerID identifies this worker process in metrics and events.
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func storeLabel(driver string) string {
	if driver == "" {
		return "memory"
	}
	return driver
}
