package cmd

import (
	"context"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/cli/reader"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/render"
	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// AppPlan pairs a provider with its planned actions for rendering.
type AppPlan struct {
	Provider string      `json:"provider"`
	Plan     *types.Plan `json:"plan"`
}

// PlanCommand returns the plan command.
// Plan performs read-only vendor queries to compute intended actions;
// it never mutates vendor state.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Show intended actions for a request without applying them",
		ArgsUsage: "<request-file>",
		Flags:     ReadOnlyFlags(),
		Action:    planAction,
	}
}

func planAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("request-file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for plan", 1)
	}

	req, err := reader.Read(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg, log.NewLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plans, err := orch.Plan(ctx, req)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	return r.Render(sortedPlans(plans))
}

func sortedPlans(plans map[types.ProviderID]*types.Plan) []AppPlan {
	out := make([]AppPlan, 0, len(plans))
	for id, plan := range plans {
		out = append(out, AppPlan{Provider: string(id), Plan: plan})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
