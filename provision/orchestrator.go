// Package provision runs a provisioning request through the selected
// vendor adapters and reconciles their results into one job outcome.
package provision

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// Defaults for the fan-out.
const (
	// DefaultParallel bounds concurrent adapter invocations. All five
	// built-in providers fit in one wave.
	DefaultParallel = 5
	// DefaultPerAppTimeout bounds one adapter's plan+apply.
	DefaultPerAppTimeout = 2 * time.Minute
)

// Orchestrator fans a request out to one adapter per selected
// application. Each invocation is isolated: a panic, timeout, or
// failure in one adapter never disturbs the others.
type Orchestrator struct {
	registry      *provider.Registry
	logger        *log.Logger
	buildInput    InputBuilder
	parallel      int
	perAppTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParallel bounds concurrent adapter invocations.
func WithParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallel = n
		}
	}
}

// WithPerAppTimeout bounds one adapter's plan+apply.
func WithPerAppTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.perAppTimeout = d
		}
	}
}

// WithInputBuilder overrides the adapter input construction (tests).
func WithInputBuilder(b InputBuilder) Option {
	return func(o *Orchestrator) { o.buildInput = b }
}

// NewOrchestrator creates an orchestrator over a provider registry.
func NewOrchestrator(registry *provider.Registry, logger *log.Logger, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("provision: registry is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("provision: logger is required")
	}
	o := &Orchestrator{
		registry:      registry,
		logger:        logger,
		buildInput:    BuildInput,
		parallel:      DefaultParallel,
		perAppTimeout: DefaultPerAppTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes validate, plan, and apply for every selected
// application and aggregates the per-app results. Adapter failures are
// recorded in the outcome, not returned; the error return covers only
// structurally invalid requests.
func (o *Orchestrator) Run(ctx context.Context, req *types.Request) (*types.JobOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	start := time.Now()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		perApp = make(map[types.ProviderID]*types.Result, len(req.Apps))
		plans  = make(map[types.ProviderID]*types.Plan, len(req.Apps))
		sem    = make(chan struct{}, o.parallel)
	)

	for _, app := range req.Apps {
		wg.Add(1)
		go func(cfg types.ProviderConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			id := cfg.Provider()
			plan, result := o.runOne(ctx, req.Employee, cfg)

			mu.Lock()
			perApp[id] = result
			if plan != nil {
				plans[id] = plan
			}
			mu.Unlock()
		}(app)
	}
	wg.Wait()

	outcome := &types.JobOutcome{
		PerApp:   perApp,
		Plans:    plans,
		Overall:  Reconcile(perApp),
		Duration: time.Since(start),
	}
	return outcome, nil
}

// Plan runs validate and plan (no mutations) for every selected
// application, for dry-run previews.
func (o *Orchestrator) Plan(ctx context.Context, req *types.Request) (map[types.ProviderID]*types.Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	plans := make(map[types.ProviderID]*types.Plan, len(req.Apps))
	for _, app := range req.Apps {
		id := app.Provider()
		prov, err := o.registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		raw, err := o.buildInput(req.Employee, app)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		validated, err := prov.Validate(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		planCtx, cancel := context.WithTimeout(ctx, o.perAppTimeout)
		plan, err := prov.Plan(planCtx, validated)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%s: plan: %w", id, err)
		}
		plans[id] = plan
	}
	return plans, nil
}

// runOne executes one adapter's validate, plan, apply pipeline behind
// a panic boundary and a per-app timeout. Every failure mode yields an
// error Result so the fan-in always sees one Result per selection.
func (o *Orchestrator) runOne(ctx context.Context, employee types.Employee, cfg types.ProviderConfig) (plan *types.Plan, result *types.Result) {
	id := cfg.Provider()
	logger := o.logger.ForProvider(string(id))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("adapter panicked", map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			result = errorResult(id, fmt.Sprintf("Adapter panicked: %v", r))
		}
	}()

	prov, err := o.registry.Get(id)
	if err != nil {
		return nil, errorResult(id, fmt.Sprintf("Provider not configured: %v", err))
	}

	raw, err := o.buildInput(employee, cfg)
	if err != nil {
		return nil, errorResult(id, err.Error())
	}

	// Validation failures never reach plan or apply.
	validated, err := prov.Validate(raw)
	if err != nil {
		logger.Warn("validation failed", map[string]any{"error": err.Error()})
		return nil, errorResult(id, fmt.Sprintf("Validation failed: %v", err))
	}

	appCtx, cancel := context.WithTimeout(ctx, o.perAppTimeout)
	defer cancel()

	plan, err = prov.Plan(appCtx, validated)
	if err != nil {
		logger.Warn("plan failed", map[string]any{"error": err.Error()})
		return nil, errorResult(id, fmt.Sprintf("Plan failed: %v", err))
	}

	logger.Info("applying", map[string]any{"actions": len(plan.Actions)})
	result, err = prov.Apply(appCtx, validated)
	if err != nil {
		// Includes the per-app timeout: context expiry surfaces from
		// the adapter's vendor calls.
		logger.Error("apply failed", map[string]any{"error": err.Error()})
		return plan, errorResult(id, fmt.Sprintf("Apply failed: %v", err))
	}

	logger.Info("applied", map[string]any{
		"status":   string(result.Status),
		"errors":   len(result.Errors),
		"warnings": len(result.Warnings),
	})
	return plan, result
}

// errorResult synthesizes the Result for a selection whose adapter
// never produced one.
func errorResult(id types.ProviderID, message string) *types.Result {
	return &types.Result{
		Provider: id,
		Status:   types.StatusError,
		Errors:   []string{message},
	}
}
