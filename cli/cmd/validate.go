package cmd

import (
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/cli/reader"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/render"
	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/provision"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// ValidationResult is the per-app validation verdict. Validation never
// touches a vendor API, so output carries no external identifiers.
type ValidationResult struct {
	Provider string `json:"provider"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

// ValidateCommand returns the validate command.
// Validates a request file against each selected app's adapter rules
// without contacting any vendor.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a request file without contacting vendors",
		ArgsUsage: "<request-file>",
		Flags:     ReadOnlyFlags(),
		Action:    validateAction,
	}
}

func validateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("request-file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for validate", 1)
	}

	req, err := reader.Read(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(&cfg.Providers)
	if err != nil {
		return err
	}

	results := validateRequest(registry, req)
	if err := r.Render(results); err != nil {
		return err
	}

	for _, res := range results {
		if !res.Valid {
			return cli.Exit("", 1)
		}
	}
	return nil
}

// validateRequest runs each selected app's Validate and collects the
// verdicts, sorted by provider for stable output.
func validateRequest(registry *provider.Registry, req *types.Request) []ValidationResult {
	results := make([]ValidationResult, 0, len(req.Apps))
	for _, cfg := range req.Apps {
		id := cfg.Provider()
		res := ValidationResult{Provider: string(id)}

		p, err := registry.Get(id)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		input, err := provision.BuildInput(req.Employee, cfg)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		if _, err := p.Validate(input); err != nil {
			res.Error = err.Error()
		} else {
			res.Valid = true
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Provider < results[j].Provider })
	return results
}
