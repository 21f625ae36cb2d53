package provision

import (
	"fmt"

	"github.com/mfellsbbtv/oneclick-provisioner/provider/googleworkspace"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/jira"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/microsoft365"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/slack"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/zoom"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// InputBuilder turns an employee plus one provider's config into the
// raw value that provider's Validate accepts.
type InputBuilder func(types.Employee, types.ProviderConfig) (any, error)

// BuildInput is the default InputBuilder covering the built-in
// adapters.
func BuildInput(employee types.Employee, cfg types.ProviderConfig) (any, error) {
	switch c := cfg.(type) {
	case types.GoogleWorkspaceConfig:
		return googleworkspace.Input{Employee: employee, Config: c}, nil
	case types.Microsoft365Config:
		return microsoft365.Input{Employee: employee, Config: c}, nil
	case types.SlackConfig:
		return slack.Input{Employee: employee, Config: c}, nil
	case types.JiraConfig:
		return jira.Input{Employee: employee, Config: c}, nil
	case types.ZoomConfig:
		return zoom.Input{Employee: employee, Config: c}, nil
	default:
		return nil, fmt.Errorf("no input builder for provider %q", cfg.Provider())
	}
}
