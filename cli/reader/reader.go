// Package reader loads provisioning request files for CLI commands.
//
// Request files are YAML or JSON: an employee section plus a
// provider-keyed apps map. App settings use the same camelCase keys as
// the API payload, so a captured request body can be replayed as a file
// unchanged.
package reader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// Format identifies a request file encoding.
type Format string

// Supported request file formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DetectFormat picks the format from a file extension. Unknown
// extensions default to YAML, the documented request file format.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Read loads and parses a request file. The request is structurally
// validated; per-provider field validation happens later in each
// provisioner.
func Read(path string) (*types.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("request file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read request file %q: %w", path, err)
	}
	return Parse(data, DetectFormat(path))
}

// Parse decodes request bytes in the given format.
func Parse(data []byte, format Format) (*types.Request, error) {
	var req types.Request
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid request JSON: %w", err)
		}
	case FormatYAML:
		var wire struct {
			Employee types.Employee `yaml:"employee"`
			Apps     map[string]any `yaml:"apps"`
		}
		if err := yaml.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("invalid request YAML: %w", err)
		}
		apps, err := types.DecodeApps(normalize(wire.Apps))
		if err != nil {
			return nil, err
		}
		req.Employee = wire.Employee
		req.Apps = apps
	default:
		return nil, fmt.Errorf("unknown request format: %q", format)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// normalize rewrites the nested any-keyed maps yaml.v3 can produce into
// string-keyed maps so the JSON re-encode inside DecodeApps accepts
// them.
func normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalize(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[fmt.Sprint(k)] = normalizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	default:
		return v
	}
}
