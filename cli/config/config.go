package config

import (
	"fmt"
	"time"
)

// Config represents a oneclick.yaml configuration file.
// All values are optional and act as defaults for oneclick flags.
// CLI flags always override config values. Secrets normally arrive via
// ${VAR} expansion rather than literal values.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Audit     AuditConfig     `yaml:"audit"`
	Providers ProvidersConfig `yaml:"providers"`
}

// StoreConfig selects and configures the job store backend.
type StoreConfig struct {
	// Driver is "postgres" or "memory" (default memory).
	Driver string `yaml:"driver"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`
}

// QueueConfig configures the Redis job queue.
type QueueConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// WorkerConfig holds worker loop tuning.
type WorkerConfig struct {
	Parallel      int      `yaml:"parallel"`
	PerAppTimeout Duration `yaml:"per_app_timeout"`
	PollWait      Duration `yaml:"poll_wait"`
	SweepSchedule string   `yaml:"sweep_schedule"`
	StaleAge      Duration `yaml:"stale_age"`
}

// AdapterConfig holds completion-notification defaults.
type AdapterConfig struct {
	// Type is "webhook", "redis", or empty for no notifications.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// AuditConfig configures the audit archive.
type AuditConfig struct {
	// Backend is "s3", "memory", or empty for no archive.
	Backend     string `yaml:"backend"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// ProvidersConfig holds per-vendor credentials and catalogs. A vendor
// with no section is simply not registered; submitting a request that
// selects it fails at run time, not at boot.
type ProvidersConfig struct {
	GoogleWorkspace *GoogleWorkspaceConfig `yaml:"google_workspace,omitempty"`
	Microsoft365    *Microsoft365Config    `yaml:"microsoft365,omitempty"`
	Slack           *SlackConfig           `yaml:"slack,omitempty"`
	Jira            *JiraConfig            `yaml:"jira,omitempty"`
	Zoom            *ZoomConfig            `yaml:"zoom,omitempty"`
}

// GoogleWorkspaceConfig carries Directory API credentials plus the org
// catalogs validation checks against.
type GoogleWorkspaceConfig struct {
	Token       string   `yaml:"token"`
	OrgUnits    []string `yaml:"org_units,omitempty"`
	LicenseSKUs []string `yaml:"license_skus,omitempty"`
}

// Microsoft365Config carries a Graph API access token.
type Microsoft365Config struct {
	Token string `yaml:"token"`
}

// SlackConfig carries the two Slack tokens: the SCIM API needs an
// admin user token, the Web API a bot token.
type SlackConfig struct {
	AdminToken string `yaml:"admin_token"`
	BotToken   string `yaml:"bot_token"`
}

// JiraConfig carries Atlassian Cloud basic credentials (account email
// plus API token). The target site comes from each request, not from
// here.
type JiraConfig struct {
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

// ZoomConfig carries a server-to-server OAuth access token.
type ZoomConfig struct {
	Token string `yaml:"token"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
