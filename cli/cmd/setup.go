package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mfellsbbtv/oneclick-provisioner/adapter"
	redisadapter "github.com/mfellsbbtv/oneclick-provisioner/adapter/redis"
	"github.com/mfellsbbtv/oneclick-provisioner/adapter/webhook"
	"github.com/mfellsbbtv/oneclick-provisioner/audit"
	"github.com/mfellsbbtv/oneclick-provisioner/cli/config"
	"github.com/mfellsbbtv/oneclick-provisioner/jobstore"
	"github.com/mfellsbbtv/oneclick-provisioner/log"
	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/googleworkspace"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/jira"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/microsoft365"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/slack"
	"github.com/mfellsbbtv/oneclick-provisioner/provider/zoom"
	"github.com/mfellsbbtv/oneclick-provisioner/provision"
	"github.com/mfellsbbtv/oneclick-provisioner/queue"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// loadConfig reads the config file named by --config. A missing file at
// the default path is not an error: every section has workable zero
// values (memory store, no adapter, no archive).
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !c.IsSet("config") {
			return &config.Config{}, nil
		}
		return nil, fmt.Errorf("config file: %w", err)
	}
	return config.Load(path)
}

// buildRegistry registers a provisioner for every vendor that has a
// config section. Vendors without credentials stay unregistered;
// requests selecting them fail per-app at run time.
func buildRegistry(cfg *config.ProvidersConfig) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if gw := cfg.GoogleWorkspace; gw != nil {
		client, err := googleworkspace.NewRESTClient(googleworkspace.RESTConfig{
			HTTPClient: provider.NewBearerClient(gw.Token, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("google_workspace: %w", err)
		}
		p, err := googleworkspace.New(client, googleworkspace.Catalog{
			OrgUnits:    gw.OrgUnits,
			LicenseSKUs: gw.LicenseSKUs,
		})
		if err != nil {
			return nil, fmt.Errorf("google_workspace: %w", err)
		}
		if err := registry.Register(types.ProviderGoogleWorkspace, p, provider.Metadata{
			DisplayName: "Google Workspace",
			Description: "Directory user, org unit, license SKU",
		}); err != nil {
			return nil, err
		}
	}

	if ms := cfg.Microsoft365; ms != nil {
		client, err := microsoft365.NewRESTClient(microsoft365.RESTConfig{
			HTTPClient: provider.NewBearerClient(ms.Token, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("microsoft365: %w", err)
		}
		p, err := microsoft365.New(client)
		if err != nil {
			return nil, fmt.Errorf("microsoft365: %w", err)
		}
		if err := registry.Register(types.ProviderMicrosoft365, p, provider.Metadata{
			DisplayName: "Microsoft 365",
			Description: "Entra ID user, license assignment, service plans",
		}); err != nil {
			return nil, err
		}
	}

	if sl := cfg.Slack; sl != nil {
		client, err := slack.NewRESTClient(slack.RESTConfig{
			SCIMClient: provider.NewBearerClient(sl.AdminToken, 0),
			WebClient:  provider.NewBearerClient(sl.BotToken, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		p, err := slack.New(client)
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		if err := registry.Register(types.ProviderSlack, p, provider.Metadata{
			DisplayName: "Slack",
			Description: "SCIM user, channel invites, user groups",
		}); err != nil {
			return nil, err
		}
	}

	if jr := cfg.Jira; jr != nil {
		client, err := jira.NewRESTClient(jira.RESTConfig{
			HTTPClient: provider.NewBasicClient(jr.Email, jr.APIToken, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("jira: %w", err)
		}
		p, err := jira.New(client)
		if err != nil {
			return nil, fmt.Errorf("jira: %w", err)
		}
		if err := registry.Register(types.ProviderJira, p, provider.Metadata{
			DisplayName: "Jira",
			Description: "Atlassian Cloud user, project access groups",
		}); err != nil {
			return nil, err
		}
	}

	if zm := cfg.Zoom; zm != nil {
		client, err := zoom.NewRESTClient(zoom.RESTConfig{
			HTTPClient: provider.NewBearerClient(zm.Token, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("zoom: %w", err)
		}
		p, err := zoom.New(client)
		if err != nil {
			return nil, fmt.Errorf("zoom: %w", err)
		}
		if err := registry.Register(types.ProviderZoom, p, provider.Metadata{
			DisplayName: "Zoom",
			Description: "User, license type, add-on features",
		}); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// buildStore opens the configured job store backend.
func buildStore(ctx context.Context, cfg *config.StoreConfig) (jobstore.Store, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("store driver postgres requires a dsn")
		}
		return jobstore.OpenPostgres(ctx, cfg.DSN)
	case "memory", "":
		return jobstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s (must be postgres or memory)", cfg.Driver)
	}
}

// buildQueue connects the Redis job queue.
func buildQueue(cfg *config.QueueConfig) (*queue.Queue, error) {
	if cfg.URL == "" {
		return nil, errors.New("queue.url is required (redis://host:port)")
	}
	return queue.New(queue.Config{URL: cfg.URL, Key: cfg.Key})
}

// buildAdapter constructs the completion-notification adapter, or nil
// when no adapter is configured.
func buildAdapter(cfg *config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "webhook":
		wcfg := webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
		}
		if retries >= 0 {
			wcfg.Retries = retries
		}
		return webhook.New(wcfg)
	case "redis":
		rcfg := redisadapter.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
		}
		if retries >= 0 {
			rcfg.Retries = retries
		}
		return redisadapter.New(rcfg)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", cfg.Type)
	}
}

// buildArchiver constructs the audit archive backend, or nil when no
// archive is configured.
func buildArchiver(ctx context.Context, cfg *config.AuditConfig) (audit.Archiver, error) {
	switch cfg.Backend {
	case "s3":
		return audit.NewS3Archiver(ctx, audit.S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	case "memory":
		return audit.NewMemoryArchiver(), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown audit backend: %s (must be s3 or memory)", cfg.Backend)
	}
}

// buildOrchestrator wires the provider registry into an orchestrator
// with the configured fan-out tuning.
func buildOrchestrator(cfg *config.Config, logger *log.Logger) (*provision.Orchestrator, error) {
	registry, err := buildRegistry(&cfg.Providers)
	if err != nil {
		return nil, err
	}

	var opts []provision.Option
	if cfg.Worker.Parallel > 0 {
		opts = append(opts, provision.WithParallel(cfg.Worker.Parallel))
	}
	if cfg.Worker.PerAppTimeout.Duration > 0 {
		opts = append(opts, provision.WithPerAppTimeout(cfg.Worker.PerAppTimeout.Duration))
	}

	return provision.NewOrchestrator(registry, logger, opts...)
}
