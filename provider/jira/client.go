package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mfellsbbtv/oneclick-provisioner/iox"
	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

const defaultHTTPTimeout = 30 * time.Second

// User is the slice of the Jira Cloud user resource the provisioner
// reads.
type User struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	Active       bool   `json:"active"`
}

// UserRequest is the creation payload. Products selects the
// application seats the new account receives.
type UserRequest struct {
	EmailAddress string   `json:"emailAddress"`
	DisplayName  string   `json:"displayName,omitempty"`
	Products     []string `json:"products"`
}

// Client is the slice of the Jira Cloud REST API the provisioner
// needs. The site parameter is the tenant host (your-domain
// .atlassian.net); it varies per request while credentials are fixed
// at construction. Implementations must return an error matching
// provider.ErrNotFound from FindUserByEmail when no user exists for
// the address.
type Client interface {
	// FindUserByEmail searches users by email.
	FindUserByEmail(ctx context.Context, site, email string) (*User, error)
	// CreateUser creates a user.
	CreateUser(ctx context.Context, site string, req *UserRequest) (*User, error)
	// AddUserToGroup adds the account to a named group.
	AddUserToGroup(ctx context.Context, site, accountID, group string) error
}

// RESTClient implements Client against the Jira Cloud REST API v3.
// The injected http.Client must already carry authentication (basic
// auth with an API token, or an OAuth transport).
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// BaseURL overrides the https://<site> base (tests).
	BaseURL string
	// HTTPClient is the authenticated client (required).
	HTTPClient *http.Client
}

// NewRESTClient creates a Jira Cloud REST client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.HTTPClient == nil {
		return nil, errors.New("jira: authenticated HTTP client is required")
	}
	if cfg.HTTPClient.Timeout == 0 {
		cfg.HTTPClient.Timeout = defaultHTTPTimeout
	}
	return &RESTClient{baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

// FindUserByEmail searches users by email and returns the first exact
// match.
func (c *RESTClient) FindUserByEmail(ctx context.Context, site, email string) (*User, error) {
	var users []User
	endpoint := fmt.Sprintf("%s/rest/api/3/user/search?query=%s", c.siteURL(site), url.QueryEscape(email))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &users); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderJira, "find user", err)
	}
	for i := range users {
		if users[i].EmailAddress == email {
			return &users[i], nil
		}
	}
	return nil, provider.NewError(provider.ErrNotFound, types.ProviderJira, "find user",
		fmt.Errorf("no user for %s", email))
}

// CreateUser creates a user.
func (c *RESTClient) CreateUser(ctx context.Context, site string, req *UserRequest) (*User, error) {
	var user User
	endpoint := c.siteURL(site) + "/rest/api/3/user"
	if err := c.do(ctx, http.MethodPost, endpoint, req, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderJira, "create user", err)
	}
	return &user, nil
}

// AddUserToGroup adds the account to a named group.
func (c *RESTClient) AddUserToGroup(ctx context.Context, site, accountID, group string) error {
	endpoint := fmt.Sprintf("%s/rest/api/3/group/user?groupname=%s",
		c.siteURL(site), url.QueryEscape(group))
	body := map[string]string{"accountId": accountID}
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderJira, "add user to group", err)
	}
	return nil
}

func (c *RESTClient) siteURL(site string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://" + site
}

// do performs one JSON request/response cycle. Non-2xx statuses are
// returned classified.
func (c *RESTClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if kind := provider.ClassifyStatus(resp.StatusCode); kind != nil {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", provider.ErrVendor, err)
	}
	return nil
}

// Verify RESTClient implements the client interface.
var _ Client = (*RESTClient)(nil)
