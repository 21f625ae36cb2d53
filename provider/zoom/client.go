package zoom

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

// DefaultBaseURL is the Zoom REST API base.
const DefaultBaseURL = "https://api.zoom.us/v2"

const defaultHTTPTimeout = 30 * time.Second

// User is the slice of the Zoom user resource the provisioner reads.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Type      int    `json:"type"`
	Status    string `json:"status"`
}

// UserInfo is the user_info part of a create payload.
type UserInfo struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Type      int    `json:"type"`
}

// UserCreate is the creation payload. Action "create" provisions an
// active account directly, without the email invite flow.
type UserCreate struct {
	Action   string   `json:"action"`
	UserInfo UserInfo `json:"user_info"`
}

// UserUpdate is the patch payload.
type UserUpdate struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Type      int    `json:"type,omitempty"`
}

// FeatureSettings toggles per-user feature add-ons.
type FeatureSettings struct {
	Webinar        *bool `json:"webinar,omitempty"`
	CloudRecording *bool `json:"cloud_recording,omitempty"`
	LargeMeeting   *bool `json:"large_meeting,omitempty"`
}

// Client is the slice of the Zoom API the provisioner needs.
// Implementations must return an error matching provider.ErrNotFound
// from GetUserByEmail when no user exists for the address.
type Client interface {
	// GetUserByEmail looks a user up by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// CreateUser creates a user.
	CreateUser(ctx context.Context, req *UserCreate) (*User, error)
	// UpdateUser patches the user.
	UpdateUser(ctx context.Context, userID string, req *UserUpdate) error
	// UpdateFeatures toggles feature add-ons on the user's settings.
	UpdateFeatures(ctx context.Context, userID string, features FeatureSettings) error
}

// RESTClient implements Client against the Zoom REST API. The injected
// http.Client must already carry authentication (a server-to-server
// OAuth transport).
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// BaseURL overrides the API base URL (tests).
	BaseURL string
	// HTTPClient is the authenticated client (required).
	HTTPClient *http.Client
}

// NewRESTClient creates a Zoom REST client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.HTTPClient == nil {
		return nil, errors.New("zoom: authenticated HTTP client is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient.Timeout == 0 {
		cfg.HTTPClient.Timeout = defaultHTTPTimeout
	}
	return &RESTClient{baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

// GetUserByEmail looks a user up by email.
func (c *RESTClient) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(email))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderZoom, "get user", err)
	}
	return &user, nil
}

// CreateUser creates a user.
func (c *RESTClient) CreateUser(ctx context.Context, req *UserCreate) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/users", req, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderZoom, "create user", err)
	}
	return &user, nil
}

// UpdateUser patches the user.
func (c *RESTClient) UpdateUser(ctx context.Context, userID string, req *UserUpdate) error {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))
	if err := c.do(ctx, http.MethodPatch, endpoint, req, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderZoom, "update user", err)
	}
	return nil
}

// UpdateFeatures toggles feature add-ons on the user's settings.
func (c *RESTClient) UpdateFeatures(ctx context.Context, userID string, features FeatureSettings) error {
	endpoint := fmt.Sprintf("%s/users/%s/settings", c.baseURL, url.PathEscape(userID))
	body := map[string]FeatureSettings{"feature": features}
	if err := c.do(ctx, http.MethodPatch, endpoint, body, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderZoom, "update features", err)
	}
	return nil
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
