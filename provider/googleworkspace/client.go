package googleworkspace

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

// Default API endpoints.
const (
	DefaultDirectoryURL = "https://admin.googleapis.com/admin/directory/v1"
	DefaultLicensingURL = "https://licensing.googleapis.com/apps/licensing/v1"
)

// defaultHTTPTimeout bounds a single API call when the injected client
// has no timeout of its own.
const defaultHTTPTimeout = 30 * time.Second

// User is the slice of the Directory API user resource the provisioner
// reads.
type User struct {
	ID           string `json:"id"`
	PrimaryEmail string `json:"primaryEmail"`
	OrgUnitPath  string `json:"orgUnitPath,omitempty"`
}

// UserName is the Directory API name object.
type UserName struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

// UserRequest is the mutation payload for insert and update calls.
type UserRequest struct {
	PrimaryEmail              string   `json:"primaryEmail,omitempty"`
	Name                      UserName `json:"name"`
	Password                  string   `json:"password,omitempty"`
	ChangePasswordAtNextLogin bool     `json:"changePasswordAtNextLogin,omitempty"`
	OrgUnitPath               string   `json:"orgUnitPath,omitempty"`
}

// DirectoryClient is the slice of the Admin SDK the provisioner needs.
// Implementations must return an error matching provider.ErrNotFound
// from GetUser when no user exists for the address.
type DirectoryClient interface {
	// GetUser looks a user up by primary email.
	GetUser(ctx context.Context, email string) (*User, error)
	// InsertUser creates a user.
	InsertUser(ctx context.Context, req *UserRequest) (*User, error)
	// UpdateUser updates the user identified by email.
	UpdateUser(ctx context.Context, email string, req *UserRequest) error
	// AssignLicense assigns a license SKU to the user.
	AssignLicense(ctx context.Context, productID, skuID, email string) error
}

// RESTClient implements DirectoryClient against the Admin SDK Directory
// and Licensing REST APIs. The injected http.Client must already carry
// authentication (a service-account oauth2 transport); credential
// rejection surfaces as provider.ErrAuth via response classification.
type RESTClient struct {
	directoryURL string
	licensingURL string
	httpClient   *http.Client
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// DirectoryURL overrides the Directory API base URL (tests).
	DirectoryURL string
	// LicensingURL overrides the Licensing API base URL (tests).
	LicensingURL string
	// HTTPClient is the authenticated client (required).
	HTTPClient *http.Client
}

// NewRESTClient creates a Directory/Licensing REST client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.HTTPClient == nil {
		return nil, errors.New("googleworkspace: authenticated HTTP client is required")
	}
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = DefaultDirectoryURL
	}
	if cfg.LicensingURL == "" {
		cfg.LicensingURL = DefaultLicensingURL
	}
	if cfg.HTTPClient.Timeout == 0 {
		cfg.HTTPClient.Timeout = defaultHTTPTimeout
	}
	return &RESTClient{
		directoryURL: cfg.DirectoryURL,
		licensingURL: cfg.LicensingURL,
		httpClient:   cfg.HTTPClient,
	}, nil
}

// GetUser looks a user up by primary email.
func (c *RESTClient) GetUser(ctx context.Context, email string) (*User, error) {
	var user User
	endpoint := fmt.Sprintf("%s/users/%s", c.directoryURL, url.PathEscape(email))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderGoogleWorkspace, "get user", err)
	}
	return &user, nil
}

// InsertUser creates a user.
func (c *RESTClient) InsertUser(ctx context.Context, req *UserRequest) (*User, error) {
	var user User
	endpoint := c.directoryURL + "/users"
	if err := c.do(ctx, http.MethodPost, endpoint, req, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderGoogleWorkspace, "insert user", err)
	}
	return &user, nil
}

// UpdateUser updates the user identified by email.
func (c *RESTClient) UpdateUser(ctx context.Context, email string, req *UserRequest) error {
	endpoint := fmt.Sprintf("%s/users/%s", c.directoryURL, url.PathEscape(email))
	if err := c.do(ctx, http.MethodPut, endpoint, req, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderGoogleWorkspace, "update user", err)
	}
	return nil
}

// AssignLicense assigns a license SKU to the user.
func (c *RESTClient) AssignLicense(ctx context.Context, productID, skuID, email string) error {
	endpoint := fmt.Sprintf("%s/product/%s/sku/%s/user",
		c.licensingURL, url.PathEscape(productID), url.PathEscape(skuID))
	body := map[string]string{"userId": email}
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderGoogleWorkspace, "assign license", err)
	}
	return nil
}

// do performs one JSON request/response cycle. Non-2xx statuses are
// returned as statusError for classification.
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
		// Drain so the connection can be reused even on failure.
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
var _ DirectoryClient = (*RESTClient)(nil)
