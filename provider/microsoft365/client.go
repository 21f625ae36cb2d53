package microsoft365

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

// DefaultGraphURL is the Microsoft Graph base URL.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

const defaultHTTPTimeout = 45 * time.Second

// GraphUser is the slice of the Graph user resource the provisioner
// reads.
type GraphUser struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail,omitempty"`
}

// PasswordProfile is the Graph password profile object.
type PasswordProfile struct {
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
	Password                      string `json:"password"`
}

// UserCreate is the user creation payload.
type UserCreate struct {
	AccountEnabled    bool             `json:"accountEnabled"`
	DisplayName       string           `json:"displayName"`
	GivenName         string           `json:"givenName"`
	Surname           string           `json:"surname"`
	MailNickname      string           `json:"mailNickname"`
	UserPrincipalName string           `json:"userPrincipalName"`
	Mail              string           `json:"mail"`
	UsageLocation     string           `json:"usageLocation"`
	PasswordProfile   PasswordProfile  `json:"passwordProfile"`
	Department        string           `json:"department,omitempty"`
	JobTitle          string           `json:"jobTitle,omitempty"`
	OfficeLocation    string           `json:"officeLocation,omitempty"`
}

// UserUpdate is the user patch payload.
type UserUpdate struct {
	DisplayName    string `json:"displayName,omitempty"`
	GivenName      string `json:"givenName,omitempty"`
	Surname        string `json:"surname,omitempty"`
	UsageLocation  string `json:"usageLocation,omitempty"`
	Department     string `json:"department,omitempty"`
	JobTitle       string `json:"jobTitle,omitempty"`
	OfficeLocation string `json:"officeLocation,omitempty"`
}

// SubscribedSKU is the slice of the Graph subscribedSku resource needed
// for seat accounting.
type SubscribedSKU struct {
	SkuID         string `json:"skuId"`
	SkuPartNumber string `json:"skuPartNumber"`
	// PrepaidEnabled is prepaidUnits.enabled.
	PrepaidEnabled int `json:"prepaidEnabled"`
	ConsumedUnits  int `json:"consumedUnits"`
}

// Available returns the number of unassigned seats.
func (s SubscribedSKU) Available() int {
	return s.PrepaidEnabled - s.ConsumedUnits
}

// GraphClient is the slice of Microsoft Graph the provisioner needs.
// FindUserByEmail returns an error matching provider.ErrNotFound when
// no user matches the address.
type GraphClient interface {
	FindUserByEmail(ctx context.Context, email string) (*GraphUser, error)
	CreateUser(ctx context.Context, req *UserCreate) (*GraphUser, error)
	UpdateUser(ctx context.Context, userID string, req *UserUpdate) error
	SubscribedSKUs(ctx context.Context) ([]SubscribedSKU, error)
	AssignLicenses(ctx context.Context, userID string, skuIDs []string) error
	EnableServicePlans(ctx context.Context, userID string, plans []string) error
}

// RESTClient implements GraphClient against the Graph REST API. The
// injected http.Client must already carry app-only authentication
// (client-credential token transport).
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// BaseURL overrides the Graph base URL (tests).
	BaseURL string
	// HTTPClient is the authenticated client (required).
	HTTPClient *http.Client
}

// NewRESTClient creates a Graph REST client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.HTTPClient == nil {
		return nil, errors.New("microsoft365: authenticated HTTP client is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphURL
	}
	if cfg.HTTPClient.Timeout == 0 {
		cfg.HTTPClient.Timeout = defaultHTTPTimeout
	}
	return &RESTClient{baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

// FindUserByEmail filters /users on mail or userPrincipalName.
func (c *RESTClient) FindUserByEmail(ctx context.Context, email string) (*GraphUser, error) {
	filter := fmt.Sprintf("mail eq '%s' or userPrincipalName eq '%s'", email, email)
	endpoint := c.baseURL + "/users?$filter=" + url.QueryEscape(filter)

	var page struct {
		Value []GraphUser `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderMicrosoft365, "find user", err)
	}
	if len(page.Value) == 0 {
		return nil, provider.NewError(provider.ErrNotFound, types.ProviderMicrosoft365, "find user",
			fmt.Errorf("no user for %s", email))
	}
	return &page.Value[0], nil
}

// CreateUser creates a user.
func (c *RESTClient) CreateUser(ctx context.Context, req *UserCreate) (*GraphUser, error) {
	var user GraphUser
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/users", req, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderMicrosoft365, "create user", err)
	}
	return &user, nil
}

// UpdateUser patches the user by object ID.
func (c *RESTClient) UpdateUser(ctx context.Context, userID string, req *UserUpdate) error {
	endpoint := c.baseURL + "/users/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodPatch, endpoint, req, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderMicrosoft365, "update user", err)
	}
	return nil
}

// SubscribedSKUs lists the tenant's license SKUs with seat counts.
func (c *RESTClient) SubscribedSKUs(ctx context.Context) ([]SubscribedSKU, error) {
	var page struct {
		Value []struct {
			SkuID         string `json:"skuId"`
			SkuPartNumber string `json:"skuPartNumber"`
			PrepaidUnits  struct {
				Enabled int `json:"enabled"`
			} `json:"prepaidUnits"`
			ConsumedUnits int `json:"consumedUnits"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/subscribedSkus", nil, &page); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderMicrosoft365, "list subscribed skus", err)
	}

	skus := make([]SubscribedSKU, 0, len(page.Value))
	for _, v := range page.Value {
		skus = append(skus, SubscribedSKU{
			SkuID:         v.SkuID,
			SkuPartNumber: v.SkuPartNumber,
			PrepaidEnabled: v.PrepaidUnits.Enabled,
			ConsumedUnits: v.ConsumedUnits,
		})
	}
	return skus, nil
}

// AssignLicenses assigns the given SKU IDs to the user.
func (c *RESTClient) AssignLicenses(ctx context.Context, userID string, skuIDs []string) error {
	type addLicense struct {
		DisabledPlans []string `json:"disabledPlans"`
		SkuID         string   `json:"skuId"`
	}
	add := make([]addLicense, 0, len(skuIDs))
	for _, id := range skuIDs {
		add = append(add, addLicense{DisabledPlans: []string{}, SkuID: id})
	}
	body := map[string]any{"addLicenses": add, "removeLicenses": []string{}}

	endpoint := c.baseURL + "/users/" + url.PathEscape(userID) + "/assignLicense"
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderMicrosoft365, "assign licenses", err)
	}
	return nil
}

// EnableServicePlans records the requested plan names on the user via
// an open extension so downstream automation can pick them up.
func (c *RESTClient) EnableServicePlans(ctx context.Context, userID string, plans []string) error {
	body := map[string]any{
		"@odata.type":   "microsoft.graph.openTypeExtension",
		"extensionName": "com.oneclick.servicePlans",
		"plans":         plans,
	}
	endpoint := c.baseURL + "/users/" + url.PathEscape(userID) + "/extensions"
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderMicrosoft365, "enable service plans", err)
	}
	return nil
}

// do performs one JSON request/response cycle against Graph.
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
var _ GraphClient = (*RESTClient)(nil)
