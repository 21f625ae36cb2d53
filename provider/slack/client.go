package slack

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

// Default API endpoints. SCIM handles the user lifecycle, the Web API
// handles channel and user-group membership.
const (
	DefaultSCIMURL = "https://api.slack.com/scim/v2"
	DefaultWebURL  = "https://slack.com/api"
)

const defaultHTTPTimeout = 30 * time.Second

// SCIM schema URNs.
const (
	scimUserSchema  = "urn:ietf:params:scim:schemas:core:2.0:User"
	scimPatchSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
)

// SCIMName is the SCIM name object.
type SCIMName struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

// SCIMEmail is one entry of the SCIM emails list.
type SCIMEmail struct {
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// SCIMUser is the slice of the SCIM user resource the provisioner
// reads.
type SCIMUser struct {
	ID       string   `json:"id"`
	UserName string   `json:"userName"`
	Name     SCIMName `json:"name"`
	Active   bool     `json:"active"`
}

// SCIMUserRequest is the creation payload.
type SCIMUserRequest struct {
	Schemas  []string    `json:"schemas"`
	UserName string      `json:"userName"`
	Name     SCIMName    `json:"name"`
	Emails   []SCIMEmail `json:"emails"`
	Active   bool        `json:"active"`
}

// SCIMPatchOp is one operation of a SCIM patch.
type SCIMPatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value"`
}

// Channel is a Slack conversation as listed by the Web API.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserGroup is a Slack user group. Members carries the current user
// IDs since the update call replaces the full list.
type UserGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Handle  string   `json:"handle"`
	Members []string `json:"users"`
}

// Client is the slice of the Slack admin surface the provisioner
// needs. Implementations must return an error matching
// provider.ErrNotFound from FindUserByEmail when no user exists for
// the address.
type Client interface {
	// FindUserByEmail looks a user up via SCIM filter.
	FindUserByEmail(ctx context.Context, email string) (*SCIMUser, error)
	// CreateUser creates a user via SCIM.
	CreateUser(ctx context.Context, req *SCIMUserRequest) (*SCIMUser, error)
	// PatchUser applies SCIM patch operations to an existing user.
	PatchUser(ctx context.Context, userID string, ops []SCIMPatchOp) error
	// ListChannels lists public channels.
	ListChannels(ctx context.Context) ([]Channel, error)
	// InviteToChannel invites the user into a channel.
	InviteToChannel(ctx context.Context, channelID, userID string) error
	// ListUserGroups lists user groups with their members.
	ListUserGroups(ctx context.Context) ([]UserGroup, error)
	// SetUserGroupMembers replaces a group's member list.
	SetUserGroupMembers(ctx context.Context, groupID string, userIDs []string) error
}

// RESTClient implements Client against the SCIM and Web APIs. The two
// injected http.Clients must already carry authentication: the SCIM
// side an admin user token, the Web API side a bot token.
type RESTClient struct {
	scimURL    string
	webURL     string
	scimClient *http.Client
	webClient  *http.Client
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// SCIMURL overrides the SCIM base URL (tests).
	SCIMURL string
	// WebURL overrides the Web API base URL (tests).
	WebURL string
	// SCIMClient is the admin-token client (required).
	SCIMClient *http.Client
	// WebClient is the bot-token client (required).
	WebClient *http.Client
}

// NewRESTClient creates a SCIM + Web API client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.SCIMClient == nil || cfg.WebClient == nil {
		return nil, errors.New("slack: authenticated SCIM and Web API clients are required")
	}
	if cfg.SCIMURL == "" {
		cfg.SCIMURL = DefaultSCIMURL
	}
	if cfg.WebURL == "" {
		cfg.WebURL = DefaultWebURL
	}
	if cfg.SCIMClient.Timeout == 0 {
		cfg.SCIMClient.Timeout = defaultHTTPTimeout
	}
	if cfg.WebClient.Timeout == 0 {
		cfg.WebClient.Timeout = defaultHTTPTimeout
	}
	return &RESTClient{
		scimURL:    cfg.SCIMURL,
		webURL:     cfg.WebURL,
		scimClient: cfg.SCIMClient,
		webClient:  cfg.WebClient,
	}, nil
}

// FindUserByEmail looks a user up via SCIM filter.
func (c *RESTClient) FindUserByEmail(ctx context.Context, email string) (*SCIMUser, error) {
	var listing struct {
		TotalResults int        `json:"totalResults"`
		Resources    []SCIMUser `json:"Resources"`
	}
	endpoint := fmt.Sprintf("%s/Users?filter=%s",
		c.scimURL, url.QueryEscape(fmt.Sprintf("email eq %q", email)))
	if err := c.do(ctx, c.scimClient, http.MethodGet, endpoint, nil, &listing); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderSlack, "find user", err)
	}
	if listing.TotalResults == 0 || len(listing.Resources) == 0 {
		return nil, provider.NewError(provider.ErrNotFound, types.ProviderSlack, "find user",
			fmt.Errorf("no user for %s", email))
	}
	return &listing.Resources[0], nil
}

// CreateUser creates a user via SCIM.
func (c *RESTClient) CreateUser(ctx context.Context, req *SCIMUserRequest) (*SCIMUser, error) {
	if len(req.Schemas) == 0 {
		req.Schemas = []string{scimUserSchema}
	}
	var user SCIMUser
	if err := c.do(ctx, c.scimClient, http.MethodPost, c.scimURL+"/Users", req, &user); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderSlack, "create user", err)
	}
	return &user, nil
}

// PatchUser applies SCIM patch operations to an existing user.
func (c *RESTClient) PatchUser(ctx context.Context, userID string, ops []SCIMPatchOp) error {
	body := struct {
		Schemas    []string      `json:"schemas"`
		Operations []SCIMPatchOp `json:"Operations"`
	}{
		Schemas:    []string{scimPatchSchema},
		Operations: ops,
	}
	endpoint := fmt.Sprintf("%s/Users/%s", c.scimURL, url.PathEscape(userID))
	if err := c.do(ctx, c.scimClient, http.MethodPatch, endpoint, body, nil); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderSlack, "patch user", err)
	}
	return nil
}

// ListChannels lists public channels.
func (c *RESTClient) ListChannels(ctx context.Context) ([]Channel, error) {
	var out struct {
		webEnvelope
		Channels []Channel `json:"channels"`
	}
	body := map[string]string{"types": "public_channel"}
	if err := c.web(ctx, "conversations.list", body, &out); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderSlack, "list channels", err)
	}
	return out.Channels, nil
}

// InviteToChannel invites the user into a channel.
func (c *RESTClient) InviteToChannel(ctx context.Context, channelID, userID string) error {
	var out webEnvelope
	body := map[string]string{"channel": channelID, "users": userID}
	if err := c.web(ctx, "conversations.invite", body, &out); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderSlack, "invite to channel", err)
	}
	return nil
}

// ListUserGroups lists user groups with their members.
func (c *RESTClient) ListUserGroups(ctx context.Context) ([]UserGroup, error) {
	var out struct {
		webEnvelope
		UserGroups []UserGroup `json:"usergroups"`
	}
	body := map[string]string{"include_users": "true"}
	if err := c.web(ctx, "usergroups.list", body, &out); err != nil {
		return nil, provider.NewError(provider.Classify(err), types.ProviderSlack, "list user groups", err)
	}
	return out.UserGroups, nil
}

// SetUserGroupMembers replaces a group's member list.
func (c *RESTClient) SetUserGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	var out webEnvelope
	body := map[string]any{"usergroup": groupID, "users": userIDs}
	if err := c.web(ctx, "usergroups.users.update", body, &out); err != nil {
		return provider.NewError(provider.Classify(err), types.ProviderSlack, "update user group", err)
	}
	return nil
}

// webEnvelope is the common ok/error wrapper every Web API response
// carries. The API reports most failures inside a 200 response.
type webEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (e *webEnvelope) envelope() *webEnvelope { return e }

type webResponse interface{ envelope() *webEnvelope }

// web calls one Web API method and checks the ok flag.
func (c *RESTClient) web(ctx context.Context, method string, body, out any) error {
	if err := c.do(ctx, c.webClient, http.MethodPost, c.webURL+"/"+method, body, out); err != nil {
		return err
	}
	env := out.(webResponse).envelope()
	if !env.OK {
		switch env.Error {
		case "invalid_auth", "not_authed", "token_revoked", "missing_scope":
			return fmt.Errorf("%w: %s: %s", provider.ErrAuth, method, env.Error)
		case "ratelimited":
			return fmt.Errorf("%w: %s", provider.ErrRateLimited, method)
		default:
			return fmt.Errorf("%w: %s: %s", provider.ErrVendor, method, env.Error)
		}
	}
	return nil
}

// do performs one JSON request/response cycle against either API.
func (c *RESTClient) do(ctx context.Context, hc *http.Client, method, endpoint string, body, out any) error {
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

	resp, err := hc.Do(req)
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
