package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/noah-isme/alumni-portal-api/pkg/config"
)

// ErrUserNotFound is returned when the provider has no such user.
var ErrUserNotFound = errors.New("idp: user not found")

// EmailAddress is one address registered with the provider.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// User is the provider-side user record.
type User struct {
	ID                    string                 `json:"id"`
	FirstName             string                 `json:"first_name"`
	LastName              string                 `json:"last_name"`
	Username              string                 `json:"username"`
	PrimaryEmailAddressID string                 `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress         `json:"email_addresses"`
	PublicMetadata        map[string]interface{} `json:"public_metadata"`
}

// PrimaryEmail returns the primary address, falling back to the first one.
func (u *User) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID && e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	for _, e := range u.EmailAddresses {
		if e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	return ""
}

// MetadataRole returns public_metadata.role when it is a string.
func (u *User) MetadataRole() string {
	if role, ok := u.PublicMetadata["role"].(string); ok {
		return role
	}
	return ""
}

// Client reads users from the provider's backend API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient authenticates with OAuth2 client credentials when a client id
// and token URL are configured, otherwise with the static API key as a
// bearer token. Every request is bounded by cfg.Timeout.
func NewClient(cfg config.IDPConfig) *Client {
	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var httpClient *http.Client
	switch {
	case cfg.ClientID != "" && cfg.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(ctx)
	case cfg.APIKey != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}))
	default:
		httpClient = base
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{baseURL: strings.TrimRight(cfg.APIBaseURL, "/"), http: httpClient}
}

// GetUser fetches the provider record for id.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	if c.baseURL == "" {
		return nil, errors.New("idp: API base URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build idp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("idp get user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("idp get user: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode idp user: %w", err)
	}
	return &user, nil
}
