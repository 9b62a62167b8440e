package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
)

// defaultTokenLifetime is used when the token endpoint omits expires_in
const defaultTokenLifetime = 7200 * time.Second

// EbayOAuthClient performs the eBay authorization code and refresh grants
type EbayOAuthClient struct {
	config     *EbayConfig
	httpClient *http.Client
}

// NewEbayOAuthClient creates an OAuth client for a validated configuration
func NewEbayOAuthClient(config *EbayConfig, httpClient *http.Client) *EbayOAuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second}
	}
	return &EbayOAuthClient{config: config, httpClient: httpClient}
}

// AuthorizeURL returns the consent page URL carrying state
func (c *EbayOAuthClient) AuthorizeURL(state string) (string, error) {
	if c.config.RedirectURI == "" {
		return "", fmt.Errorf("ebay oauth: redirect uri is not configured")
	}
	q := url.Values{}
	q.Set("client_id", c.config.ClientID)
	q.Set("redirect_uri", c.config.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(c.config.Scopes, " "))
	q.Set("state", state)
	return c.config.AuthBaseURL + "/oauth2/authorize?" + q.Encode(), nil
}

// ExchangeCode trades an authorization code for a token pair
func (c *EbayOAuthClient) ExchangeCode(ctx context.Context, code string) (*marketplace.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.config.RedirectURI)
	return c.token(ctx, form)
}

// Refresh obtains a new access token from a refresh token
func (c *EbayOAuthClient) Refresh(ctx context.Context, refreshToken string) (*marketplace.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(c.config.Scopes, " "))
	return c.token(ctx, form)
}

func (c *EbayOAuthClient) token(ctx context.Context, form url.Values) (*marketplace.TokenGrant, error) {
	endpoint := c.config.APIBaseURL + "/identity/v1/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ebay oauth: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ebay oauth: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, ebayMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("ebay oauth: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		oerr := &EbayOAuthError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, oerr); jsonErr != nil || oerr.Code == "" {
			oerr.Code = http.StatusText(resp.StatusCode)
		}
		return nil, oerr
	}

	var tr EbayTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("ebay oauth: failed to parse response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("ebay oauth: response carries no access token")
	}

	lifetime := defaultTokenLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}
	return &marketplace.TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    lifetime,
	}, nil
}
