package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ebayMaxResponseSize is the maximum allowed response size from eBay (10MB)
const ebayMaxResponseSize = 10 * 1024 * 1024

// tokenRefreshSkew is how long before expiry a token is refreshed
const tokenRefreshSkew = 5 * time.Minute

// codeUnauthorized is reported when eBay keeps refusing a fresh token
const codeUnauthorized = "UNAUTHORIZED"

var (
	errEbayAccountMissing = errors.New("ebay: account is not connected")
	errEbayNoRefreshToken = errors.New("ebay: access token expired and no refresh token is stored")
)

// tokenRefresher is the part of the OAuth client the token source needs
type tokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*marketplace.TokenGrant, error)
}

// ebayTokenSource hands out access tokens from the EBAY account and
// refreshes them through the identity API
type ebayTokenSource struct {
	mu       sync.Mutex
	accounts marketplace.AccountRepository
	oauth    tokenRefresher
	now      func() time.Time
	logger   *zap.Logger
}

// Token returns a token valid for at least tokenRefreshSkew
func (s *ebayTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if account.TokenValid(s.now(), tokenRefreshSkew) {
		return account.AccessToken, nil
	}
	return s.refresh(ctx, account)
}

// ForceRefresh replaces a token eBay refused. When another caller already
// refreshed it, the newer token is returned without a second refresh.
func (s *ebayTokenSource) ForceRefresh(ctx context.Context, refused string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if account.AccessToken != "" && account.AccessToken != refused && account.TokenValid(s.now(), 0) {
		return account.AccessToken, nil
	}
	return s.refresh(ctx, account)
}

func (s *ebayTokenSource) load(ctx context.Context) (*marketplace.MarketplaceAccount, error) {
	account, err := s.accounts.FindByMarketplace(ctx, marketplace.CodeEbay)
	if errors.Is(err, marketplace.ErrAccountNotFound) {
		return nil, errEbayAccountMissing
	}
	if err != nil {
		return nil, fmt.Errorf("ebay: failed to load account: %w", err)
	}
	if !account.IsConnected() {
		return nil, errEbayAccountMissing
	}
	return account, nil
}

func (s *ebayTokenSource) refresh(ctx context.Context, account *marketplace.MarketplaceAccount) (string, error) {
	if account.RefreshToken == "" {
		return "", errEbayNoRefreshToken
	}
	grant, err := s.oauth.Refresh(ctx, account.RefreshToken)
	if err != nil {
		return "", err
	}
	if err := account.SetTokens(grant.AccessToken, grant.RefreshToken, grant.ExpiresIn, s.now()); err != nil {
		return "", err
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		// The token is usable even though it could not be stored.
		s.logger.Warn("Failed to persist refreshed eBay token", zap.Error(err))
	}
	s.logger.Debug("eBay access token refreshed", zap.Timep("expires_at", account.TokenExpiresAt))
	return account.AccessToken, nil
}

// ---------------------------------------------------------------------------
// ebayClient
// ---------------------------------------------------------------------------

// ebayClient issues authenticated, throttled Sell API requests
type ebayClient struct {
	config     *EbayConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *ebayTokenSource
	logger     *zap.Logger
}

func newEbayClient(config *EbayConfig, httpClient *http.Client, tokens *ebayTokenSource, logger *zap.Logger) *ebayClient {
	burst := int(config.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &ebayClient{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst),
		tokens:     tokens,
		logger:     logger,
	}
}

// call sends one request and decodes a 2xx body into out (when non-nil).
// A 401 triggers exactly one forced token refresh and a resend.
func (c *ebayClient) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ebay: failed to encode request: %w", err)
		}
		payload = b
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, method, path, query, payload, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.logger.Info("eBay refused access token, refreshing", zap.String("path", path))
		token, err = c.tokens.ForceRefresh(ctx, token)
		if err != nil {
			return err
		}
		status, body, err = c.send(ctx, method, path, query, payload, token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		apiErr := &EbayAPIError{StatusCode: status, Body: truncate(string(body), 512)}
		var er EbayErrorResponse
		if json.Unmarshal(body, &er) == nil {
			apiErr.Errors = er.Errors
		}
		return apiErr
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("ebay: failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *ebayClient) send(ctx context.Context, method, path string, query url.Values, payload []byte, token string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter error: %w", err)
	}

	endpoint := c.config.APIBaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("ebay: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Language", "en-US")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("ebay: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, ebayMaxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("ebay: failed to read response: %w", err)
	}

	c.logger.Debug("eBay API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

// ---------------------------------------------------------------------------
// Failure classification
// ---------------------------------------------------------------------------

// classifyEbayError maps a client error onto the failure taxonomy
func classifyEbayError(err error) *marketplace.SyncError {
	if err == nil {
		return nil
	}

	var apiErr *EbayAPIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return marketplace.NotFound("ebay: %s", apiErr.Message()).WithCause(err)
		case apiErr.StatusCode == http.StatusUnauthorized:
			return marketplace.Rejected(codeUnauthorized, "eBay refused the access token after a refresh").WithCause(err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return marketplace.Transient(marketplace.CodeRateLimited, "eBay rate limit exceeded").WithCause(err)
		case apiErr.StatusCode >= 500:
			return marketplace.Transient(marketplace.CodeServerError, "eBay returned HTTP %d", apiErr.StatusCode).WithCause(err)
		default:
			return marketplace.Rejected(marketplace.CodeInvalidRequest, "%s", apiErr.Message()).WithCause(err)
		}
	}

	var oauthErr *EbayOAuthError
	if errors.As(err, &oauthErr) {
		if oauthErr.StatusCode >= 500 || oauthErr.StatusCode == http.StatusTooManyRequests {
			return marketplace.Transient(marketplace.CodeServerError, "eBay token refresh failed: %s", oauthErr.Code).WithCause(err)
		}
		return marketplace.Rejected(marketplace.CodeAuthFailed, "eBay token refresh was refused: %s", oauthErr.Code).WithCause(err)
	}

	switch {
	case errors.Is(err, errEbayAccountMissing):
		return marketplace.Rejected(marketplace.CodeAccountMissing, "eBay account is not connected").WithCause(err)
	case errors.Is(err, errEbayNoRefreshToken), errors.Is(err, marketplace.ErrAccountInvalidToken):
		return marketplace.Rejected(marketplace.CodeAuthFailed, "%v", err).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return marketplace.Transient(marketplace.CodeTimeout, "eBay request timed out").WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return marketplace.Transient(marketplace.CodeTimeout, "eBay request timed out").WithCause(err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return marketplace.Transient(marketplace.CodeInvalidResponse, "%v", err).WithCause(err)
	}

	return marketplace.Transient(marketplace.CodeNetwork, "%v", err).WithCause(err)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
