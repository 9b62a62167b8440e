package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MarketplaceAccount holds the credentials and session state used by one
// marketplace adapter. There is at most one account per marketplace.
type MarketplaceAccount struct {
	ID             uuid.UUID
	Marketplace    Code
	Username       string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	// SessionCookies is the JSON-encoded browser cookie jar for browser-driven marketplaces.
	SessionCookies string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewMarketplaceAccount creates an empty, disconnected account
func NewMarketplaceAccount(code Code) (*MarketplaceAccount, error) {
	if !code.IsValid() {
		return nil, ErrUnknownMarketplace
	}
	now := time.Now().UTC()
	return &MarketplaceAccount{
		ID:          uuid.New(),
		Marketplace: code,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SetTokens stores a freshly issued OAuth token pair. An empty refresh token
// keeps the previous one, since refresh grants do not always rotate it.
func (a *MarketplaceAccount) SetTokens(accessToken, refreshToken string, expiresIn time.Duration, now time.Time) error {
	if accessToken == "" {
		return ErrAccountInvalidToken
	}
	a.AccessToken = accessToken
	if refreshToken != "" {
		a.RefreshToken = refreshToken
	}
	expires := now.Add(expiresIn)
	a.TokenExpiresAt = &expires
	a.UpdatedAt = now
	return nil
}

// TokenValid reports whether the access token is usable for at least skew
func (a *MarketplaceAccount) TokenValid(now time.Time, skew time.Duration) bool {
	if a.AccessToken == "" || a.TokenExpiresAt == nil {
		return false
	}
	return a.TokenExpiresAt.After(now.Add(skew))
}

// SetSession stores a browser cookie jar and the signed-in username
func (a *MarketplaceAccount) SetSession(cookiesJSON, username string, now time.Time) {
	a.SessionCookies = cookiesJSON
	if username != "" {
		a.Username = username
	}
	a.UpdatedAt = now
}

// IsConnected reports whether the account carries any usable credential
func (a *MarketplaceAccount) IsConnected() bool {
	return a.AccessToken != "" || a.RefreshToken != "" || a.SessionCookies != ""
}

// TokenGrant is the result of an OAuth code exchange or refresh
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// SessionCookie is one browser cookie of a marketplace session
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ParseSessionCookies decodes a cookie jar exported from a browser.
// Cookies without a name are dropped.
func ParseSessionCookies(data string) ([]SessionCookie, error) {
	var raw []SessionCookie
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionCookies, err)
	}
	cookies := raw[:0]
	for _, c := range raw {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		cookies = append(cookies, c)
	}
	if len(cookies) == 0 {
		return nil, ErrInvalidSessionCookies
	}
	return cookies, nil
}

// EncodeSessionCookies serializes a cookie jar for storage on the account
func EncodeSessionCookies(cookies []SessionCookie) (string, error) {
	b, err := json.Marshal(cookies)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SessionUsername returns the signed-in username carried by the "un" cookie
func SessionUsername(cookies []SessionCookie) string {
	for _, c := range cookies {
		if c.Name == "un" || c.Name == "username" {
			return c.Value
		}
	}
	return ""
}
