package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EbayOAuth performs the eBay authorization code grant
type EbayOAuth interface {
	// AuthorizeURL returns the consent page URL carrying state
	AuthorizeURL(state string) (string, error)
	// ExchangeCode trades an authorization code for a token pair
	ExchangeCode(ctx context.Context, code string) (*marketplace.TokenGrant, error)
}

// ConnectURL is the consent page a seller opens to connect eBay
type ConnectURL struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// AccountService manages marketplace connections
type AccountService struct {
	accounts marketplace.AccountRepository
	oauth    EbayOAuth
	adapters marketplace.AdapterRegistry
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountService creates a new AccountService. oauth may be nil when
// eBay is not configured.
func NewAccountService(accounts marketplace.AccountRepository, oauth EbayOAuth, adapters marketplace.AdapterRegistry, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accounts: accounts,
		oauth:    oauth,
		adapters: adapters,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EbayConnectURL builds the eBay consent URL
func (s *AccountService) EbayConnectURL() (*ConnectURL, error) {
	if s.oauth == nil {
		return nil, ErrOAuthNotConfigured
	}
	state := uuid.NewString()
	u, err := s.oauth.AuthorizeURL(state)
	if err != nil {
		return nil, err
	}
	return &ConnectURL{URL: u, State: state}, nil
}

// EbayCallback exchanges the authorization code and stores the tokens
func (s *AccountService) EbayCallback(ctx context.Context, code string) (*AccountStatus, error) {
	if s.oauth == nil {
		return nil, ErrOAuthNotConfigured
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is empty", marketplace.ErrAccountInvalidToken)
	}

	grant, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("ebay code exchange: %w", err)
	}

	account, err := s.loadOrCreate(ctx, marketplace.CodeEbay)
	if err != nil {
		return nil, err
	}
	if err := account.SetTokens(grant.AccessToken, grant.RefreshToken, grant.ExpiresIn, s.now()); err != nil {
		return nil, err
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save ebay account: %w", err)
	}

	s.logger.Info("eBay account connected", zap.Timep("token_expires_at", account.TokenExpiresAt))
	return s.statusOf(marketplace.CodeEbay, account), nil
}

// ConnectPoshmark stores an exported Poshmark cookie jar
func (s *AccountService) ConnectPoshmark(ctx context.Context, cookiesJSON string) (*AccountStatus, error) {
	cookies, err := marketplace.ParseSessionCookies(cookiesJSON)
	if err != nil {
		return nil, err
	}
	encoded, err := marketplace.EncodeSessionCookies(cookies)
	if err != nil {
		return nil, err
	}

	account, err := s.loadOrCreate(ctx, marketplace.CodePoshmark)
	if err != nil {
		return nil, err
	}
	account.SetSession(encoded, marketplace.SessionUsername(cookies), s.now())
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save poshmark account: %w", err)
	}

	s.logger.Info("Poshmark account connected",
		zap.String("username", account.Username),
		zap.Int("cookies", len(cookies)),
	)
	return s.statusOf(marketplace.CodePoshmark, account), nil
}

// Status reports how a marketplace is connected
func (s *AccountService) Status(ctx context.Context, name string) (*AccountStatus, error) {
	code, err := marketplace.ParseCode(name)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByMarketplace(ctx, code)
	if errors.Is(err, marketplace.ErrAccountNotFound) {
		return s.statusOf(code, nil), nil
	}
	if err != nil {
		return nil, err
	}
	return s.statusOf(code, account), nil
}

// Disconnect removes the stored credentials of a marketplace
func (s *AccountService) Disconnect(ctx context.Context, name string) error {
	code, err := marketplace.ParseCode(name)
	if err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, code); err != nil && !errors.Is(err, marketplace.ErrAccountNotFound) {
		return err
	}
	s.logger.Info("Marketplace account disconnected", logger.Marketplace(string(code)))
	return nil
}

// EbayInventory pages through the inventory stored on eBay
func (s *AccountService) EbayInventory(ctx context.Context, limit, offset int) (*marketplace.RemoteInventoryPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	adapter, err := s.adapters.Adapter(marketplace.CodeEbay)
	if err != nil {
		return nil, err
	}
	browser, ok := adapter.(marketplace.InventoryBrowser)
	if !ok {
		return nil, marketplace.ErrAdapterNotAvailable
	}
	return browser.ListInventory(ctx, limit, offset)
}

func (s *AccountService) loadOrCreate(ctx context.Context, code marketplace.Code) (*marketplace.MarketplaceAccount, error) {
	account, err := s.accounts.FindByMarketplace(ctx, code)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, marketplace.ErrAccountNotFound) {
		return nil, err
	}
	return marketplace.NewMarketplaceAccount(code)
}

func (s *AccountService) statusOf(code marketplace.Code, account *marketplace.MarketplaceAccount) *AccountStatus {
	st := &AccountStatus{
		Marketplace: string(code),
		DisplayName: code.DisplayName(),
		Mechanism:   string(code.Mechanism()),
	}
	if account == nil {
		return st
	}
	st.Connected = account.IsConnected()
	st.Username = account.Username
	st.TokenExpiresAt = account.TokenExpiresAt
	st.HasSession = account.SessionCookies != ""
	return st
}
