package ecommerce

import (
	"errors"
	"strings"

	"github.com/crosslist/backend/internal/domain/marketplace"
	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
)

// EbayConfig holds configuration for the eBay Sell APIs
type EbayConfig struct {
	// ClientID and ClientSecret are the application keyset
	ClientID     string
	ClientSecret string
	// RedirectURI is the RuName registered for the consent flow
	RedirectURI string
	// Environment is sandbox or production
	Environment string
	// APIBaseURL overrides the environment's API host (used by tests)
	APIBaseURL string
	// AuthBaseURL overrides the environment's consent host
	AuthBaseURL string
	// MarketplaceID is the eBay site offers are created on
	MarketplaceID string
	Currency      string
	// Business policy ids. When all three are set the account policies are not fetched.
	FulfillmentPolicyID string
	PaymentPolicyID     string
	ReturnPolicyID      string
	// MerchantLocationKey is the inventory location offers ship from
	MerchantLocationKey string
	// CategoryID is used for items without a category
	CategoryID        string
	RequestsPerSecond float64
	TimeoutSeconds    int
	Scopes            []string
}

const (
	// EbayProductionAPIURL is the production API endpoint
	EbayProductionAPIURL = "https://api.ebay.com"
	// EbaySandboxAPIURL is the sandbox API endpoint
	EbaySandboxAPIURL = "https://api.sandbox.ebay.com"
	// EbayProductionAuthURL is the production consent host
	EbayProductionAuthURL = "https://auth.ebay.com"
	// EbaySandboxAuthURL is the sandbox consent host
	EbaySandboxAuthURL = "https://auth.sandbox.ebay.com"

	ebayEnvSandbox    = "sandbox"
	ebayEnvProduction = "production"
)

// DefaultEbayScopes are the OAuth scopes the adapter needs
var DefaultEbayScopes = []string{
	"https://api.ebay.com/oauth/api_scope",
	"https://api.ebay.com/oauth/api_scope/sell.account.readonly",
	"https://api.ebay.com/oauth/api_scope/sell.account",
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.fulfillment",
}

// Errors for eBay configuration
var (
	ErrEbayConfigMissingClientID     = errors.New("ebay: client id is required")
	ErrEbayConfigMissingClientSecret = errors.New("ebay: client secret is required")
	ErrEbayConfigInvalidEnvironment  = errors.New("ebay: environment must be sandbox or production")
)

// NewEbayConfig builds the adapter configuration from application settings
func NewEbayConfig(cfg infraconfig.EbayConfig) *EbayConfig {
	return &EbayConfig{
		ClientID:            cfg.ClientID,
		ClientSecret:        cfg.ClientSecret,
		RedirectURI:         cfg.RedirectURI,
		Environment:         cfg.Environment,
		APIBaseURL:          cfg.BaseURL,
		FulfillmentPolicyID: cfg.FulfillmentPolicyID,
		PaymentPolicyID:     cfg.PaymentPolicyID,
		ReturnPolicyID:      cfg.ReturnPolicyID,
		MerchantLocationKey: cfg.MerchantLocationKey,
		CategoryID:          cfg.CategoryID,
		RequestsPerSecond:   cfg.RequestsPerSecond,
		TimeoutSeconds:      cfg.TimeoutSeconds,
	}
}

// Validate validates the configuration and fills in defaults
func (c *EbayConfig) Validate() error {
	if c.ClientID == "" {
		return ErrEbayConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrEbayConfigMissingClientSecret
	}
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = ebayEnvSandbox
	}
	if c.Environment != ebayEnvSandbox && c.Environment != ebayEnvProduction {
		return ErrEbayConfigInvalidEnvironment
	}
	if c.APIBaseURL == "" {
		if c.IsSandbox() {
			c.APIBaseURL = EbaySandboxAPIURL
		} else {
			c.APIBaseURL = EbayProductionAPIURL
		}
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.AuthBaseURL == "" {
		if c.IsSandbox() {
			c.AuthBaseURL = EbaySandboxAuthURL
		} else {
			c.AuthBaseURL = EbayProductionAuthURL
		}
	}
	if c.MarketplaceID == "" {
		c.MarketplaceID = "EBAY_US"
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.MerchantLocationKey == "" {
		c.MerchantLocationKey = "main_store"
	}
	if c.CategoryID == "" {
		c.CategoryID = marketplace.DefaultCategoryID
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultEbayScopes
	}
	return nil
}

// IsSandbox reports whether the sandbox environment is used
func (c *EbayConfig) IsSandbox() bool {
	return c.Environment != ebayEnvProduction
}

// HasPolicies reports whether all business policy ids are configured
func (c *EbayConfig) HasPolicies() bool {
	return c.FulfillmentPolicyID != "" && c.PaymentPolicyID != "" && c.ReturnPolicyID != ""
}

// ItemURL returns the public page of a listing
func (c *EbayConfig) ItemURL(listingID string) string {
	if listingID == "" {
		return ""
	}
	if c.IsSandbox() {
		return "https://sandbox.ebay.com/itm/" + listingID
	}
	return "https://www.ebay.com/itm/" + listingID
}
