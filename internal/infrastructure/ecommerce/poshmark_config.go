package ecommerce

import (
	"errors"
	"strings"
	"time"

	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
)

// PoshmarkConfig holds configuration for Poshmark browser automation
type PoshmarkConfig struct {
	// BaseURL is the site root (default: https://poshmark.com)
	BaseURL string
	// Username and Password are used when the stored session has expired
	Username string
	Password string
	// StepTimeout bounds waiting for one form element
	StepTimeout time.Duration
	// NavigationTimeout bounds waiting for a redirect after submitting a form
	NavigationTimeout time.Duration
	// PollInterval is how often page state is polled while waiting
	PollInterval time.Duration
	// MaxImages is the most photos uploaded per listing
	MaxImages int
	// TempDir holds image files while they are uploaded (default: OS temp dir)
	TempDir string
}

// PoshmarkDefaultBaseURL is the production site
const PoshmarkDefaultBaseURL = "https://poshmark.com"

// ErrPoshmarkConfigInvalidBaseURL indicates a base URL without a scheme
var ErrPoshmarkConfigInvalidBaseURL = errors.New("poshmark: base url must start with http:// or https://")

// NewPoshmarkConfig builds the adapter configuration from application settings
func NewPoshmarkConfig(cfg infraconfig.PoshmarkConfig) *PoshmarkConfig {
	return &PoshmarkConfig{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
	}
}

// Validate validates the configuration and fills in defaults
func (c *PoshmarkConfig) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = PoshmarkDefaultBaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return ErrPoshmarkConfigInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.StepTimeout <= 0 {
		c.StepTimeout = 15 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.MaxImages <= 0 || c.MaxImages > 16 {
		c.MaxImages = 8
	}
	return nil
}

// HasCredentials reports whether a username and password are configured
func (c *PoshmarkConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}
