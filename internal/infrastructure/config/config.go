package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Sync      SyncConfig
	Browser   BrowserConfig
	Ebay      EbayConfig
	Poshmark  PoshmarkConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, console
	Output   string // comma separated: stdout, stderr and/or file paths
	Sampling bool   // thin out repeated entries under load
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64 // default cap, sized for multipart image uploads
	MaxJSONBodySize  int64
	CORSAllowOrigins []string
	TrustedProxies   []string
	RequestTimeout   time.Duration // bounds every route except sync
	SyncRateLimit    float64       // sync requests per second per client, 0 disables
	SyncRateBurst    int
}

// SyncConfig holds marketplace synchronization settings
type SyncConfig struct {
	RetryAttempts     int           // total attempts for transient failures (default 3)
	RetryBaseDelay    time.Duration // first backoff interval
	RetryMaxDelay     time.Duration // backoff ceiling
	MaxParallel       int           // marketplaces processed concurrently per request
	LockBackend       string        // memory or redis
	LockTTL           time.Duration // redis lock expiry
	ReconcileInterval time.Duration // 0 disables background reconciliation
	ReconcileBatch    int
	StaleAfter        time.Duration // listings not synced for this long are reconciled
	WorkerCount       int
	QueueSize         int
}

// BrowserConfig holds headless browser pool settings
type BrowserConfig struct {
	PoolSize       int
	RemoteURL      string // connect to an existing Chrome over CDP instead of launching one
	Headless       bool
	NoSandbox      bool
	SessionTimeout time.Duration
}

// EbayConfig holds eBay API settings
type EbayConfig struct {
	Enabled             bool
	ClientID            string
	ClientSecret        string
	RedirectURI         string
	Environment         string // sandbox or production
	BaseURL             string // overrides the environment's API host
	FulfillmentPolicyID string
	PaymentPolicyID     string
	ReturnPolicyID      string
	MerchantLocationKey string
	CategoryID          string
	RequestsPerSecond   float64
	TimeoutSeconds      int
}

// PoshmarkConfig holds Poshmark automation settings
type PoshmarkConfig struct {
	Enabled  bool
	BaseURL  string
	Username string
	Password string
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Bucket            string
	AccessKey         string
	SecretKey         string
	Region            string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool // Export zap logs over OTLP
	DBTracing         bool // Trace GORM queries
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CROSSLIST_ prefix (e.g., CROSSLIST_EBAY_CLIENT_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CROSSLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// booleans that default to true must be registered so that an explicit false sticks
	v.SetDefault("browser.headless", true)
	v.SetDefault("database.auto_migrate", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Format:   v.GetString("log.format"),
			Output:   v.GetString("log.output"),
			Sampling: v.GetBool("log.sampling"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			MaxJSONBodySize:  v.GetInt64("http.max_json_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),
			SyncRateLimit:    v.GetFloat64("http.sync_rate_limit"),
			SyncRateBurst:    v.GetInt("http.sync_rate_burst"),
		},
		Sync: SyncConfig{
			RetryAttempts:     v.GetInt("sync.retry_attempts"),
			RetryBaseDelay:    v.GetDuration("sync.retry_base_delay"),
			RetryMaxDelay:     v.GetDuration("sync.retry_max_delay"),
			MaxParallel:       v.GetInt("sync.max_parallel"),
			LockBackend:       v.GetString("sync.lock_backend"),
			LockTTL:           v.GetDuration("sync.lock_ttl"),
			ReconcileInterval: v.GetDuration("sync.reconcile_interval"),
			ReconcileBatch:    v.GetInt("sync.reconcile_batch"),
			StaleAfter:        v.GetDuration("sync.stale_after"),
			WorkerCount:       v.GetInt("sync.worker_count"),
			QueueSize:         v.GetInt("sync.queue_size"),
		},
		Browser: BrowserConfig{
			PoolSize:       v.GetInt("browser.pool_size"),
			RemoteURL:      v.GetString("browser.remote_url"),
			Headless:       v.GetBool("browser.headless"),
			NoSandbox:      v.GetBool("browser.no_sandbox"),
			SessionTimeout: v.GetDuration("browser.session_timeout"),
		},
		Ebay: EbayConfig{
			Enabled:             v.GetBool("ebay.enabled"),
			ClientID:            v.GetString("ebay.client_id"),
			ClientSecret:        v.GetString("ebay.client_secret"),
			RedirectURI:         v.GetString("ebay.redirect_uri"),
			Environment:         v.GetString("ebay.environment"),
			BaseURL:             v.GetString("ebay.base_url"),
			FulfillmentPolicyID: v.GetString("ebay.fulfillment_policy_id"),
			PaymentPolicyID:     v.GetString("ebay.payment_policy_id"),
			ReturnPolicyID:      v.GetString("ebay.return_policy_id"),
			MerchantLocationKey: v.GetString("ebay.merchant_location_key"),
			CategoryID:          v.GetString("ebay.category_id"),
			RequestsPerSecond:   v.GetFloat64("ebay.requests_per_second"),
			TimeoutSeconds:      v.GetInt("ebay.timeout_seconds"),
		},
		Poshmark: PoshmarkConfig{
			Enabled:  v.GetBool("poshmark.enabled"),
			BaseURL:  v.GetString("poshmark.base_url"),
			Username: v.GetString("poshmark.username"),
			Password: v.GetString("poshmark.password"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			Region:            v.GetString("storage.region"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "crosslist-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "crosslist"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "crosslist.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// browser flows can take a while; the write timeout covers a synchronous sync request
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.SyncRateLimit > 0 && cfg.HTTP.SyncRateBurst == 0 {
		cfg.HTTP.SyncRateBurst = 5
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 20 << 20 // 20MB, image uploads
	}
	if cfg.HTTP.MaxJSONBodySize == 0 {
		cfg.HTTP.MaxJSONBodySize = 1 << 20
	}
	if cfg.Sync.RetryAttempts == 0 {
		cfg.Sync.RetryAttempts = 3
	}
	if cfg.Sync.RetryBaseDelay == 0 {
		cfg.Sync.RetryBaseDelay = 2 * time.Second
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Sync.MaxParallel == 0 {
		cfg.Sync.MaxParallel = 4
	}
	if cfg.Sync.LockBackend == "" {
		cfg.Sync.LockBackend = "memory"
	}
	if cfg.Sync.LockTTL == 0 {
		cfg.Sync.LockTTL = 5 * time.Minute
	}
	if cfg.Sync.ReconcileBatch == 0 {
		cfg.Sync.ReconcileBatch = 50
	}
	if cfg.Sync.StaleAfter == 0 {
		cfg.Sync.StaleAfter = 6 * time.Hour
	}
	if cfg.Sync.WorkerCount == 0 {
		cfg.Sync.WorkerCount = 2
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 100
	}
	if cfg.Browser.PoolSize == 0 {
		cfg.Browser.PoolSize = 2
	}
	if cfg.Browser.SessionTimeout == 0 {
		cfg.Browser.SessionTimeout = 3 * time.Minute
	}
	if cfg.Ebay.Environment == "" {
		cfg.Ebay.Environment = "sandbox"
	}
	if cfg.Ebay.MerchantLocationKey == "" {
		cfg.Ebay.MerchantLocationKey = "main_store"
	}
	if cfg.Ebay.CategoryID == "" {
		cfg.Ebay.CategoryID = "11450"
	}
	if cfg.Ebay.RequestsPerSecond == 0 {
		cfg.Ebay.RequestsPerSecond = 5
	}
	if cfg.Ebay.TimeoutSeconds == 0 {
		cfg.Ebay.TimeoutSeconds = 30
	}
	if cfg.Poshmark.BaseURL == "" {
		cfg.Poshmark.BaseURL = "https://poshmark.com"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 24 * time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "crosslist-backend"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be at least 1")
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max_delay (%s) cannot be less than sync.retry_base_delay (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryBaseDelay)
	}
	if c.Sync.LockBackend != "memory" && c.Sync.LockBackend != "redis" {
		return fmt.Errorf("sync.lock_backend must be memory or redis, got %q", c.Sync.LockBackend)
	}
	if c.Browser.PoolSize < 1 || c.Browser.PoolSize > 8 {
		return fmt.Errorf("browser.pool_size must be between 1 and 8, got %d", c.Browser.PoolSize)
	}
	if c.Ebay.Environment != "sandbox" && c.Ebay.Environment != "production" {
		return fmt.Errorf("ebay.environment must be sandbox or production, got %q", c.Ebay.Environment)
	}
	if c.Ebay.Enabled && (c.Ebay.ClientID == "" || c.Ebay.ClientSecret == "") {
		return fmt.Errorf("ebay.client_id and ebay.client_secret are required when ebay is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Ebay.Enabled && c.Ebay.Environment != "production" {
			return fmt.Errorf("ebay.environment must be production when app.env is production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
