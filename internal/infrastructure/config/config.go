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
	App         AppConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Storage     StorageConfig
	RemoteFile  RemoteFileConfig
	ObjectStore ObjectStoreConfig
	Printer     PrinterConfig
	Email       EmailConfig
	Renderer    RendererConfig
	DevOutput   DevOutputConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name   string
	Env    string
	Port   string
	APIKey string // shared secret expected in X-API-Key
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// StorageConfig selects the storage backends.
// The remote file server is primary when enabled; the object store is the
// fallback, or the only backend when the remote file server is disabled.
type StorageConfig struct {
	RemoteEnabled      bool
	FallbackEnabled    bool
	ObjectStoreEnabled bool
}

// RemoteFileConfig holds settings for the NAS file-server API
type RemoteFileConfig struct {
	BaseURL             string // e.g. https://nas.local:5001
	BasePath            string // share root, e.g. /data/documents
	Username            string
	Password            string
	SessionName         string
	InsecureSkipVerify  bool   // trust self-signed certificates (development only)
	CACertFile          string // extra PEM bundle to trust
	ConnectTimeout      time.Duration
	MaxDuration         time.Duration
	SessionCacheEnabled bool
	SessionTTL          time.Duration
	MovePollInterval    time.Duration
}

// ObjectStoreConfig holds S3-compatible storage settings
type ObjectStoreConfig struct {
	Bucket       string
	Region       string
	Endpoint     string // empty means AWS
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	UseSSL       bool
	KeyPrefix    string
}

// PrinterConfig holds the print service endpoint
type PrinterConfig struct {
	URL            string
	DefaultPrinter string
	Timeout        time.Duration
}

// EmailConfig holds the transactional email API settings
type EmailConfig struct {
	APIURL      string
	APIKey      string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
}

// RendererConfig holds headless browser settings
type RendererConfig struct {
	RemoteURL string // optional remote Chrome DevTools endpoint
	Timeout   time.Duration
	NoSandbox bool
}

// DevOutputConfig controls the local debug copy of rendered documents
type DevOutputConfig struct {
	Enabled bool
	Dir     string
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
	LogsEnabled       bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with DOCS_ prefix (e.g., DOCS_REMOTE_FILE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the given config file when path is set
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("DOCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose zero value is not the default
	v.SetDefault("storage.remote_enabled", true)
	v.SetDefault("storage.fallback_enabled", true)
	v.SetDefault("storage.object_store_enabled", true)
	v.SetDefault("object_store.use_ssl", true)

	cfg := &Config{
		App: AppConfig{
			Name:   v.GetString("app.name"),
			Env:    v.GetString("app.env"),
			Port:   v.GetString("app.port"),
			APIKey: v.GetString("app.api_key"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Storage: StorageConfig{
			RemoteEnabled:      v.GetBool("storage.remote_enabled"),
			FallbackEnabled:    v.GetBool("storage.fallback_enabled"),
			ObjectStoreEnabled: v.GetBool("storage.object_store_enabled"),
		},
		RemoteFile: RemoteFileConfig{
			BaseURL:             v.GetString("remote_file.base_url"),
			BasePath:            v.GetString("remote_file.base_path"),
			Username:            v.GetString("remote_file.username"),
			Password:            v.GetString("remote_file.password"),
			SessionName:         v.GetString("remote_file.session_name"),
			InsecureSkipVerify:  v.GetBool("remote_file.insecure_skip_verify"),
			CACertFile:          v.GetString("remote_file.ca_cert_file"),
			ConnectTimeout:      v.GetDuration("remote_file.connect_timeout"),
			MaxDuration:         v.GetDuration("remote_file.max_duration"),
			SessionCacheEnabled: v.GetBool("remote_file.session_cache_enabled"),
			SessionTTL:          v.GetDuration("remote_file.session_ttl"),
			MovePollInterval:    v.GetDuration("remote_file.move_poll_interval"),
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:       v.GetString("object_store.bucket"),
			Region:       v.GetString("object_store.region"),
			Endpoint:     v.GetString("object_store.endpoint"),
			AccessKey:    v.GetString("object_store.access_key"),
			SecretKey:    v.GetString("object_store.secret_key"),
			UsePathStyle: v.GetBool("object_store.use_path_style"),
			UseSSL:       v.GetBool("object_store.use_ssl"),
			KeyPrefix:    v.GetString("object_store.key_prefix"),
		},
		Printer: PrinterConfig{
			URL:            v.GetString("printer.url"),
			DefaultPrinter: v.GetString("printer.default_printer"),
			Timeout:        v.GetDuration("printer.timeout"),
		},
		Email: EmailConfig{
			APIURL:      v.GetString("email.api_url"),
			APIKey:      v.GetString("email.api_key"),
			SenderEmail: v.GetString("email.sender_email"),
			SenderName:  v.GetString("email.sender_name"),
			Timeout:     v.GetDuration("email.timeout"),
		},
		Renderer: RendererConfig{
			RemoteURL: v.GetString("renderer.remote_url"),
			Timeout:   v.GetDuration("renderer.timeout"),
			NoSandbox: v.GetBool("renderer.no_sandbox"),
		},
		DevOutput: DevOutputConfig{
			Enabled: v.GetBool("dev_output.enabled"),
			Dir:     v.GetString("dev_output.dir"),
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
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "docs-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
	// Rendering plus two backend round trips must fit in the write timeout
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 2 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 20 << 20 // 20MB
	}
	if cfg.RemoteFile.BasePath == "" {
		cfg.RemoteFile.BasePath = "/data/documents"
	}
	if cfg.RemoteFile.SessionName == "" {
		cfg.RemoteFile.SessionName = "FileStation"
	}
	if cfg.RemoteFile.ConnectTimeout == 0 {
		cfg.RemoteFile.ConnectTimeout = 30 * time.Second
	}
	if cfg.RemoteFile.MaxDuration == 0 {
		cfg.RemoteFile.MaxDuration = 50 * time.Second
	}
	if cfg.RemoteFile.SessionTTL == 0 {
		cfg.RemoteFile.SessionTTL = 15 * time.Minute
	}
	if cfg.RemoteFile.MovePollInterval == 0 {
		cfg.RemoteFile.MovePollInterval = 500 * time.Millisecond
	}
	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = "eu-west-1"
	}
	if cfg.Printer.Timeout == 0 {
		cfg.Printer.Timeout = 30 * time.Second
	}
	if cfg.Email.APIURL == "" {
		cfg.Email.APIURL = "https://api.brevo.com/v3/smtp/email"
	}
	if cfg.Email.SenderName == "" {
		cfg.Email.SenderName = "Documents"
	}
	if cfg.Email.Timeout == 0 {
		cfg.Email.Timeout = 30 * time.Second
	}
	if cfg.Renderer.Timeout == 0 {
		cfg.Renderer.Timeout = 30 * time.Second
	}
	if cfg.DevOutput.Dir == "" {
		cfg.DevOutput.Dir = "./pdf"
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if !c.Storage.RemoteEnabled && !c.Storage.ObjectStoreEnabled {
		return fmt.Errorf("at least one of storage.remote_enabled and storage.object_store_enabled must be true")
	}
	if c.Storage.FallbackEnabled && !c.Storage.ObjectStoreEnabled {
		return fmt.Errorf("storage.fallback_enabled requires storage.object_store_enabled")
	}

	if c.Storage.RemoteEnabled {
		if c.RemoteFile.BaseURL == "" {
			return fmt.Errorf("remote_file.base_url is required when storage.remote_enabled is true")
		}
		u, err := url.Parse(c.RemoteFile.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("remote_file.base_url must be an absolute http(s) URL, got %q", c.RemoteFile.BaseURL)
		}
		if c.RemoteFile.Username == "" || c.RemoteFile.Password == "" {
			return fmt.Errorf("remote_file.username and remote_file.password are required when storage.remote_enabled is true")
		}
		if !strings.HasPrefix(c.RemoteFile.BasePath, "/") {
			return fmt.Errorf("remote_file.base_path must be absolute, got %q", c.RemoteFile.BasePath)
		}
	}

	if c.Storage.ObjectStoreEnabled && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object_store.bucket is required when storage.object_store_enabled is true")
	}

	if c.RemoteFile.SessionTTL < 0 {
		return fmt.Errorf("remote_file.session_ttl cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.App.APIKey == "" {
			return fmt.Errorf("app.api_key is required in production")
		}
		if len(c.App.APIKey) < 24 {
			return fmt.Errorf("app.api_key must be at least 24 characters in production")
		}
		if c.RemoteFile.InsecureSkipVerify {
			return fmt.Errorf("remote_file.insecure_skip_verify must be false in production (use remote_file.ca_cert_file)")
		}
		if c.DevOutput.Enabled {
			return fmt.Errorf("dev_output.enabled must be false in production")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}
