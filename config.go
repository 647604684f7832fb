package storefront

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"

	"github.com/eringen/storefront/content"
	"github.com/eringen/storefront/metrics"
)

const (
	BackendPlatform = "platform"
	BackendSQLite   = "sqlite"
)

// SiteConfig holds all configuration for a storefront site.
type SiteConfig struct {
	Name string `mapstructure:"name"`                      // Site name (default "Storefront")
	URL  string `mapstructure:"url" validate:"required,url"` // Canonical URL (default "http://localhost:3000")
	Addr string `mapstructure:"addr" validate:"required"`    // Listen address (default ":3000")

	DatabasePath string `mapstructure:"database_path" validate:"required"` // SQLite path (default "data/storefront.db")
	StoreBackend string `mapstructure:"store_backend" validate:"oneof=platform sqlite"`
	ContentKind  string `mapstructure:"content_kind" validate:"required"`

	AdminPassword string `mapstructure:"admin_password"` // Required to serve
	SessionSecret string `mapstructure:"session_secret"` // Required to serve
	CookieSecure  bool   `mapstructure:"cookie_secure"`

	Platform PlatformConfig `mapstructure:"platform"`
	Resolver PollConfig     `mapstructure:"resolver"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Log      LogConfig      `mapstructure:"log"`
}

type PlatformConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	Token             string        `mapstructure:"token"`
	APIVersion        string        `mapstructure:"api_version"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// PollConfig is a fixed-interval polling budget.
type PollConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type UploadConfig struct {
	PollConfig    `mapstructure:",squash"`
	MaxSize       int64 `mapstructure:"max_size" validate:"gt=0"`
	MaxImageWidth int   `mapstructure:"max_image_width" validate:"gt=0"`
	JPEGQuality   int   `mapstructure:"jpeg_quality" validate:"gte=1,lte=100"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Storefront"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/storefront.db"
	}
	if c.StoreBackend == "" {
		c.StoreBackend = BackendPlatform
	}
	if c.ContentKind == "" {
		c.ContentKind = content.DefaultKind
	}
	if c.Platform.APIVersion == "" {
		c.Platform.APIVersion = "2024-10"
	}
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = 20 * time.Second
	}
	if c.Resolver.MaxAttempts == 0 {
		c.Resolver.MaxAttempts = 4
	}
	if c.Resolver.Interval == 0 {
		c.Resolver.Interval = 250 * time.Millisecond
	}
	if c.Upload.MaxAttempts == 0 {
		c.Upload.MaxAttempts = 10
	}
	if c.Upload.Interval == 0 {
		c.Upload.Interval = time.Second
	}
	if c.Upload.MaxSize == 0 {
		c.Upload.MaxSize = 20 << 20
	}
	if c.Upload.MaxImageWidth == 0 {
		c.Upload.MaxImageWidth = 1600
	}
	if c.Upload.JPEGQuality == 0 {
		c.Upload.JPEGQuality = 85
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func (c *SiteConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	if c.StoreBackend == BackendPlatform && (c.Platform.BaseURL == "" || c.Platform.Token == "") {
		return errors.New("platform: base_url and token are required for the platform store backend")
	}
	return nil
}

// LoadConfig reads an optional YAML file at path and STOREFRONT_* environment
// variables, in that order of precedence (environment wins). Missing values
// fall back to the defaults and the result is validated.
func LoadConfig(path string) (SiteConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	var defaults SiteConfig
	defaults.setDefaults()
	registerDefaults(v, defaults)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return SiteConfig{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg SiteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func registerDefaults(v *viper.Viper, d SiteConfig) {
	v.SetDefault("name", d.Name)
	v.SetDefault("url", d.URL)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("store_backend", d.StoreBackend)
	v.SetDefault("content_kind", d.ContentKind)
	v.SetDefault("admin_password", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("cookie_secure", false)
	v.SetDefault("platform.base_url", "")
	v.SetDefault("platform.token", "")
	v.SetDefault("platform.api_version", d.Platform.APIVersion)
	v.SetDefault("platform.requests_per_second", 0)
	v.SetDefault("platform.burst", 0)
	v.SetDefault("platform.timeout", d.Platform.Timeout)
	v.SetDefault("resolver.max_attempts", d.Resolver.MaxAttempts)
	v.SetDefault("resolver.interval", d.Resolver.Interval)
	v.SetDefault("upload.max_attempts", d.Upload.MaxAttempts)
	v.SetDefault("upload.interval", d.Upload.Interval)
	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.max_image_width", d.Upload.MaxImageWidth)
	v.SetDefault("upload.jpeg_quality", d.Upload.JPEGQuality)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger replaces the logger built from SiteConfig.Log.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithStore uses s for page documents instead of the configured backend.
func WithStore(s content.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithAssetLocator sets the locator the resolver polls.
func WithAssetLocator(l content.AssetLocator) Option {
	return func(a *App) {
		a.locator = l
	}
}

// WithUploader sets the uploader behind POST /assets.
func WithUploader(u AssetUploader) Option {
	return func(a *App) {
		a.Uploader = u
	}
}

// WithDiagnostics sets where persistence failures are recorded.
func WithDiagnostics(d DiagnosticsLog) Option {
	return func(a *App) {
		a.Diagnostics = d
	}
}

// WithMetrics sets the Prometheus collectors. Without it App builds its own.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}

// WithAuthorizer replaces the admin-session check guarding write routes.
func WithAuthorizer(fn func(echo.Context) bool) Option {
	return func(a *App) {
		a.authorize = fn
	}
}
