// Package storefront serves merchant-authored page documents. Pages are
// ordered lists of typed sections whose settings may reference media assets
// by opaque id; on read those references are resolved to delivery URLs
// through the commerce platform, and on write documents are persisted as
// platform metaobjects (or in a local SQLite store).
//
// Hosts provide their own templ components via the ViewFuncs struct, and
// storefront handles the content API, asset uploads, middleware and storage.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/storefront/content"
	"github.com/eringen/storefront/metrics"
	"github.com/eringen/storefront/platform"
)

// ViewFuncs holds host-provided templ components used to render pages and
// error screens. Any of them may be nil; the App then falls back to JSON or
// plain-text responses.
type ViewFuncs struct {
	Page        func(handle string, doc content.PageContent, siteURL string) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// AssetUploader turns raw bytes into a platform asset.
type AssetUploader interface {
	Upload(ctx context.Context, data []byte, filename, mimeType string) (platform.Asset, error)
}

// App is the central storefront application. It wires the platform client,
// document store, resolver, uploader and handlers together.
type App struct {
	Config      SiteConfig
	Echo        *echo.Echo
	Views       ViewFuncs
	Logger      *slog.Logger
	Gateway     *content.Gateway
	Resolver    *content.Resolver
	Uploader    AssetUploader
	Diagnostics DiagnosticsLog
	Metrics     *metrics.Metrics

	store        content.Store
	locator      content.AssetLocator
	client       *platform.Client
	local        *Store
	asyncDiag    *AsyncDiagnostics
	stopPruner   func()
	authorize    func(echo.Context) bool
	loginLimiter *LoginLimiter
	validator    *documentValidator
	customRoutes []func(*App)
	initialized  bool
}

// New creates a storefront App with the given configuration and views.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		authorize: IsAdmin,
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = NewLogger(cfg.Log)
	}
	return a
}

// Init builds every collaborator not supplied through an Option, then
// installs middleware and routes. Start calls it; tests may call it directly
// and drive a.Echo with httptest.
func (a *App) Init() error {
	if a.initialized {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return errors.New("storefront: SessionSecret is required")
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}

	needsLocal := a.Diagnostics == nil || (a.store == nil && a.Config.StoreBackend == BackendSQLite)
	if needsLocal {
		local, err := NewStore(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("storefront: init store: %w", err)
		}
		a.local = local
	}

	needsPlatform := a.locator == nil || a.Uploader == nil || (a.store == nil && a.Config.StoreBackend == BackendPlatform)
	if needsPlatform {
		if a.Config.Platform.BaseURL == "" || a.Config.Platform.Token == "" {
			return errors.New("storefront: platform base URL and token are required")
		}
		a.client = platform.NewClient(platform.ClientOptions{
			BaseURL:           a.Config.Platform.BaseURL,
			APIVersion:        a.Config.Platform.APIVersion,
			TokenProvider:     platform.StaticToken(a.Config.Platform.Token),
			HTTPClient:        &http.Client{Timeout: a.Config.Platform.Timeout},
			UserAgent:         a.Config.Name,
			RequestsPerSecond: a.Config.Platform.RequestsPerSecond,
			Burst:             a.Config.Platform.Burst,
			Observer:          a.Metrics,
			Logger:            a.Logger,
		})
	}

	if a.store == nil {
		if a.Config.StoreBackend == BackendSQLite {
			a.store = a.local
		} else {
			a.store = platform.NewContentStore(a.client)
		}
	}
	if a.locator == nil {
		a.locator = a.client
	}
	if a.Uploader == nil {
		a.Uploader = platform.NewUploader(a.client, platform.UploaderOptions{
			MaxAttempts: a.Config.Upload.MaxAttempts,
			Interval:    a.Config.Upload.Interval,
			Logger:      a.Logger,
			Observer:    a.Metrics,
		})
	}
	if a.Diagnostics == nil {
		a.asyncDiag = NewAsyncDiagnostics(a.local, 64, a.Logger)
		a.Diagnostics = a.asyncDiag
		a.stopPruner = a.local.StartDiagnosticsPruner(30*24*time.Hour, 24*time.Hour, a.Logger)
	}

	a.Gateway = content.NewGateway(a.store, a.Config.ContentKind, a.Logger)
	a.Resolver = content.NewResolver(a.locator, content.ResolverOptions{
		MaxAttempts: a.Config.Resolver.MaxAttempts,
		Interval:    a.Config.Resolver.Interval,
		Logger:      a.Logger,
		Observer:    a.Metrics,
	})

	v, err := newDocumentValidator()
	if err != nil {
		return fmt.Errorf("storefront: compile content schema: %w", err)
	}
	a.validator = v
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

// Start initializes the App and serves until the server is shut down.
func (a *App) Start() error {
	if a.Config.AdminPassword == "" {
		return errors.New("storefront: AdminPassword is required")
	}
	if err := a.Init(); err != nil {
		return err
	}
	a.Logger.Info("storefront listening", "addr", a.Config.Addr, "backend", a.Config.StoreBackend)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/health", handleHealth)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	e.GET("/sitemap.xml", a.handleSitemap)

	e.GET("/content", a.handleGetContent)
	e.GET("/content/template", handleContentTemplate)
	e.POST("/content", a.handleSaveContent, a.requireAuthorized)
	e.DELETE("/content", a.handleDeleteContent, a.requireAuthorized)
	e.POST("/assets", a.handleAssetUpload, a.requireAuthorized)

	e.GET("/pages/:handle", a.handlePage)

	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopPruner != nil {
		a.stopPruner()
	}
	if a.asyncDiag != nil {
		a.asyncDiag.Close()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.local != nil {
		return a.local.Close()
	}
	return nil
}
