package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/blobs"
	"cvalue-web/internal/orders"
	"cvalue-web/internal/payment"
	"cvalue-web/internal/preferences"
	"cvalue-web/internal/preview"
	"cvalue-web/internal/render"
	"cvalue-web/internal/services/health"
	"cvalue-web/internal/shared/config"
	"cvalue-web/internal/shared/server"
	"cvalue-web/internal/shared/server/middleware"
	"cvalue-web/internal/shared/storage/db"
	"cvalue-web/internal/shared/storage/object"
	localstore "cvalue-web/internal/shared/storage/object/local"
	s3store "cvalue-web/internal/shared/storage/object/s3"
	"cvalue-web/internal/shared/telemetry"
	"cvalue-web/internal/transport"
)

// App holds shared dependencies and the router built from them.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Upstream *transport.Client
	Blobs    *blobs.Manager
	Registry *preview.Registry

	OrdersService      *orders.Service
	PreferencesService *preferences.Service
	HealthService      *health.Service
}

// Build prepares dependencies and wires routes.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	upstream := buildUpstream(ctx, cfg)
	blobManager := blobs.NewManager(store, blobs.DefaultBasePath)

	renderer := &render.Renderer{
		Images:     upstream,
		Rasterizer: render.NewLocalRasterizer(cfg.MaxRasterPages, cfg.RasterScale),
		Strategy:   render.Strategy(cfg.MobilePreview),
	}

	registry := preview.NewRegistry(preview.Deps{
		Downloader:   upstream,
		Renderer:     renderer,
		Blobs:        blobManager,
		Authorizer:   payment.SimulatedAuthorizer{Delay: cfg.PaymentDelay},
		Amount:       cfg.PaymentAmount,
		Currency:     cfg.PaymentCurrency,
		DownloadPath: preview.DownloadPath(server.APIBasePath),
	}, cfg.ViewTTL)

	var prefRepo preferences.Repo
	if sqlDB != nil {
		prefRepo = &preferences.PGRepo{DB: sqlDB}
	} else {
		prefRepo = preferences.NewMemoryRepo()
	}

	app := &App{
		Config:             cfg,
		DB:                 sqlDB,
		Store:              store,
		Upstream:           upstream,
		Blobs:              blobManager,
		Registry:           registry,
		OrdersService:      orders.NewService(upstream, upstream.MaxUploadBytes()),
		PreferencesService: preferences.NewService(prefRepo),
		HealthService:      health.NewService(upstream),
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:             cfg,
		OrderHandler:       orders.NewHandler(app.OrdersService, upstream.MaxUploadBytes()),
		PreviewHandler:     preview.NewHandler(registry),
		BlobHandler:        blobs.NewHandler(blobManager),
		PreferencesHandler: preferences.NewHandler(app.PreferencesService),
		HealthHandler:      health.NewHandler(app.HealthService),
		RateLimiter:        middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// Close releases every live preview and the database pool.
func (a *App) Close(ctx context.Context) error {
	err := a.Registry.CloseAll(ctx)
	if a.DB != nil {
		if cerr := a.DB.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			KMSKeyID:        cfg.SSEKMSKeyID,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildUpstream(ctx context.Context, cfg config.Config) *transport.Client {
	oauth := transport.OAuthConfig{
		ClientID:     cfg.UpstreamOAuthClientID,
		ClientSecret: cfg.UpstreamOAuthClientSecret,
		TokenURL:     cfg.UpstreamOAuthTokenURL,
		Scopes:       cfg.UpstreamOAuthScopes,
	}
	return transport.New(transport.Options{
		BaseURL:            cfg.APIBaseURL,
		ImagesURL:          cfg.ImagesAPIURL,
		BypassHeader:       cfg.BypassHeader,
		BypassHeaderValue:  cfg.BypassHeaderValue,
		DownloadTimeout:    cfg.DownloadTimeout,
		UploadTimeout:      cfg.UploadTimeout,
		CoverLetterTimeout: cfg.CoverLetterTimeout,
		HealthTimeout:      cfg.HealthTimeout,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		HTTPClient:         transport.NewHTTPClient(ctx, oauth),
	})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
