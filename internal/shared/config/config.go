package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	AppName         string
	AppVersion      string

	APIBaseURL        string
	ImagesAPIURL      string
	BypassHeader      string
	BypassHeaderValue string

	DownloadTimeout    time.Duration
	UploadTimeout      time.Duration
	CoverLetterTimeout time.Duration
	HealthTimeout      time.Duration
	MaxUploadBytes     int64

	UpstreamOAuthClientID     string
	UpstreamOAuthClientSecret string
	UpstreamOAuthTokenURL     string
	UpstreamOAuthScopes       []string

	MaxRasterPages int
	RasterScale    float64
	MobilePreview  string

	PaymentAmount   int
	PaymentCurrency string
	PaymentDelay    time.Duration

	ViewTTL time.Duration

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	S3Endpoint      string
	S3AccessKeyID   string
	S3SecretKey     string
	DatabaseURL     string
}

const (
	defaultMaxUploadBytes = 30 << 20

	MobilePreviewServer = "server"
	MobilePreviewClient = "client"
)

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	apiBase := strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/")

	if env == "production" && os.Getenv("API_BASE_URL") == "" {
		log.Printf("API_BASE_URL not explicitly set in production; using %s", apiBase)
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		AppName:         getEnv("APP_NAME", "CValue"),
		AppVersion:      getEnv("APP_VERSION", "1.0.0"),

		APIBaseURL:        apiBase,
		ImagesAPIURL:      strings.TrimRight(getEnv("IMAGES_API_URL", apiBase), "/"),
		BypassHeader:      strings.TrimSpace(getEnv("BYPASS_HEADER", "")),
		BypassHeaderValue: getEnv("BYPASS_HEADER_VALUE", "true"),

		DownloadTimeout:    getDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		UploadTimeout:      getDuration("UPLOAD_TIMEOUT", 60*time.Second),
		CoverLetterTimeout: getDuration("COVER_LETTER_TIMEOUT", 120*time.Second),
		HealthTimeout:      getDuration("HEALTH_TIMEOUT", 10*time.Second),
		MaxUploadBytes:     getInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),

		UpstreamOAuthClientID:     getEnv("UPSTREAM_OAUTH_CLIENT_ID", ""),
		UpstreamOAuthClientSecret: getEnv("UPSTREAM_OAUTH_CLIENT_SECRET", ""),
		UpstreamOAuthTokenURL:     getEnv("UPSTREAM_OAUTH_TOKEN_URL", ""),
		UpstreamOAuthScopes:       splitAndTrim(getEnv("UPSTREAM_OAUTH_SCOPES", "")),

		MaxRasterPages: int(getInt64("MAX_RASTER_PAGES", 10)),
		RasterScale:    getFloat("RASTER_SCALE", 1.5),
		MobilePreview:  normalizeMobilePreview(getEnv("MOBILE_PREVIEW", MobilePreviewServer)),

		PaymentAmount:   int(getInt64("PAYMENT_AMOUNT", 10)),
		PaymentCurrency: getEnv("PAYMENT_CURRENCY", "USD"),
		PaymentDelay:    getDuration("PAYMENT_DELAY", 2*time.Second),

		ViewTTL: getDuration("VIEW_TTL", 30*time.Minute),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		S3Endpoint:      strings.TrimRight(getEnv("S3_ENDPOINT", ""), "/"),
		S3AccessKeyID:   getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q; using %s", key, raw, def)
		return def
	}
	return val
}

func getInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q; using %d", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid float %q; using %g", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeMobilePreview(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case MobilePreviewClient:
		return MobilePreviewClient
	default:
		return MobilePreviewServer
	}
}
