// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendFS     = "fs"
	BackendMemory = "memory"
)

// Search modes selectable through SEARCH_MODE.
const (
	SearchScoped   = "scoped"
	SearchDiscover = "discover"
)

// Lock backends selectable through LOCK_BACKEND.
const (
	LockMemory   = "memory"
	LockPostgres = "postgres"
	LockRedis    = "redis"
)

// Config holds all runtime configuration for the service.
type Config struct {
	AppEnv      string
	Port        string
	JWTSecret   string // empty disables bearer auth on /api/v1
	DatabaseURL string // optional; enables the claim ledger and the postgres lock

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Object storage
	StorageBackend     string
	StorageBucket      string
	StorageEndpoint    string // minio host:port, or custom S3 endpoint URL
	StorageAccessKey   string
	StorageSecretKey   string
	StorageRegion      string
	StorageUseSSL      bool
	StoragePublicBase  string // browser-accessible base URL, e.g. "http://localhost:9000/gbp-images"
	StoragePublicACL   bool   // set object ACLs to public-read on upload (S3, GCS)
	StorageLocalPath   string // fs backend root directory
	S3Endpoint         string // optional custom endpoint (LocalStack, R2); enables path-style addressing
	S3AccessKey        string // optional; default AWS credential chain when empty
	S3SecretKey        string
	GCSCredentialsFile string
	GCSProject         string

	// Tiers and asset state
	ClientTierRoot      string
	AITierRoot          string
	UsedMarker          string
	MarkGeneratedAsUsed bool
	SearchMode          string
	UploadConcurrency   int
	PromptTemplateFile  string // optional text/template overriding the built-in prompt

	// Image generation
	GeneratorProvider      string // grok | openai
	GeneratorAPIKey        string
	GeneratorBaseURL       string // empty selects the provider default
	GeneratorModel         string // empty selects the provider default
	GeneratorTimeout       time.Duration
	DownloadTimeout        time.Duration
	GeneratorMaxRetries    int
	GeneratorMaxInFlight   int
	GeneratorRatePerMinute int
	CropHeight             int
	DownloadDir            string

	// Caption prompt enhancement (optional)
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Business profile data (optional)
	ProfileSourceURL string
	ProfileCacheTTL  time.Duration

	// Claim lock
	LockBackend   string
	LockTTL       time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 3*time.Minute),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),

		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", BackendMinio)),
		StorageBucket:      getEnv("STORAGE_BUCKET", "gbp-images"),
		StorageEndpoint:    getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:   getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey:   getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageRegion:      getEnv("STORAGE_REGION", "us-east-1"),
		StorageUseSSL:      getEnvBool("STORAGE_USE_SSL", false),
		StoragePublicBase:  os.Getenv("STORAGE_PUBLIC_BASE"),
		StoragePublicACL:   getEnvBool("STORAGE_PUBLIC_ACL", false),
		StorageLocalPath:   getEnv("STORAGE_LOCAL_PATH", "./storage"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		GCSProject:         os.Getenv("GCS_PROJECT"),

		ClientTierRoot:      getEnv("CLIENT_TIER_ROOT", "CLIENT_IMAGES/"),
		AITierRoot:          getEnv("AI_TIER_ROOT", "AI_IMAGES/"),
		UsedMarker:          getEnv("USED_MARKER", "_used"),
		MarkGeneratedAsUsed: getEnvBool("MARK_GENERATED_AS_USED", true),
		SearchMode:          strings.ToLower(getEnv("SEARCH_MODE", SearchScoped)),
		UploadConcurrency:   getEnvInt("UPLOAD_CONCURRENCY", 4),
		PromptTemplateFile:  os.Getenv("PROMPT_TEMPLATE_FILE"),

		GeneratorProvider:      strings.ToLower(getEnv("GENERATOR_PROVIDER", "grok")),
		GeneratorAPIKey:        os.Getenv("GENERATOR_API_KEY"),
		GeneratorBaseURL:       os.Getenv("GENERATOR_BASE_URL"),
		GeneratorModel:         os.Getenv("GENERATOR_MODEL"),
		GeneratorTimeout:       getEnvDuration("GENERATOR_TIMEOUT", 90*time.Second),
		DownloadTimeout:        getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		GeneratorMaxRetries:    getEnvInt("GENERATOR_MAX_RETRIES", 3),
		GeneratorMaxInFlight:   getEnvInt("GENERATOR_MAX_IN_FLIGHT", 4),
		GeneratorRatePerMinute: getEnvInt("GENERATOR_RATE_PER_MINUTE", 30),
		CropHeight:             getEnvInt("CROP_HEIGHT", 100),
		DownloadDir:            getEnv("DOWNLOAD_DIR", "./downloads/images"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		ProfileSourceURL: os.Getenv("PROFILE_SOURCE_URL"),
		ProfileCacheTTL:  getEnvDuration("PROFILE_CACHE_TTL", 30*time.Minute),

		LockBackend:   strings.ToLower(getEnv("LOCK_BACKEND", LockMemory)),
		LockTTL:       getEnvDuration("LOCK_TTL", 30*time.Second),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

// Validate reports configuration that cannot produce a working service.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case BackendMinio, BackendS3, BackendGCS, BackendFS, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q is not one of minio, s3, gcs, fs, memory", c.StorageBackend))
	}
	if c.StorageBackend != BackendFS && c.StorageBackend != BackendMemory && c.StorageBucket == "" {
		errs = append(errs, errors.New("STORAGE_BUCKET is required"))
	}
	if c.StorageBackend == BackendMinio && c.StorageEndpoint == "" {
		errs = append(errs, errors.New("STORAGE_ENDPOINT is required for the minio backend"))
	}
	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY must be set together"))
	}

	switch c.SearchMode {
	case SearchScoped, SearchDiscover:
	default:
		errs = append(errs, fmt.Errorf("SEARCH_MODE %q is not one of scoped, discover", c.SearchMode))
	}

	switch c.LockBackend {
	case LockMemory, LockRedis:
	case LockPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("LOCK_BACKEND=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("LOCK_BACKEND %q is not one of memory, postgres, redis", c.LockBackend))
	}

	switch c.GeneratorProvider {
	case "grok", "openai":
	default:
		errs = append(errs, fmt.Errorf("GENERATOR_PROVIDER %q is not one of grok, openai", c.GeneratorProvider))
	}

	if c.ClientTierRoot == "" || c.AITierRoot == "" {
		errs = append(errs, errors.New("tier roots must not be empty"))
	} else if c.ClientTierRoot == c.AITierRoot {
		errs = append(errs, errors.New("CLIENT_TIER_ROOT and AI_TIER_ROOT must differ"))
	}
	if c.UsedMarker == "" {
		errs = append(errs, errors.New("USED_MARKER must not be empty"))
	}
	if c.CropHeight < 0 {
		errs = append(errs, errors.New("CROP_HEIGHT must not be negative"))
	}

	return errors.Join(errs...)
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
