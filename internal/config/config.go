package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backend selectors.
const (
	StoreMemory = "memory"
	StoreDisk   = "disk"
	StoreCache  = "cache"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	K8sNamespace   string
	KubeConfigPath string
	RunnerImage    string
	SubmitTimeout  time.Duration

	CallbackBaseURL string
	PunitsCeiling   int64

	AuthJWTSecret string

	OTLPEndpoint string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "cubehub"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		StoreBackend:  normalizeBackend(getenv("STORE_BACKEND", StoreMemory)),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),
		SQLitePath:    getenv("SQLITE_PATH", "cubehub.db"),

		K8sNamespace:   getenv("CUBEGEN_NAMESPACE", "cubegen"),
		KubeConfigPath: getenv("KUBECONFIG", ""),
		RunnerImage:    getenv("CUBEGEN_RUNNER_IMAGE", "cubehub/cubegen-runner:latest"),
		SubmitTimeout:  getenvDuration("CUBEGEN_SUBMIT_TIMEOUT", 30*time.Second),

		CallbackBaseURL: strings.TrimRight(getenv("CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
		PunitsCeiling:   getenvInt64("PUNITS_CEILING", 10_000_000),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
	}
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreCache, "redis":
		return StoreCache
	case StoreDisk, "sqlite":
		return StoreDisk
	default:
		return StoreMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
