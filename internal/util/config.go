package util

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // one-time .env bootstrap
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 7 * 24 * time.Hour
	defaultStorageTimeout = 3 * time.Second

	defaultIdentityTimeout = 5 * time.Second
	defaultFrontendURL     = "https://localhost:3000"

	minSecretLength = 32

	JWTLeeWay = 5 * time.Second
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

type TokenConfig struct {
	JwtSecretKey []byte
	Issuer       string
	Audience     string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// NewTokenConfig is startup-fatal on a missing or short signing secret; a
// weak secret must never degrade into a per-request error.
func NewTokenConfig() *TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if len(secret) < minSecretLength {
		log.Fatalf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	return &TokenConfig{
		JwtSecretKey: []byte(secret),
		Issuer:       getEnvOrDefault("JWT_ISSUER", "authd"),
		Audience:     getEnvOrDefault("JWT_AUDIENCE", "authd-clients"),
		AccessTTL:    parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTTL:   parseDurationOrDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL),
	}
}

// StorageConfig bounds every storage call made by the session service.
type StorageConfig struct {
	Timeout time.Duration
}

func NewStorageConfig() *StorageConfig {
	return &StorageConfig{
		Timeout: parseDurationOrDefault("STORAGE_TIMEOUT", defaultStorageTimeout),
	}
}

// IdentityConfig points at the external identity-management service that
// owns principal credential material.
type IdentityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewIdentityConfig() *IdentityConfig {
	baseURL := os.Getenv("IDENTITY_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL is not set")
	}

	return &IdentityConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("IDENTITY_SERVICE_API_KEY"),
		Timeout: parseDurationOrDefault("IDENTITY_SERVICE_TIMEOUT", defaultIdentityTimeout),
	}
}

// ProviderConfig configures the federated login provider exchange.
type ProviderConfig struct {
	Name        string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	ClientID    string
	ClientScrt  string
	RedirectURL string
	FrontendURL string
}

func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		Name:        getEnvOrDefault("EXTERNAL_PROVIDER_NAME", "google"),
		AuthURL:     os.Getenv("EXTERNAL_PROVIDER_AUTH_URL"),
		TokenURL:    os.Getenv("EXTERNAL_PROVIDER_TOKEN_URL"),
		UserInfoURL: os.Getenv("EXTERNAL_PROVIDER_USERINFO_URL"),
		ClientID:    os.Getenv("EXTERNAL_PROVIDER_CLIENT_ID"),
		ClientScrt:  os.Getenv("EXTERNAL_PROVIDER_CLIENT_SECRET"),
		RedirectURL: os.Getenv("EXTERNAL_PROVIDER_REDIRECT_URL"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", defaultFrontendURL),
	}
}

func GetAlertWebhookURL() string {
	return os.Getenv("REUSE_ALERT_WEBHOOK_URL")
}

func getEnvOrDefault(varName, def string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return def
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}
