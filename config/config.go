package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Server
	Port string
	Env  string // production/development

	// Auth
	AppName         string
	OperatorAddress string
	SessionKeyPEM   string // EC private key, PEM-encoded; ephemeral when empty
	SessionTTL      time.Duration
	RefreshWindow   time.Duration
	NoncesPerMinute int

	// Storage
	PostgresDSN string
	RedisURL    string

	// Chain
	RPCURL          string
	EtherscanAPIURL string
	EtherscanAPIKey string
	ChainID         int64
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		AppName:         getEnv("APP_NAME", "dFortune"),
		OperatorAddress: getEnv("OPERATOR_ADDRESS", ""),
		SessionKeyPEM:   getEnv("SESSION_SIGNING_KEY", ""),
		SessionTTL:      time.Duration(getEnvInt("SESSION_TTL_HOURS", 12)) * time.Hour,
		RefreshWindow:   time.Duration(getEnvInt("SESSION_REFRESH_WINDOW_MINUTES", 15)) * time.Minute,
		NoncesPerMinute: getEnvInt("NONCES_PER_MINUTE", 30),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		RPCURL:          getEnv("RPC_URL", ""),
		EtherscanAPIURL: getEnv("ETHERSCAN_API_URL", "https://api.etherscan.io/api"),
		EtherscanAPIKey: getEnv("ETHERSCAN_API_KEY", ""),
		ChainID:         int64(getEnvInt("CHAIN_ID", 1)),
	}
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// SessionSigningKey parses the configured EC key, or generates an ephemeral
// one when none is set. Ephemeral keys invalidate all sessions on restart.
func (c *Config) SessionSigningKey() (*ecdsa.PrivateKey, error) {
	if c.SessionKeyPEM == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	block, _ := pem.Decode([]byte(c.SessionKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY is not valid PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SESSION_SIGNING_KEY: %w", err)
	}
	return key, nil
}

func (c *Config) Validate(log *zap.Logger) {
	if c.OperatorAddress == "" {
		log.Warn("OPERATOR_ADDRESS is not set, no account will get the admin role")
	}
	if c.SessionKeyPEM == "" {
		log.Warn("SESSION_SIGNING_KEY is not set, sessions will not survive a restart")
	}
	if c.PostgresDSN == "" {
		log.Warn("POSTGRES_DSN is not set, falling back to the in-memory account store")
	}
	if c.RPCURL == "" {
		log.Warn("RPC_URL is not set, dashboard contract reads are disabled")
	}
	if c.Production() && c.EtherscanAPIKey == "" {
		log.Warn("ETHERSCAN_API_KEY is not set")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
