package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ANIPINK"

type AuthConfig struct {
	JWTSecret   string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"anipink"`
	JWTDuration time.Duration `envconfig:"JWT_TTL" default:"24h"`
}

type ServerConfig struct {
	Addr      string `envconfig:"HTTP_ADDR" default:":8080"`
	SyncAddr  string `envconfig:"SYNC_ADDR" default:":7070"`
	StaticDir string `envconfig:"STATIC_DIR" default:"dist"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	// Status given to new accounts; "pending_activation" turns on admin approval.
	DefaultAccountStatus string `envconfig:"DEFAULT_ACCOUNT_STATUS" default:"active"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisChannel  string `envconfig:"REDIS_CHANNEL" default:"anipink:changes"`
}

type AIConfig struct {
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiBaseURL string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	Timeout       time.Duration `envconfig:"GEMINI_TIMEOUT" default:"30s"`
}

type ClientConfig struct {
	APIURL    string `envconfig:"API_URL" default:"http://localhost:8080"`
	TokenPath string `envconfig:"TOKEN_PATH"`
	GuestDir  string `envconfig:"GUEST_DIR"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
}

// loadDotEnv reads .env once per process; a missing file is fine.
func loadDotEnv() {
	_ = godotenv.Load()
}

func LoadAuthConfig() (AuthConfig, error) {
	loadDotEnv()
	var c AuthConfig
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return c, fmt.Errorf("load auth config: %w", err)
	}
	if c.JWTDuration <= 0 {
		c.JWTDuration = 24 * time.Hour
	}
	return c, nil
}

func LoadServerConfig() (ServerConfig, error) {
	loadDotEnv()
	var c ServerConfig
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return c, fmt.Errorf("load server config: %w", err)
	}
	return c, nil
}

func LoadAIConfig() (AIConfig, error) {
	loadDotEnv()
	var c AIConfig
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return c, fmt.Errorf("load ai config: %w", err)
	}
	return c, nil
}

func LoadClientConfig() (ClientConfig, error) {
	loadDotEnv()
	var c ClientConfig
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return c, fmt.Errorf("load client config: %w", err)
	}
	if c.TokenPath == "" {
		c.TokenPath = filepath.Join(DataDir(), "token.json")
	}
	if c.GuestDir == "" {
		c.GuestDir = filepath.Join(DataDir(), "guest")
	}
	return c, nil
}

// DataDir is ~/.anipink, or the working directory when home is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".anipink")
}
