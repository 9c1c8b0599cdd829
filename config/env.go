package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is read from the environment (and .env via godotenv in main).
type Config struct {
	Port   int    `env:"PORT,default=8080"`
	Env    string `env:"GO_ENV,default=development"`
	Domain string `env:"DOMAIN"`

	StoreBackend  string `env:"STORE_BACKEND,default=mongo"`
	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE,default=civicbounty"`
	DatabaseURL   string `env:"DATABASE_URL"`

	RedisAddress     string `env:"REDIS_ADDRESS"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	IssueLimitPrefix string `env:"REDIS_QUEUE_FOR_ISSUE_LIMIT,default=issue-limit"`
	IssueDailyLimit  int    `env:"ISSUE_DAILY_LIMIT,default=20"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=72h"`

	UploadDir  string `env:"UPLOAD_DIR,default=uploads"`
	CORSOrigin string `env:"CORS_ORIGIN,default=http://localhost:3000"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load decodes the environment into a Config and validates it.
func Load() (Config, error) {
	cfg, err := decode()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStore is Load for tools that only open the store.
func LoadStore() (Config, error) {
	cfg, err := decode()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validateStore(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the keys required by the server and the selected backend.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if c.IssueDailyLimit < 1 {
		return errors.New("ISSUE_DAILY_LIMIT must be positive")
	}
	return nil
}

func (c Config) validateStore() error {
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongo backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
