package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	AuthMode         string        `mapstructure:"AUTH_MODE"`
	StoreBackend     string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	JWTSigningKey    string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	TokenTTL         time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RecordsPageSize  int           `mapstructure:"RECORDS_PAGE_SIZE"`
	PatientsPageSize int           `mapstructure:"PATIENTS_PAGE_SIZE"`
	AccountsPageSize int           `mapstructure:"ACCOUNTS_PAGE_SIZE"`
	SearchDebounce   time.Duration `mapstructure:"SEARCH_DEBOUNCE"`
	MaxUploadSize    string        `mapstructure:"MAX_UPLOAD_SIZE"`
	ExportLockTTL    time.Duration `mapstructure:"EXPORT_LOCK_TTL"`
	SeedDemoData     bool          `mapstructure:"SEED_DEMO_DATA"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect from ENV
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("DB_SCHEMA", "emr")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "hsba-emr")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("RECORDS_PAGE_SIZE", 20)
	v.SetDefault("PATIENTS_PAGE_SIZE", 10)
	v.SetDefault("ACCOUNTS_PAGE_SIZE", 10)
	v.SetDefault("SEARCH_DEBOUNCE", "300ms")
	v.SetDefault("MAX_UPLOAD_SIZE", "20M")
	v.SetDefault("EXPORT_LOCK_TTL", "2m")
	v.SetDefault("SEED_DEMO_DATA", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "AUTH_MODE", "STORE_BACKEND", "DATABASE_URL", "DB_SCHEMA",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "JWT_SIGNING_KEY", "JWT_ISSUER",
		"TOKEN_TTL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"RECORDS_PAGE_SIZE", "PATIENTS_PAGE_SIZE", "ACCOUNTS_PAGE_SIZE",
		"SEARCH_DEBOUNCE", "MAX_UPLOAD_SIZE", "EXPORT_LOCK_TTL", "SEED_DEMO_DATA",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, unauthenticated requests get admin.")
		log.Println("WARNING: Set ENV=production and JWT_SIGNING_KEY before deploying.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development means "development" and
// everything else means "standalone" (tokens issued by /auth/login).
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "standalone"
}

// UsesPostgres reports whether repositories are backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.StoreBackend == BackendPostgres
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.StoreBackend)
	}

	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "standalone" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"standalone\", got %q", mode)
	}
	if mode == "standalone" && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 characters when AUTH_MODE is \"standalone\"")
	}

	for name, size := range map[string]int{
		"RECORDS_PAGE_SIZE":  c.RecordsPageSize,
		"PATIENTS_PAGE_SIZE": c.PatientsPageSize,
		"ACCOUNTS_PAGE_SIZE": c.AccountsPageSize,
	} {
		if size <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, size)
		}
	}

	if c.SearchDebounce < 0 {
		return fmt.Errorf("SEARCH_DEBOUNCE must not be negative")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	return nil
}
