package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string             `yaml:"addr"`
	Env            string             `yaml:"env"`
	LogLevel       string             `yaml:"log_level"`
	JWTSecret      string             `yaml:"jwt_secret"`
	APITimeout     time.Duration      `yaml:"timeout"`
	DatabasePath   string             `yaml:"database_path"`
	MigrateOnStart bool               `yaml:"migrate_on_start"`
	TokenDuration  time.Duration      `yaml:"token_duration"`
	OpenRoleSignup bool               `yaml:"open_role_signup"`
	Store          StoreConfig        `yaml:"store"`
	RateLimit      RateLimitConfig    `yaml:"rate_limit"`
	Jobs           JobsConfig         `yaml:"jobs"`
	Gamification   GamificationConfig `yaml:"gamification"`
	Prediction     PredictionConfig   `yaml:"prediction"`
}

// StoreConfig selects the key-value backend: sqlite (DatabasePath), redis or memory.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	IssuesPerDay int           `yaml:"issues_per_day"`
	Window       time.Duration `yaml:"window"`
}

type JobsConfig struct {
	Enabled     bool `yaml:"enabled"`
	Workers     int  `yaml:"workers"`
	MaxAttempts int  `yaml:"max_attempts"`
}

type GamificationConfig struct {
	Timezone    string `yaml:"timezone"`
	CatalogPath string `yaml:"catalog_path"`
}

type PredictionConfig struct {
	FollowupRule string `yaml:"followup_rule"`
}

// LoadConfig builds the configuration from defaults, CAMPUSFIX_* environment variables
// and, when path is set, a YAML file whose values take precedence.
func LoadConfig(path string) (*Config, error) {
	if getEnv("CAMPUSFIX_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{
		Addr:           getEnv("CAMPUSFIX_ADDR", ":8080"),
		Env:            getEnv("CAMPUSFIX_ENV", "development"),
		LogLevel:       getEnv("CAMPUSFIX_LOG_LEVEL", "info"),
		JWTSecret:      getEnv("CAMPUSFIX_JWT_SECRET", insecureJWTSecret),
		APITimeout:     getEnvDuration("CAMPUSFIX_TIMEOUT", 15*time.Second),
		DatabasePath:   getEnv("CAMPUSFIX_DATABASE_PATH", "campusfix.db"),
		MigrateOnStart: getEnvBool("CAMPUSFIX_MIGRATE_ON_START", true),
		TokenDuration:  getEnvDuration("CAMPUSFIX_TOKEN_DURATION", 1*time.Hour),
		OpenRoleSignup: getEnvBool("CAMPUSFIX_OPEN_ROLE_SIGNUP", false),
		Store: StoreConfig{
			Backend:       getEnv("CAMPUSFIX_STORE_BACKEND", "sqlite"),
			RedisAddr:     getEnv("CAMPUSFIX_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("CAMPUSFIX_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("CAMPUSFIX_REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getEnvBool("CAMPUSFIX_RATE_LIMIT_ENABLED", false),
			IssuesPerDay: getEnvInt("CAMPUSFIX_RATE_LIMIT_ISSUES_PER_DAY", 20),
			Window:       24 * time.Hour,
		},
		Jobs: JobsConfig{
			Enabled:     getEnvBool("CAMPUSFIX_JOBS_ENABLED", true),
			Workers:     getEnvInt("CAMPUSFIX_JOBS_WORKERS", 2),
			MaxAttempts: getEnvInt("CAMPUSFIX_JOBS_MAX_ATTEMPTS", 5),
		},
		Gamification: GamificationConfig{
			Timezone:    getEnv("CAMPUSFIX_TIMEZONE", "UTC"),
			CatalogPath: getEnv("CAMPUSFIX_CATALOG_PATH", ""),
		},
		Prediction: PredictionConfig{
			FollowupRule: getEnv("CAMPUSFIX_FOLLOWUP_RULE", "strict"),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the insecure defaults are acceptable.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || os.Getenv("CAMPUSFIX_ENV") == "development"
}

// Location resolves the gamification time zone used for streak calendar days.
func (c *Config) Location() (*time.Location, error) {
	if c.Gamification.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Gamification.Timezone)
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == insecureJWTSecret && !c.IsDevelopment() {
		errs = append(errs, errors.New("jwt_secret uses the insecure default outside development"))
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = time.Hour
	}

	switch c.Store.Backend {
	case "":
		c.Store.Backend = "sqlite"
	case "sqlite", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want sqlite, redis or memory", c.Store.Backend))
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
	}
	if c.DatabasePath == "" && (c.Store.Backend == "sqlite" || c.Jobs.Enabled) {
		errs = append(errs, errors.New("database_path is required"))
	}

	if c.RateLimit.Enabled && c.RateLimit.IssuesPerDay <= 0 {
		errs = append(errs, errors.New("rate_limit.issues_per_day must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 24 * time.Hour
	}

	if c.Jobs.Enabled && c.Jobs.Workers <= 0 {
		errs = append(errs, errors.New("jobs.workers must be positive"))
	}
	if c.Jobs.MaxAttempts <= 0 {
		c.Jobs.MaxAttempts = 5
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("gamification.timezone: %w", err))
	}

	switch c.Prediction.FollowupRule {
	case "":
		c.Prediction.FollowupRule = "strict"
	case "strict", "legacy":
	default:
		errs = append(errs, fmt.Errorf("prediction.followup_rule %q: want strict or legacy", c.Prediction.FollowupRule))
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
