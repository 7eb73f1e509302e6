package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr           string        `mapstructure:"HTTP_ADDR"`
	DatabaseDSN        string        `mapstructure:"DATABASE_DSN"`
	RunMigrations      bool          `mapstructure:"RUN_MIGRATIONS"`
	CartStore          string        `mapstructure:"CART_STORE"`
	CartMaxAttempts    int           `mapstructure:"CART_MAX_ATTEMPTS"`
	CartCacheTTL       time.Duration `mapstructure:"CART_CACHE_TTL"`
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int           `mapstructure:"REDIS_DB"`
	RabbitMQURL        string        `mapstructure:"RABBITMQ_URL"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	JWTTTL             time.Duration `mapstructure:"JWT_TTL"`
	AllowRoleSelection bool          `mapstructure:"AUTH_ALLOW_ROLE_SELECTION"`
	ProductCacheSize   int           `mapstructure:"PRODUCT_CACHE_SIZE"`
	CORSAllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogPretty          bool          `mapstructure:"LOG_PRETTY"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                 ":8080",
	"DATABASE_DSN":              "",
	"RUN_MIGRATIONS":            true,
	"CART_STORE":                StorePostgres,
	"CART_MAX_ATTEMPTS":         3,
	"CART_CACHE_TTL":            "5m",
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"RABBITMQ_URL":              "",
	"JWT_SECRET":                "",
	"JWT_TTL":                   "1h",
	"AUTH_ALLOW_ROLE_SELECTION": false,
	"PRODUCT_CACHE_SIZE":        256,
	"CORS_ALLOWED_ORIGINS":      "*",
	"LOG_LEVEL":                 "info",
	"LOG_PRETTY":                false,
}

// Load reads an optional .env file into the process environment, then
// resolves every key from the environment over the defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.CartStore != StorePostgres && c.CartStore != StoreMemory {
		errs = append(errs, fmt.Errorf("CART_STORE must be %q or %q", StorePostgres, StoreMemory))
	}
	if c.CartMaxAttempts < 1 {
		errs = append(errs, errors.New("CART_MAX_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
