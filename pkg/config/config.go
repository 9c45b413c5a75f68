package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Gemini       GeminiConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MOWI_APP_ENV" required:"true"`
	Port         string `envconfig:"MOWI_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MOWI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MOWI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MOWI_DB_DSN"`
	Driver string `envconfig:"MOWI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MOWI_DB_HOST"`
	LegacyPort     int    `envconfig:"MOWI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MOWI_DB_USER"`
	LegacyPassword string `envconfig:"MOWI_DB_PASSWORD"`
	LegacyName     string `envconfig:"MOWI_DB_NAME"`
	LegacySSLMode  string `envconfig:"MOWI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MOWI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MOWI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MOWI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MOWI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MOWI_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MOWI_REDIS_ADDR"`
	Password     string        `envconfig:"MOWI_REDIS_PASSWORD"`
	DB           int           `envconfig:"MOWI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MOWI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MOWI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MOWI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MOWI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MOWI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MOWI_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"MOWI_STRIPE_API_KEY"`
	Env            string        `envconfig:"MOWI_STRIPE_ENV" default:"test"`
	Currency       string        `envconfig:"MOWI_STRIPE_CURRENCY" default:"usd"`
	RequestTimeout time.Duration `envconfig:"MOWI_STRIPE_REQUEST_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GeminiConfig struct {
	APIKey         string        `envconfig:"MOWI_GEMINI_API_KEY"`
	Model          string        `envconfig:"MOWI_GEMINI_MODEL" default:"gemini-2.0-flash"`
	RequestTimeout time.Duration `envconfig:"MOWI_GEMINI_REQUEST_TIMEOUT" default:"20s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
