package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Entitlements  EntitlementsConfig
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
	Env          string `envconfig:"PRODLENS_APP_ENV" required:"true"`
	Port         string `envconfig:"PRODLENS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PRODLENS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PRODLENS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PRODLENS_DB_DSN"`
	Driver string `envconfig:"PRODLENS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PRODLENS_DB_HOST"`
	LegacyPort     int    `envconfig:"PRODLENS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PRODLENS_DB_USER"`
	LegacyPassword string `envconfig:"PRODLENS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PRODLENS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PRODLENS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PRODLENS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PRODLENS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PRODLENS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PRODLENS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PRODLENS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PRODLENS_REDIS_ADDR"`
	Password     string        `envconfig:"PRODLENS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PRODLENS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PRODLENS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRODLENS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRODLENS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRODLENS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRODLENS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PRODLENS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PRODLENS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PRODLENS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PRODLENS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PRODLENS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PRODLENS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PRODLENS_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PRODLENS_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PRODLENS_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PRODLENS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PRODLENS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PRODLENS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PRODLENS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PRODLENS_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PRODLENS_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"PRODLENS_STRIPE_API_KEY"`
	Env        string `envconfig:"PRODLENS_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"PRODLENS_STRIPE_SUCCESS_URL" default:"https://app.prodlens.io/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `envconfig:"PRODLENS_STRIPE_CANCEL_URL" default:"https://app.prodlens.io/checkout/cancelled"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// EntitlementsConfig holds server-defined pricing and access-policy knobs.
// Prices are dollar amounts; a tampered client can never supply its own.
type EntitlementsConfig struct {
	SubscriptionPrice decimal.Decimal `envconfig:"PRODLENS_SUBSCRIPTION_PRICE" default:"9.99"`
	UnlockPrice       decimal.Decimal `envconfig:"PRODLENS_UNLOCK_PRICE" default:"4.99"`
	Currency          string          `envconfig:"PRODLENS_CURRENCY" default:"usd"`
	FreeTierCap       int             `envconfig:"PRODLENS_FREE_TIER_CAP" default:"10"`
	SnapshotTTL       time.Duration   `envconfig:"PRODLENS_SNAPSHOT_TTL" default:"2m"`
	OracleTimeout     time.Duration   `envconfig:"PRODLENS_ORACLE_TIMEOUT" default:"5s"`
}

// SubscriptionPriceCents converts the configured dollar amount to cents.
func (e EntitlementsConfig) SubscriptionPriceCents() int64 {
	return e.SubscriptionPrice.Mul(decimal.NewFromInt(100)).IntPart()
}

// UnlockPriceCents converts the configured dollar amount to cents.
func (e EntitlementsConfig) UnlockPriceCents() int64 {
	return e.UnlockPrice.Mul(decimal.NewFromInt(100)).IntPart()
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
