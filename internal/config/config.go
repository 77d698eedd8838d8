package config

import (
	"errors"
	"fmt"
	"log"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinJWTSecretLength is the shortest HMAC key accepted for signing tokens
const MinJWTSecretLength = 32

var (
	ErrJWTSecretMissing  = errors.New("JWT_SECRET is not set")
	ErrJWTSecretTooShort = fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength)
	ErrInvalidProxy      = errors.New("invalid RATE_LIMIT_TRUSTED_PROXIES entry")
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	Kafka     KafkaConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
	InstanceID     string
	LogLevel       string
}

// IsDevelopment reports whether the server runs outside production
func (c ServerConfig) IsDevelopment() bool {
	return c.Env != "production"
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
	SSLMode  string
}

// DSN builds the postgres connection URL
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.Schema)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr is the host:port of the Redis server
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type PaymentConfig struct {
	SecretKey string
	Currency  string
	Timeout   time.Duration
	ReturnURL string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether order events should be written to Kafka
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type StoreConfig struct {
	AdminEmail  string
	CartTTL     time.Duration
	SeedCatalog bool
}

// RateLimitConfig budgets requests per client IP. The credential endpoints
// (register, login, refresh) have a stricter budget of their own.
// X-Forwarded-For is only read from TrustedProxies.
type RateLimitConfig struct {
	Requests         int
	Window           time.Duration
	CredentialTries  int
	CredentialWindow time.Duration
	TrustedProxies   []string
}

// ProxyPrefixes parses TrustedProxies. Entries are addresses or CIDR ranges.
func (c RateLimitConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w %q: %v", ErrInvalidProxy, entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidProxy, entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Validate reports settings the server must not start with
func (c *Config) Validate() error {
	switch secret := strings.TrimSpace(c.JWT.Secret); {
	case secret == "":
		return ErrJWTSecretMissing
	case len(secret) < MinJWTSecretLength:
		return ErrJWTSecretTooShort
	}
	if _, err := c.RateLimit.ProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

func Load() *Config {
	// Export .env into the process environment so libraries reading
	// os.Getenv see the same values as viper
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env into environment: %v", err)
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("PAYMENT_CURRENCY", "eur")
	viper.SetDefault("PAYMENT_TIMEOUT", "15s")
	viper.SetDefault("KAFKA_TOPIC", "order-events")
	viper.SetDefault("CART_TTL", "720h")
	viper.SetDefault("SEED_CATALOG", true)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
	viper.SetDefault("RATE_LIMIT_CREDENTIAL_TRIES", 10)
	viper.SetDefault("RATE_LIMIT_CREDENTIAL_WINDOW", "15m")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(viper.GetString("ALLOWED_ORIGINS")),
			InstanceID:     viper.GetString("INSTANCE_ID"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Payment: PaymentConfig{
			SecretKey: viper.GetString("STRIPE_SECRET_KEY"),
			Currency:  strings.ToLower(viper.GetString("PAYMENT_CURRENCY")),
			Timeout:   viper.GetDuration("PAYMENT_TIMEOUT"),
			ReturnURL: viper.GetString("PAYMENT_RETURN_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		Store: StoreConfig{
			AdminEmail:  strings.ToLower(strings.TrimSpace(viper.GetString("ADMIN_EMAIL"))),
			CartTTL:     viper.GetDuration("CART_TTL"),
			SeedCatalog: viper.GetBool("SEED_CATALOG"),
		},
		RateLimit: RateLimitConfig{
			Requests:         viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:           viper.GetDuration("RATE_LIMIT_WINDOW"),
			CredentialTries:  viper.GetInt("RATE_LIMIT_CREDENTIAL_TRIES"),
			CredentialWindow: viper.GetDuration("RATE_LIMIT_CREDENTIAL_WINDOW"),
			TrustedProxies:   splitList(viper.GetString("RATE_LIMIT_TRUSTED_PROXIES")),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
