package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	BoglePay BoglePayConfig `mapstructure:"boglepay"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BoglePayConfig holds BoglePay processor configuration.
type BoglePayConfig struct {
	APIURL            string        `mapstructure:"api_url"`
	APIKey            string        `mapstructure:"api_key"`
	WebhookSecret     string        `mapstructure:"webhook_secret"`
	SignatureHeader   string        `mapstructure:"signature_header"`
	HostedCheckoutURL string        `mapstructure:"hosted_checkout_url"`
	SandboxMode       bool          `mapstructure:"sandbox_mode"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	SessionExpiry     time.Duration `mapstructure:"session_expiry"`
}

// StoreConfig holds storefront redirect configuration.
// SuccessURL and CancelURL may contain {order_id}, {order_key} and
// {order_number} placeholders; empty values fall back to the defaults
// derived from CheckoutURL and ThankYouURL.
type StoreConfig struct {
	CheckoutURL string `mapstructure:"checkout_url"`
	ThankYouURL string `mapstructure:"thank_you_url"`
	SuccessURL  string `mapstructure:"success_url"`
	CancelURL   string `mapstructure:"cancel_url"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/boglepay")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	// Read from environment variables
	v.SetEnvPrefix("BOGLEPAY")
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if key := os.Getenv("BOGLEPAY_API_KEY"); key != "" {
		cfg.BoglePay.APIKey = key
	}
	if secret := os.Getenv("BOGLEPAY_WEBHOOK_SECRET"); secret != "" {
		cfg.BoglePay.WebhookSecret = secret
	}
	if password := os.Getenv("BOGLEPAY_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("BOGLEPAY_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "boglepay")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// BoglePay defaults
	v.SetDefault("boglepay.signature_header", "X-BOGLEPAY-SIGNATURE")
	v.SetDefault("boglepay.hosted_checkout_url", "https://checkout.example.com")
	v.SetDefault("boglepay.sandbox_mode", true)
	v.SetDefault("boglepay.request_timeout", 30*time.Second)
	v.SetDefault("boglepay.session_expiry", 30*time.Minute)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
