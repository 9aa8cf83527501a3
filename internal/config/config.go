package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// NATSConfig holds NATS configuration for the broadcast fan-out
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
}

// ChainConfig holds blockchain RPC configuration for the payment verifier
type ChainConfig struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	// ReceiptPollInterval is the initial backoff interval while waiting for a
	// just-submitted transaction to be mined.
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
}

// RentalConfig holds the rental economics and limits
type RentalConfig struct {
	// DailyRent is the rent amount per day in base token units
	DailyRent uint64 `mapstructure:"daily_rent"`
	// RentCollectionAddress receives rent payments
	RentCollectionAddress string `mapstructure:"rent_collection_address"`
	// StakeTokenAddress is the token whose balance gates rental eligibility
	StakeTokenAddress string `mapstructure:"stake_token_address"`
	// MinimumStakeBalance is the stake balance required to rent
	MinimumStakeBalance uint64 `mapstructure:"minimum_stake_balance"`
	// MaxRentals caps concurrent non-reserved rentals per wallet
	MaxRentals int `mapstructure:"max_rentals"`
	// RentPeriod is how much time one rent payment buys
	RentPeriod time.Duration `mapstructure:"rent_period"`
}

// SchedulerConfig holds the eviction and eligibility sweep timing
type SchedulerConfig struct {
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	GracePeriod         time.Duration `mapstructure:"grace_period"`
	EligibilityInterval time.Duration `mapstructure:"eligibility_interval"`
	WorkerPoolSize      int           `mapstructure:"worker_pool_size"`
}

// AuthConfig holds session authentication configuration
type AuthConfig struct {
	// JWTPublicKey is the RSA public key (PEM) the identity provider signs
	// session tokens with
	JWTPublicKey string `mapstructure:"jwt_public_key"`
}

// RateLimitConfig bounds per-wallet entry/eligibility checks
type RateLimitConfig struct {
	ChecksPerSecond float64 `mapstructure:"checks_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// ServerAppConfig holds the full configuration for the spaced server
type ServerAppConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig  `mapstructure:"database"`
	NATS       NATSConfig      `mapstructure:"nats"`
	Server     ServerConfig    `mapstructure:"server"`
	Chain      ChainConfig     `mapstructure:"chain"`
	Rental     RentalConfig    `mapstructure:"rental"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler"`
	Auth       AuthConfig      `mapstructure:"auth"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// LoadServerConfig loads configuration for the spaced server
func LoadServerConfig(configFile string, envPath string) (*ServerAppConfig, error) {
	v := configureViper("spaced", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "spaced")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("chain.verify_timeout", "30s")
	v.SetDefault("chain.receipt_poll_interval", "1s")
	v.SetDefault("rental.daily_rent", 10000)
	v.SetDefault("rental.minimum_stake_balance", 10000)
	v.SetDefault("rental.max_rentals", 2)
	v.SetDefault("rental.rent_period", "24h")
	v.SetDefault("scheduler.sweep_interval", "60s")
	v.SetDefault("scheduler.grace_period", "12h")
	v.SetDefault("scheduler.eligibility_interval", "30s")
	v.SetDefault("scheduler.worker_pool_size", 8)
	v.SetDefault("rate_limit.checks_per_second", 1)
	v.SetDefault("rate_limit.burst", 3)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config ServerAppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("SPACED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
