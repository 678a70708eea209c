package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Solana      SolanaConfig   `mapstructure:"solana"`
	Monitor     MonitorConfig  `mapstructure:"monitor"`
	Health      HealthConfig   `mapstructure:"health"`
	Pricing     PricingConfig  `mapstructure:"pricing"`
	Store       StoreConfig    `mapstructure:"store"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Email       EmailConfig    `mapstructure:"email"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Port         int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	RateLimit    int    `mapstructure:"rate_limit_per_min"`
}

type TelegramConfig struct {
	BotToken          string  `mapstructure:"bot_token" validate:"required"`
	GroupID           int64   `mapstructure:"group_id"`
	AdminIDs          []int64 `mapstructure:"admin_ids"`
	UpdateTimeout     int     `mapstructure:"update_timeout"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"gt=0"`
	Debug             bool    `mapstructure:"debug"`
}

type SolanaConfig struct {
	RPCURL       string `mapstructure:"rpc_url" validate:"required,url"`
	WSSURL       string `mapstructure:"wss_url"`
	Address      string `mapstructure:"address" validate:"required"`
	PrivateKey   string `mapstructure:"private_key"`
	Commitment   string `mapstructure:"commitment" validate:"oneof=processed confirmed finalized"`
	Network      string `mapstructure:"network"`
	HeliusAPIKey string `mapstructure:"helius_api_key"`
	HeliusURL    string `mapstructure:"helius_url"`
}

type MonitorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	DustThreshold     float64       `mapstructure:"dust_threshold" validate:"gt=0"`
	AutoTransferDelay time.Duration `mapstructure:"auto_transfer_delay" validate:"gt=0"`
	AutoTransferRatio float64       `mapstructure:"auto_transfer_ratio" validate:"gt=0,lte=1"`
	DetailsDelay      time.Duration `mapstructure:"details_delay"`
	HealthSchedule    string        `mapstructure:"health_schedule" validate:"required"`
	SweepSchedule     string        `mapstructure:"sweep_schedule" validate:"required"`
	PendingMaxAge     time.Duration `mapstructure:"pending_max_age" validate:"gt=0"`
}

type HealthConfig struct {
	LogDir            string        `mapstructure:"log_dir"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval" validate:"gt=0"`
	LatencyWarnMS     int64         `mapstructure:"latency_warn_ms"`
	LatencyAdviseMS   int64         `mapstructure:"latency_advise_ms"`
	MemoryAdviseMB    uint64        `mapstructure:"memory_advise_mb"`
	LowBalanceAdvise  float64       `mapstructure:"low_balance_advise"`
}

type PricingConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	DefaultPrice    float64       `mapstructure:"default_price"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=file redis postgres"`
	DataFile string `mapstructure:"data_file"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type EmailConfig struct {
	Provider  string `mapstructure:"provider"` // "sendgrid" or empty to disable
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := overrideFromEnv(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Store.Driver == "postgres" && config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 120)

	viper.SetDefault("telegram.update_timeout", 60)
	viper.SetDefault("telegram.messages_per_second", 25.0)
	viper.SetDefault("telegram.burst", 5)

	viper.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("solana.commitment", "confirmed")
	viper.SetDefault("solana.network", "mainnet-beta")
	viper.SetDefault("solana.helius_url", "https://api.helius.xyz/v0")

	viper.SetDefault("monitor.poll_interval", 30*time.Second)
	viper.SetDefault("monitor.dust_threshold", 0.001)
	viper.SetDefault("monitor.auto_transfer_delay", 30*time.Minute)
	viper.SetDefault("monitor.auto_transfer_ratio", 0.95)
	viper.SetDefault("monitor.details_delay", 3*time.Second)
	viper.SetDefault("monitor.health_schedule", "0 */6 * * *")
	viper.SetDefault("monitor.sweep_schedule", "0 * * * *")
	viper.SetDefault("monitor.pending_max_age", 30*time.Minute)

	viper.SetDefault("health.log_dir", "logs")
	viper.SetDefault("health.initial_delay", time.Minute)
	viper.SetDefault("health.broadcast_interval", 6*time.Hour)
	viper.SetDefault("health.latency_warn_ms", 5000)
	viper.SetDefault("health.latency_advise_ms", 3000)
	viper.SetDefault("health.memory_advise_mb", 500)
	viper.SetDefault("health.low_balance_advise", 0.1)

	viper.SetDefault("pricing.url", "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd")
	viper.SetDefault("pricing.refresh_interval", 5*time.Minute)
	viper.SetDefault("pricing.default_price", 100.0)
	viper.SetDefault("pricing.timeout", 10*time.Second)

	viper.SetDefault("store.driver", "file")
	viper.SetDefault("store.data_file", "users.json")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "sniper_bot")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.key_prefix", "sniper")

	viper.SetDefault("jwt.issuer", "sniper_bot")
	viper.SetDefault("jwt.token_ttl", 24*time.Hour)

	viper.SetDefault("email.provider", "")
	viper.SetDefault("email.from_email", "reports@birdeye-sniper.io")
	viper.SetDefault("email.from_name", "BirdEye Sniper")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
}

// overrideFromEnv maps the bot's historical environment variable names onto config keys
func overrideFromEnv() error {
	if env := os.Getenv("NODE_ENV"); env != "" {
		viper.Set("environment", env)
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		viper.Set("environment", env)
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		viper.Set("server.port", p)
	}

	if token := os.Getenv("BOT_TOKEN"); token != "" {
		viper.Set("telegram.bot_token", token)
	}
	if groupID := os.Getenv("GROUP_ID"); groupID != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(groupID), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GROUP_ID %q: %w", groupID, err)
		}
		viper.Set("telegram.group_id", id)
	}
	if adminIDs := os.Getenv("ADMIN_IDS"); adminIDs != "" {
		ids, err := ParseIDList(adminIDs)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_IDS: %w", err)
		}
		viper.Set("telegram.admin_ids", ids)
	}

	envKeys := map[string]string{
		"SOLANA_RPC_URL":     "solana.rpc_url",
		"SOLANA_WSS_URL":     "solana.wss_url",
		"SOLANA_ADDRESS":     "solana.address",
		"SOLANA_PRIVATE_KEY": "solana.private_key",
		"HELIUS_API_KEY":     "solana.helius_api_key",
		"HELIUS_URL":         "solana.helius_url",
		"DATA_FILE":          "store.data_file",
		"STORE_DRIVER":       "store.driver",
		"DATABASE_URL":       "database.url",
		"REDIS_HOST":         "redis.host",
		"REDIS_PASSWORD":     "redis.password",
		"JWT_SECRET":         "jwt.secret",
		"SENDGRID_API_KEY":   "email.api_key",
		"EMAIL_PROVIDER":     "email.provider",
		"EMAIL_FROM_EMAIL":   "email.from_email",
		"HEALTH_LOG_DIR":     "health.log_dir",
	}
	for env, key := range envKeys {
		if v := os.Getenv(env); v != "" {
			viper.Set(key, v)
		}
	}

	// A SendGrid key on its own implies the provider
	if os.Getenv("SENDGRID_API_KEY") != "" && os.Getenv("EMAIL_PROVIDER") == "" {
		viper.Set("email.provider", "sendgrid")
	}

	return nil
}

// ParseIDList parses a comma separated list of chat ids
func ParseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return err
	}

	if config.Store.Driver == "file" && config.Store.DataFile == "" {
		return fmt.Errorf("store.data_file is required for the file driver")
	}
	if config.Email.Provider != "" && config.Email.APIKey == "" {
		return fmt.Errorf("email.api_key is required when email.provider is set")
	}
	if config.IsProduction() && config.Server.Enabled && config.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}

	return nil
}
