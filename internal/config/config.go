package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/oson-apps/notify-engine/internal/carrier"
)

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	HealthPort     int           `mapstructure:"health_port"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Password string `mapstructure:"-"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type QuotaConfig struct {
	Daily  int `mapstructure:"daily"`
	Hourly int `mapstructure:"hourly"`
}

type DispatchConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
	SendRate       float64       `mapstructure:"send_rate"`
	SendBurst      int           `mapstructure:"send_burst"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type TemplateConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type CarrierConfig struct {
	CountryCode string               `mapstructure:"country_code"`
	Table       []carrier.TableEntry `mapstructure:"table"`
}

type GatewaysConfig struct {
	APNs struct {
		Endpoint string `mapstructure:"endpoint"`
		Topic    string `mapstructure:"topic"`
	} `mapstructure:"apns"`
	FCM struct {
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"fcm"`
	Expo struct {
		Endpoint  string `mapstructure:"endpoint"`
		ChunkSize int    `mapstructure:"chunk_size"`
	} `mapstructure:"expo"`
	PlayMobile struct {
		Endpoint       string `mapstructure:"endpoint"`
		Originator     string `mapstructure:"originator"`
		MessageIDLimit int    `mapstructure:"message_id_limit"`
	} `mapstructure:"playmobile"`
	Infobip struct {
		Endpoint string `mapstructure:"endpoint"`
		Sender   string `mapstructure:"sender"`
	} `mapstructure:"infobip"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EnvelopeConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	KeyID    string        `mapstructure:"key_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Quota     QuotaConfig    `mapstructure:"quota"`
	Dispatch  DispatchConfig `mapstructure:"dispatch"`
	Retry     RetryConfig    `mapstructure:"retry"`
	Templates TemplateConfig `mapstructure:"templates"`
	Carrier   CarrierConfig  `mapstructure:"carrier"`
	Gateways  GatewaysConfig `mapstructure:"gateways"`
	Envelope  EnvelopeConfig `mapstructure:"envelope"`
}

// Secrets are credentials that never live in the config file; they come from
// the environment under the NOTIFY_ prefix.
type Secrets struct {
	DBPassword         string `envconfig:"DB_PASSWORD"`
	APNsTeamID         string `envconfig:"APNS_TEAM_ID"`
	APNsKeyID          string `envconfig:"APNS_KEY_ID"`
	APNsSigningKey     string `envconfig:"APNS_SIGNING_KEY"`
	FCMServerKey       string `envconfig:"FCM_SERVER_KEY"`
	ExpoAccessToken    string `envconfig:"EXPO_ACCESS_TOKEN"`
	PlayMobileUsername string `envconfig:"PLAYMOBILE_USERNAME"`
	PlayMobilePassword string `envconfig:"PLAYMOBILE_PASSWORD"`
	InfobipAPIKey      string `envconfig:"INFOBIP_API_KEY"`
	TelegramToken      string `envconfig:"TELEGRAM_TOKEN"`
}

// LoadConfig reads the YAML config and overlays environment secrets. Missing required configuration is a hard failure at
// startup; nothing later in the pipeline is allowed to panic over config.
func LoadConfig() (*Config, *Secrets, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process("notify", &secrets); err != nil {
		return nil, nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	cfg.Database.Password = secrets.DBPassword

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, &secrets, nil
}

func (c *Config) validate() error {
	if c.Quota.Daily <= 0 || c.Quota.Hourly <= 0 {
		return fmt.Errorf("quota ceilings must be positive (daily=%d hourly=%d)", c.Quota.Daily, c.Quota.Hourly)
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis is enabled but no url is configured")
	}
	return nil
}
