package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BrokerConfig describes one MQTT endpoint to consume uplinks from.
type BrokerConfig struct {
	URL            string `mapstructure:"url"`
	ClientID       string `mapstructure:"client_id"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UplinkTopic    string `mapstructure:"uplink_topic"`
	ReconnectDelay int    `mapstructure:"reconnect_delay_seconds"`
}

// NetworkServerConfig points at the LoRaWAN network server's REST API.
type NetworkServerConfig struct {
	URL      string `mapstructure:"url"`
	APIToken string `mapstructure:"api_token"`
}

// NotifyConfig controls the outbound SMS provider chain.
type NotifyConfig struct {
	DefaultCountryCode string `mapstructure:"default_country_code"`
	SenderID           string `mapstructure:"sender_id"`
	LogMessageContent  bool   `mapstructure:"log_message_content"`
	RequestTimeout     int    `mapstructure:"request_timeout_seconds"`
	// EncryptionKey is 64 hex characters (32 bytes) used to decrypt
	// provider credentials at rest.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// SMTPConfig configures the email action sender.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Config holds application configuration.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisAddr   string `mapstructure:"redis_addr"`
	HTTPAddr    string `mapstructure:"http_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Brokers       []BrokerConfig      `mapstructure:"brokers"`
	NetworkServer NetworkServerConfig `mapstructure:"network_server"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`

	// CooldownStore selects where rule cooldown state lives:
	// "memory" (single instance) or "redis".
	CooldownStore       string `mapstructure:"cooldown_store"`
	SweepIntervalSecs   int    `mapstructure:"sweep_interval_seconds"`
	DispatchConcurrency int    `mapstructure:"dispatch_concurrency"`
}

// Load reads configuration from config.yaml, .env, and env vars.
func Load() (*Config, error) {
	// .env is optional; env vars and config.yaml still apply without it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":5069")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("cooldown_store", "memory")
	v.SetDefault("sweep_interval_seconds", 5)
	v.SetDefault("dispatch_concurrency", 10)
	v.SetDefault("notify.request_timeout_seconds", 10)
	v.SetDefault("smtp.port", 587)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i := range cfg.Brokers {
		if cfg.Brokers[i].UplinkTopic == "" {
			cfg.Brokers[i].UplinkTopic = "application/+/device/+/event/up"
		}
		if cfg.Brokers[i].ReconnectDelay <= 0 {
			cfg.Brokers[i].ReconnectDelay = 5
		}
	}
	return cfg, nil
}
