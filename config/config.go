// Package config loads the bot configuration from an optional config.yaml
// and environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendRedis  = "redis"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	S3       S3Config       `mapstructure:"s3"`
	Bot      BotConfig      `mapstructure:"bot"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	// Admins are usernames, with or without "@". Empty means everyone.
	Admins []string `mapstructure:"admins"`
}

type StorageConfig struct {
	// Backend is one of redis, s3 or memory.
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type BotConfig struct {
	TypingInterval time.Duration `mapstructure:"typing_interval"`
	// PollTimeout is the long polling timeout in seconds.
	PollTimeout int `mapstructure:"poll_timeout"`
	// MessagesFile optionally overrides texts of the built-in catalog.
	MessagesFile string `mapstructure:"messages_file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings keeps the variable names deployments already use.
var envBindings = map[string]string{
	"telegram.token":       "TELEGRAM_BOT_TOKEN",
	"telegram.admins":      "TELEGRAM_ADMINS",
	"storage.backend":      "STORAGE_BACKEND",
	"redis.host":           "REDIS_HOST",
	"redis.port":           "REDIS_PORT",
	"redis.password":       "REDIS_PASSWORD",
	"redis.db":             "REDIS_DB",
	"redis.prefix":         "REDIS_PREFIX",
	"s3.bucket":            "AWS_S3_BUCKET",
	"s3.region":            "AWS_REGION",
	"s3.endpoint":          "AWS_S3_ENDPOINT",
	"s3.access_key_id":     "AWS_ACCESS_KEY_ID",
	"s3.secret_access_key": "AWS_SECRET_ACCESS_KEY",
	"s3.use_path_style":    "AWS_S3_USE_PATH_STYLE",
	"bot.typing_interval":  "BOT_TYPING_INTERVAL",
	"bot.poll_timeout":     "BOT_POLL_TIMEOUT",
	"bot.messages_file":    "BOT_MESSAGES_FILE",
	"log.level":            "LOG_LEVEL",
}

// Load reads config.yaml from configPath or the working directory when
// present, then applies environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Telegram.Admins = cleanList(cfg.Telegram.Admins)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendRedis)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("s3.region", "us-east-1")

	v.SetDefault("bot.typing_interval", "5s")
	v.SetDefault("bot.poll_timeout", 60)

	v.SetDefault("log.level", "info")
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	switch c.Storage.Backend {
	case BackendRedis, BackendMemory:
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("AWS_S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		// env values arrive as one comma separated string
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
