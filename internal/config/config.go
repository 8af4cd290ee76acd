package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

const defaultPath = "config/local.yaml"

type (
	Config struct {
		Env        string           `yaml:"env" env:"ENV" env-default:"development"`
		LogLevel   string           `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
		HttpServer HttpServerConfig `yaml:"http_server"`
		Mongo      MongoConfig      `yaml:"mongo"`
		Redis      RedisConfig      `yaml:"redis"`
		Keys       KeysConfig       `yaml:"keys"`
		Enrich     EnrichConfig     `yaml:"enrich"`
		Notifier   NotifierConfig   `yaml:"notifier"`
	}

	HttpServerConfig struct {
		Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:9090" validate:"required"`
		Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
		IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	}

	MongoConfig struct {
		URI            string        `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017" validate:"required"`
		Database       string        `yaml:"database" env:"MONGO_DATABASE" env-default:"push_notify" validate:"required"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env:"MONGO_CONNECT_TIMEOUT" env-default:"10s"`
	}

	RedisConfig struct {
		Address  string `yaml:"address" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
		BadgeKey string `yaml:"badge_key" env:"REDIS_BADGE_KEY" env-default:"push_notify:badge"`
	}

	// KeysConfig either carries the key material inline (base64url) or names
	// an entry of the key store.
	KeysConfig struct {
		PrivateKey string `yaml:"private_key" env:"PUSH_PRIVATE_KEY"`
		AuthSecret string `yaml:"auth_secret" env:"PUSH_AUTH_SECRET"`
		StoreName  string `yaml:"store_name" env:"PUSH_KEYS_NAME" env-default:"default"`
	}

	EnrichConfig struct {
		FetchTimeout      time.Duration `yaml:"fetch_timeout" env:"ENRICH_FETCH_TIMEOUT" env-default:"5s"`
		LookupTimeout     time.Duration `yaml:"lookup_timeout" env:"ENRICH_LOOKUP_TIMEOUT" env-default:"5s"`
		MaxImageBytes     int64         `yaml:"max_image_bytes" env:"ENRICH_MAX_IMAGE_BYTES" env-default:"5242880" validate:"gt=0"`
		MaxImageDimension uint          `yaml:"max_image_dimension" env:"ENRICH_MAX_IMAGE_DIMENSION" env-default:"512" validate:"gt=0"`
		TempDir           string        `yaml:"temp_dir" env:"ENRICH_TEMP_DIR"`
	}

	NotifierConfig struct {
		Deadline time.Duration `yaml:"deadline" env:"NOTIFIER_DEADLINE" env-default:"25s" validate:"gt=0"`
	}
)

// HasInlineKeys reports whether key material comes from the config itself.
func (k KeysConfig) HasInlineKeys() bool {
	return k.PrivateKey != "" || k.AuthSecret != ""
}

// Load reads the YAML file at path (falling back to env only when the file
// does not exist) and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad resolves the path from CONFIG_PATH and panics on error.
func MustLoad() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}

	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
