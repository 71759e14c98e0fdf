package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port     int      `koanf:"port" validate:"min=1,max=65535"`
	GRPCPort int      `koanf:"grpc_port" validate:"min=1,max=65535"`
	LogLevel string   `koanf:"log_level" validate:"oneof=debug info warn error"`
	DB       DBConfig `koanf:"db"`
}

type DBConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"min=1,max=65535"`
	User     string `koanf:"user" validate:"required"`
	Password string `koanf:"password"`
	Name     string `koanf:"name" validate:"required"`

	MaxSize           int32         `koanf:"max_size" validate:"gt=0"`
	MinIdle           int32         `koanf:"min_idle" validate:"gte=0,ltefield=MaxSize"`
	ConnectionTimeout time.Duration `koanf:"connection_timeout" validate:"gt=0"`
	ValidateIdleAfter time.Duration `koanf:"validate_idle_after" validate:"gte=0"`
}

// DSN builds a postgres URL for pgx.ParseConfig.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SlogLevel maps LogLevel onto slog. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func Default() *Config {
	return &Config{
		Port:     3000,
		GRPCPort: 50051,
		LogLevel: "info",
		DB: DBConfig{
			Host:              "localhost",
			Port:              5432,
			User:              "admin",
			Password:          "123",
			Name:              "rinha",
			MaxSize:           40,
			MinIdle:           40,
			ConnectionTimeout: 5 * time.Second,
		},
	}
}

// envToPath lists the environment variables read by Load. Anything else in
// the environment is ignored.
var envToPath = map[string]string{
	"PORT":                   "port",
	"GRPC_PORT":              "grpc_port",
	"LOG_LEVEL":              "log_level",
	"DB_HOST":                "db.host",
	"DB_PORT":                "db.port",
	"DB_USER":                "db.user",
	"DB_PASSWORD":            "db.password",
	"DB_NAME":                "db.name",
	"DB_POOL_MAX_SIZE":       "db.max_size",
	"DB_POOL_MIN_IDLE":       "db.min_idle",
	"DB_CONNECTION_TIMEOUT":  "db.connection_timeout",
	"DB_VALIDATE_IDLE_AFTER": "db.validate_idle_after",
}

// Load reads the defaults overridden by the process environment.
func Load() (*Config, error) {
	return load(os.Environ)
}

func load(environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envToPath[key]
			if !ok {
				return "", nil
			}
			return path, strings.TrimSpace(value)
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
