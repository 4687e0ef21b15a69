package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel  string    `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPAddr  string    `yaml:"http-addr" env:"HTTP_ADDR" env-default:":8080"`
	Game      Game      `yaml:"game"`
	Redis     Redis     `yaml:"redis"`
	Telemetry Telemetry `yaml:"telemetry"`
	Auth      Auth      `yaml:"auth"`
}

type Game struct {
	ComputerDelay  time.Duration `yaml:"computer-delay" env:"GAME_COMPUTER_DELAY" env-default:"500ms"`
	Seed           uint64        `yaml:"seed" env:"GAME_SEED" env-default:"0"`
	IdleTimeout    time.Duration `yaml:"idle-timeout" env:"GAME_IDLE_TIMEOUT" env-default:"30m"`
	ReapInterval   time.Duration `yaml:"reap-interval" env:"GAME_REAP_INTERVAL" env-default:"1m"`
	ForwardTimeout time.Duration `yaml:"forward-timeout" env:"GAME_FORWARD_TIMEOUT" env-default:"2s"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr    string `yaml:"addr" env:"REDIS_CONNSTRING" env-default:"localhost:6379"`
}

type Telemetry struct {
	Enabled     bool   `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"otel-collector:4317"`
	ServiceName string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"tic-tac-toe"`
}

type Auth struct {
	// JWTSecret signs session tokens. Empty means a random secret per process.
	JWTSecret string        `yaml:"jwt-secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token-ttl" env:"AUTH_TOKEN_TTL" env-default:"24h"`
}

// Load reads the config file at path and then the environment.
// A missing file is not an error; the environment and defaults are used.
func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("unable to read config from env: %w", err)
		}
		return config, nil
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}
	return config, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}
	return config
}
