package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration shared by every subcommand. Values
// come from TENANTSYNC_* environment variables; CLI flags override them.
type Config struct {
	DBPath string `env:"TENANTSYNC_DB_PATH" envDefault:"./tenantsync.sqlite"`

	RedisAddr        string        `env:"TENANTSYNC_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword    string        `env:"TENANTSYNC_REDIS_PASSWORD"`
	RedisDB          int           `env:"TENANTSYNC_REDIS_DB" envDefault:"0"`
	RedisSendTimeout time.Duration `env:"TENANTSYNC_REDIS_SEND_TIMEOUT" envDefault:"5s"`

	WebAddr     string `env:"TENANTSYNC_WEB_ADDR" envDefault:":8080"`
	GatewayAddr string `env:"TENANTSYNC_GATEWAY_ADDR" envDefault:":8081"`

	BearerSecret   string `env:"TENANTSYNC_BEARER_SECRET"`
	BearerIssuer   string `env:"TENANTSYNC_BEARER_ISSUER" envDefault:"tenantsync"`
	BearerAudience string `env:"TENANTSYNC_BEARER_AUDIENCE"`

	GatewayPingInterval time.Duration `env:"TENANTSYNC_GATEWAY_PING_INTERVAL" envDefault:"25s"`
	GatewayPongWait     time.Duration `env:"TENANTSYNC_GATEWAY_PONG_WAIT" envDefault:"10s"`
	GatewaySendQueue    int           `env:"TENANTSYNC_GATEWAY_SEND_QUEUE" envDefault:"256"`

	PermissionsURL     string        `env:"TENANTSYNC_PERMISSIONS_URL"`
	PermissionsSecret  string        `env:"TENANTSYNC_PERMISSIONS_SECRET"`
	PermissionsTimeout time.Duration `env:"TENANTSYNC_PERMISSIONS_TIMEOUT" envDefault:"10s"`
	RoleMapPath        string        `env:"TENANTSYNC_ROLE_MAP_PATH"`
	ReconcileInterval  time.Duration `env:"TENANTSYNC_RECONCILE_INTERVAL" envDefault:"15m"`

	OutboxInterval  time.Duration `env:"TENANTSYNC_OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatchSize int           `env:"TENANTSYNC_OUTBOX_BATCH_SIZE" envDefault:"100"`

	LogLevel     string `env:"TENANTSYNC_LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"TENANTSYNC_LOG_FORMAT" envDefault:"json"`
	OTelEndpoint string `env:"TENANTSYNC_OTEL_ENDPOINT"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) validateBearer() error {
	if c.BearerSecret == "" {
		return fmt.Errorf("TENANTSYNC_BEARER_SECRET is required")
	}
	return nil
}

func (c Config) validateBot() error {
	if c.PermissionsURL == "" {
		return fmt.Errorf("TENANTSYNC_PERMISSIONS_URL is required")
	}
	if c.PermissionsSecret == "" {
		return fmt.Errorf("TENANTSYNC_PERMISSIONS_SECRET is required")
	}
	return nil
}
