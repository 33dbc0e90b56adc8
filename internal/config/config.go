package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. YAML is the primary source;
// environment variables override individual fields, which keeps secrets out
// of the config file in containerized deployments.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Database    DatabaseConfig     `yaml:"database"`
	Auth        AuthConfig         `yaml:"auth"`
	Nats        NatsConfig         `yaml:"nats"`
	Whitelist   WhitelistConfig    `yaml:"whitelist"`
	Seeding     SeedingConfig      `yaml:"seeding"`
	GameServers []GameServerConfig `yaml:"game_servers"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"SEEDTRACK_LISTEN_ADDR"`
	HTTPPort   int    `yaml:"http_port" env:"SEEDTRACK_HTTP_PORT"`
	StaticDir  string `yaml:"static_dir" env:"SEEDTRACK_STATIC_DIR"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path" env:"SEEDTRACK_DB_PATH"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" env:"SEEDTRACK_JWT_SECRET"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// NatsConfig holds presence feed transport settings. With Embedded set the
// process runs its own NATS server and connects to it.
type NatsConfig struct {
	URL          string `yaml:"url" env:"SEEDTRACK_NATS_URL"`
	Subject      string `yaml:"subject"`
	Embedded     bool   `yaml:"embedded"`
	EmbeddedHost string `yaml:"embedded_host"`
	EmbeddedPort int    `yaml:"embedded_port"`
}

// WhitelistConfig points at the whitelist duration service.
type WhitelistConfig struct {
	URL   string `yaml:"url" env:"SEEDTRACK_WHITELIST_URL"`
	Token string `yaml:"token" env:"SEEDTRACK_WHITELIST_TOKEN"`
}

// SeedingConfig holds engine tuning and policy switches.
type SeedingConfig struct {
	TickInterval           time.Duration `yaml:"tick_interval"`
	SeederPlaytimeEligible bool          `yaml:"seeder_playtime_eligible"`
}

// GameServerConfig registers one community game server at startup.
type GameServerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Load reads configuration from a YAML file, then applies environment
// variable overrides. A .env file is honored for local development.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logrus.Info("loaded environment variables from .env file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/seedtrack/seedtrack.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Nats.Subject == "" {
		cfg.Nats.Subject = "seeding.presence.>"
	}
	if cfg.Nats.EmbeddedHost == "" {
		cfg.Nats.EmbeddedHost = "127.0.0.1"
	}
	if cfg.Nats.EmbeddedPort == 0 {
		cfg.Nats.EmbeddedPort = 4222
	}
	if cfg.Nats.URL == "" {
		cfg.Nats.URL = fmt.Sprintf("nats://%s:%d", cfg.Nats.EmbeddedHost, cfg.Nats.EmbeddedPort)
	}
	if cfg.Seeding.TickInterval == 0 {
		cfg.Seeding.TickInterval = time.Minute
	}
	// Note: StaticDir intentionally has no default - empty means don't serve static files

	return &cfg, nil
}
