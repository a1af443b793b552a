package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Spond          SpondConfig          `yaml:"spond"`
	Kitty          KittyConfig          `yaml:"kitty"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	// AdminIDs lists Discord user IDs allowed to run mutating commands.
	// An empty list lets everyone in.
	AdminIDs []string `yaml:"admin_ids"`
}

// SpondConfig holds credentials for the group-scheduling service.
type SpondConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
	GroupID  string        `yaml:"group_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

// KittyConfig holds the penalty rules.
type KittyConfig struct {
	// NoReplyPenalty is the flat amount charged per unanswered event.
	NoReplyPenalty decimal.Decimal `yaml:"no_reply_penalty"`
	// Lookback is the sync window used when no start date is given.
	Lookback time.Duration `yaml:"lookback"`
	// SyncInterval enables periodic syncs when greater than zero.
	SyncInterval time.Duration `yaml:"sync_interval"`
	Currency     string        `yaml:"currency"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() *Config {
	return &Config{
		Spond: SpondConfig{
			BaseURL: "https://api.spond.com/core/v1/",
			Timeout: 30 * time.Second,
		},
		Kitty: KittyConfig{
			NoReplyPenalty: decimal.NewFromInt(2),
			Lookback:       14 * 24 * time.Hour,
			Currency:       "€",
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Path:    "kitty.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "kittybot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "kittybot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// Load reads a YAML configuration file from the given path, then applies
// overrides from the environment. A .env file next to the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides secrets and per-deployment values from the environment.
func (c *Config) applyEnv() error {
	setString(&c.Discord.Token, "DISCORD_TOKEN")
	setString(&c.Spond.Email, "SPOND_EMAIL")
	setString(&c.Spond.Password, "SPOND_PASSWORD")
	setString(&c.Spond.GroupID, "SPOND_GROUP_ID")
	setString(&c.Database.Password, "DATABASE_PASSWORD")

	if ids := os.Getenv("DISCORD_ADMIN_IDS"); ids != "" {
		c.Discord.AdminIDs = nil
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.Discord.AdminIDs = append(c.Discord.AdminIDs, id)
			}
		}
	}

	if v := os.Getenv("KITTY_NO_REPLY_PENALTY"); v != "" {
		d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "."))
		if err != nil {
			return fmt.Errorf("KITTY_NO_REPLY_PENALTY: %w", err)
		}
		c.Kitty.NoReplyPenalty = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "sqlite":
		// valid
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"sqlite\"", c.Database.Driver))
	}
	if c.Kitty.NoReplyPenalty.IsNegative() {
		errs = append(errs, fmt.Errorf("kitty.no_reply_penalty must not be negative, got %s", c.Kitty.NoReplyPenalty))
	}
	if c.Kitty.Lookback <= 0 {
		errs = append(errs, fmt.Errorf("kitty.lookback must be positive, got %s", c.Kitty.Lookback))
	}
	if c.Kitty.SyncInterval < 0 {
		errs = append(errs, fmt.Errorf("kitty.sync_interval must not be negative, got %s", c.Kitty.SyncInterval))
	}
	return errors.Join(errs...)
}
