package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	FreeAgency     FreeAgencyConfig     `yaml:"free_agency"`
	NATS           NATSConfig           `yaml:"nats"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	// AuctionsLogChannel receives phase results (re-signs, winning bids, movements).
	AuctionsLogChannel string `yaml:"auctions_log_channel"`
	// BotLogsChannel receives fine-grained user actions.
	BotLogsChannel string `yaml:"bot_logs_channel"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres", "sqlite" or "memory"
	// Path is the database file used by the sqlite driver.
	Path string `yaml:"path"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// SQLiteDSN returns the go-sqlite3 connection string for Path.
func (d DatabaseConfig) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", d.Path)
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
	// OTLPEndpoint disables OTLP export when empty; logs then go to stdout as JSON.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	LogLevel     string `yaml:"log_level"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
	// Identity names this replica in the lease. Empty means POD_NAME, then
	// the hostname.
	Identity string `yaml:"identity"`
}

// FreeAgencyConfig holds the auction rules applied to new periods.
type FreeAgencyConfig struct {
	AuctionPoints int `yaml:"auction_points"`
	// RFAMaxAge is the oldest age still treated as a restricted free agent.
	RFAMaxAge int `yaml:"rfa_max_age"`
	// RFAMatchRate is the fraction of the winning bid an RFA's club pays to match.
	RFAMatchRate float64 `yaml:"rfa_match_rate"`
}

// NATSConfig configures the optional event mirror. Empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Defaults returns the configuration applied before the file is parsed.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
			Path:    "fabot.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "fabot",
			ServiceVersion: "0.1.0",
			LogLevel:       "info",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "fabot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		FreeAgency: FreeAgencyConfig{
			AuctionPoints: 300,
			RFAMaxAge:     25,
			RFAMatchRate:  0.8,
		},
		NATS: NATSConfig{
			Subject: "fabot.events",
		},
	}
}

// Load reads a YAML configuration file from the given path. References of
// the form ${VAR} are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\", \"sqlite\" or \"memory\"", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("sqlite driver requires database.path")
	}
	if c.FreeAgency.AuctionPoints < 1 {
		return fmt.Errorf("free_agency.auction_points must be positive, got %d", c.FreeAgency.AuctionPoints)
	}
	if c.FreeAgency.RFAMatchRate <= 0 || c.FreeAgency.RFAMatchRate > 1 {
		return fmt.Errorf("free_agency.rfa_match_rate must be in (0, 1], got %v", c.FreeAgency.RFAMatchRate)
	}
	return nil
}
