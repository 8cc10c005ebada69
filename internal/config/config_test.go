package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jensholdgaard/footy-fa-bot/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
discord:
  token: "test-token"
  guild_id: "123456"
  auctions_log_channel: "900"
  bot_logs_channel: "901"
database:
  host: "db.example.com"
  port: 5433
  user: "fabot"
  password: "secret"
  dbname: "league"
  sslmode: "require"
  driver: "postgres"
server:
  port: 9090
telemetry:
  service_name: "my-bot"
  otlp_endpoint: "localhost:4318"
free_agency:
  auction_points: 250
nats:
  url: "nats://localhost:4222"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Discord.Token != "test-token" {
					t.Errorf("got token %q, want %q", cfg.Discord.Token, "test-token")
				}
				if cfg.Discord.AuctionsLogChannel != "900" || cfg.Discord.BotLogsChannel != "901" {
					t.Errorf("got log channels %q/%q, want 900/901", cfg.Discord.AuctionsLogChannel, cfg.Discord.BotLogsChannel)
				}
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 9090)
				}
				if cfg.FreeAgency.AuctionPoints != 250 {
					t.Errorf("got auction points %d, want 250", cfg.FreeAgency.AuctionPoints)
				}
				if cfg.FreeAgency.RFAMaxAge != 25 {
					t.Errorf("got rfa max age %d, want default 25", cfg.FreeAgency.RFAMaxAge)
				}
				if cfg.NATS.URL != "nats://localhost:4222" || cfg.NATS.Subject != "fabot.events" {
					t.Errorf("got nats %+v", cfg.NATS)
				}
			},
		},
		{
			name: "defaults applied",
			yaml: `
discord:
  token: "tok"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Host != "localhost" {
					t.Errorf("got db host %q, want %q", cfg.Database.Host, "localhost")
				}
				if cfg.Database.Driver != "postgres" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "postgres")
				}
				if cfg.Server.Port != 8080 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 8080)
				}
				if cfg.Telemetry.ServiceName != "fabot" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "fabot")
				}
				if cfg.FreeAgency.AuctionPoints != 300 {
					t.Errorf("got auction points %d, want 300", cfg.FreeAgency.AuctionPoints)
				}
				if cfg.FreeAgency.RFAMatchRate != 0.8 {
					t.Errorf("got match rate %v, want 0.8", cfg.FreeAgency.RFAMatchRate)
				}
			},
		},
		{
			name: "environment expanded",
			yaml: `
discord:
  token: "${FABOT_TEST_TOKEN}"
`,
			env: map[string]string{"FABOT_TEST_TOKEN": "from-env"},
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Discord.Token != "from-env" {
					t.Errorf("got token %q, want %q", cfg.Discord.Token, "from-env")
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "sqlite driver accepted",
			yaml: `
database:
  driver: "sqlite"
  path: "/tmp/league.db"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "sqlite" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "sqlite")
				}
			},
		},
		{
			name: "memory driver accepted",
			yaml: `
database:
  driver: "memory"
`,
		},
		{
			name: "invalid driver rejected",
			yaml: `
database:
  driver: "mongodb"
`,
			wantErr: true,
		},
		{
			name: "sqlite without path rejected",
			yaml: `
database:
  driver: "sqlite"
  path: ""
`,
			wantErr: true,
		},
		{
			name: "non-positive auction points rejected",
			yaml: `
free_agency:
  auction_points: 0
`,
			wantErr: true,
		},
		{
			name: "match rate above one rejected",
			yaml: `
free_agency:
  rfa_match_rate: 1.5
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestDatabaseConfig_SQLiteDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Path: "/var/lib/fabot/league.db"}
	want := "file:/var/lib/fabot/league.db?_foreign_keys=on&_busy_timeout=5000"
	if got := cfg.SQLiteDSN(); got != want {
		t.Errorf("SQLiteDSN() = %q, want %q", got, want)
	}
}
