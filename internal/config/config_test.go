package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
discord:
  token: "test-token"
  guild_id: "123456"
  admin_ids: ["42", "43"]
spond:
  email: "coach@example.com"
  password: "secret"
  group_id: "GROUP1"
kitty:
  no_reply_penalty: 2.50
  lookback: 168h
  sync_interval: 6h
database:
  driver: "postgres"
  host: "db.example.com"
  port: 5433
  user: "kitty"
  password: "secret"
  dbname: "kitty"
  sslmode: "require"
server:
  port: 9090
telemetry:
  service_name: "my-bot"
  otlp_endpoint: "localhost:4318"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Discord.Token != "test-token" {
					t.Errorf("got token %q, want %q", cfg.Discord.Token, "test-token")
				}
				if len(cfg.Discord.AdminIDs) != 2 {
					t.Errorf("got %d admin ids, want 2", len(cfg.Discord.AdminIDs))
				}
				if cfg.Spond.GroupID != "GROUP1" {
					t.Errorf("got group id %q, want %q", cfg.Spond.GroupID, "GROUP1")
				}
				if !cfg.Kitty.NoReplyPenalty.Equal(decimal.RequireFromString("2.50")) {
					t.Errorf("got penalty %s, want 2.50", cfg.Kitty.NoReplyPenalty)
				}
				if cfg.Kitty.Lookback != 7*24*time.Hour {
					t.Errorf("got lookback %s, want 168h", cfg.Kitty.Lookback)
				}
				if cfg.Kitty.SyncInterval != 6*time.Hour {
					t.Errorf("got sync interval %s, want 6h", cfg.Kitty.SyncInterval)
				}
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 9090)
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
				if cfg.Database.Driver != "postgres" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "postgres")
				}
				if cfg.Database.Port != 5432 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5432)
				}
				if !cfg.Kitty.NoReplyPenalty.Equal(decimal.NewFromInt(2)) {
					t.Errorf("got penalty %s, want 2", cfg.Kitty.NoReplyPenalty)
				}
				if cfg.Kitty.Lookback != 14*24*time.Hour {
					t.Errorf("got lookback %s, want 14 days", cfg.Kitty.Lookback)
				}
				if cfg.Kitty.SyncInterval != 0 {
					t.Errorf("got sync interval %s, want disabled", cfg.Kitty.SyncInterval)
				}
				if cfg.Telemetry.ServiceName != "kittybot" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "kittybot")
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
  path: "/data/kitty.db"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Path != "/data/kitty.db" {
					t.Errorf("got path %q, want %q", cfg.Database.Path, "/data/kitty.db")
				}
			},
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
			name: "negative penalty rejected",
			yaml: `
kitty:
  no_reply_penalty: -1
`,
			wantErr: true,
		},
		{
			name: "zero lookback rejected",
			yaml: `
kitty:
  lookback: 0s
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("SPOND_PASSWORD", "env-pass")
	t.Setenv("SPOND_GROUP_ID", "ENVGROUP")
	t.Setenv("DISCORD_ADMIN_IDS", "1, 2 ,,3")
	t.Setenv("KITTY_NO_REPLY_PENALTY", "3,50")

	cfg, err := config.Load(writeConfig(t, `
discord:
  token: "file-token"
spond:
  group_id: "FILEGROUP"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("got token %q, want env override", cfg.Discord.Token)
	}
	if cfg.Spond.Password != "env-pass" {
		t.Errorf("got password %q, want env override", cfg.Spond.Password)
	}
	if cfg.Spond.GroupID != "ENVGROUP" {
		t.Errorf("got group id %q, want env override", cfg.Spond.GroupID)
	}
	if got := len(cfg.Discord.AdminIDs); got != 3 {
		t.Errorf("got %d admin ids, want 3 (%v)", got, cfg.Discord.AdminIDs)
	}
	if !cfg.Kitty.NoReplyPenalty.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("got penalty %s, want 3.50", cfg.Kitty.NoReplyPenalty)
	}
}

func TestLoad_BadEnvPenalty(t *testing.T) {
	t.Setenv("KITTY_NO_REPLY_PENALTY", "lots")
	if _, err := config.Load(writeConfig(t, "discord: {}\n")); err == nil {
		t.Fatal("expected error for unparsable KITTY_NO_REPLY_PENALTY")
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
