package store_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/jensholdgaard/footy-fa-bot/internal/store/memstore"
	_ "github.com/jensholdgaard/footy-fa-bot/internal/store/postgres"
	_ "github.com/jensholdgaard/footy-fa-bot/internal/store/sqlite"
)

// fakeDriver is a store.Driver that always succeeds without connecting to a DB.
func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{}, nil
}

func TestOpen(t *testing.T) {
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{
			name:    "registered driver succeeds",
			driver:  "test-driver",
			wantErr: false,
		},
		{
			name:    "unknown driver fails",
			driver:  "nonexistent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: tt.driver}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Open(driver=%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
		})
	}
}

func TestOpen_UnknownDriverListsRegistered(t *testing.T) {
	_, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "nope"}, clock.Real{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"memory", "postgres", "sqlite"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not list driver %q", err, name)
		}
	}
}

func TestRegister_Embedded(t *testing.T) {
	// memory and sqlite need no server, so Open must fully succeed.
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
	}{
		{name: "memory", cfg: config.DatabaseConfig{Driver: "memory"}},
		{name: "sqlite", cfg: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "fa.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repos, err := store.Open(ctx, tt.cfg, clock.Real{})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			t.Cleanup(func() { repos.Closer.Close() })
			if err := repos.Ping(ctx); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}

func TestRegister_Postgres(t *testing.T) {
	// No server is running, so only check that the driver is registered.
	cfg := config.DatabaseConfig{Driver: "postgres", Host: "127.0.0.1", Port: 1, SSLMode: "disable"}
	_, err := store.Open(context.Background(), cfg, clock.Real{})
	if err == nil {
		t.Fatal("expected error (no DB running), got nil")
	}
	if strings.Contains(err.Error(), "unknown store driver") {
		t.Errorf("expected connection error, got unknown driver error: %v", err)
	}
}
