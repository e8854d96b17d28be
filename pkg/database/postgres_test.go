package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
)

func TestNew(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	t.Setenv("STORE_BACKEND", "postgres")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !status.Healthy || status.MaxConns == 0 {
		t.Errorf("Unexpected health status: %+v", status)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// Second run must be a no-op
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}

	db.Close()
	// Double close should not panic
	db.Close()
}

func TestNewWithInvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:             "invalid://url",
			MaxConns:        25,
			MinConns:        5,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("Expected error with invalid database URL, got nil")
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for i, stmt := range schema {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("schema step %d is not idempotent: %s", i+1, strings.SplitN(stmt, "\n", 2)[0])
		}
	}
}
