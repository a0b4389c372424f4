package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidateWithProgram(t *testing.T) {
	cfg := Defaults()
	cfg.Solana.ProgramID = "CurveProg1111111111111111111111111111111111"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with program id should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Solana.Commitment = "instant"
	cfg.Supabase.PoolMinConns = 50

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "index"

[solana]
rpc_url = "https://rpc.example.com"
program_id = "CurveProg1111111111111111111111111111111111"

[indexer]
poll_interval = "15s"
batch_size = 25
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CURVEMARKET_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CURVEMARKET_INDEXER_BATCH_SIZE", "40")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "index" {
		t.Fatalf("mode = %q, want index", cfg.Mode)
	}
	if cfg.Solana.RPCURL != "https://rpc.example.com" {
		t.Fatalf("rpc_url = %q", cfg.Solana.RPCURL)
	}
	if cfg.Indexer.PollInterval.Duration != 15*time.Second {
		t.Fatalf("poll_interval = %s, want 15s", cfg.Indexer.PollInterval.Duration)
	}
	// Env beats file.
	if cfg.Indexer.BatchSize != 40 {
		t.Fatalf("batch_size = %d, want 40", cfg.Indexer.BatchSize)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
	// Defaults survive for untouched sections.
	if cfg.Supabase.Port != 5432 {
		t.Fatalf("supabase port = %d, want 5432", cfg.Supabase.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"

	red := RedactedConfig(&cfg)
	if red.Supabase.Password != "***" || red.Redis.Password != "***" || red.S3.SecretKey != "***" {
		t.Fatal("secrets not redacted")
	}
	if cfg.Supabase.Password != "hunter2" {
		t.Fatal("original config mutated")
	}
}
