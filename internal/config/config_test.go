package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
instance:
  id: marketd-test
ledger:
  rpc_url: https://api.devnet.solana.com
  wallet:
    key_file: /tmp/wallet.json
  hydrogen_program_id: Vote111111111111111111111111111111111111111
  marketplace_program_id: Stake11111111111111111111111111111111111111
  oracle_program_id: SysvarC1ock11111111111111111111111111111111
  settlement_mint: So11111111111111111111111111111111111111112
database:
  host: localhost
  name: h2u
  user: h2u
  password: secret
identity:
  base_url: https://auth.example.com
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempFile(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "marketd-test" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "marketd-test")
	}
	if cfg.Ledger.RPCURL != "https://api.devnet.solana.com" {
		t.Errorf("Ledger.RPCURL = %q, want devnet URL", cfg.Ledger.RPCURL)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := strings.Replace(validYAML, "password: secret", "password: ${TEST_DB_PASSWORD}", 1)
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Ledger.Commitment != "confirmed" {
		t.Errorf("Ledger.Commitment = %q, want %q", cfg.Ledger.Commitment, "confirmed")
	}
	if cfg.Market.ListingFloor != 8 {
		t.Errorf("Market.ListingFloor = %d, want 8", cfg.Market.ListingFloor)
	}
	if cfg.Market.MinAdminLamports != 500_000_000 {
		t.Errorf("Market.MinAdminLamports = %d, want 500000000", cfg.Market.MinAdminLamports)
	}
	if cfg.Market.ProvisionInterval != 15*time.Minute {
		t.Errorf("Market.ProvisionInterval = %v, want 15m", cfg.Market.ProvisionInterval)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Health.Port != 8080 {
		t.Errorf("Health.Port = %d, want 8080", cfg.Health.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			"valid", func(y string) string { return y }, "",
		},
		{
			"missing instance id",
			func(y string) string { return strings.Replace(y, "id: marketd-test", "id: \"\"", 1) },
			"instance.id",
		},
		{
			"missing wallet",
			func(y string) string { return strings.Replace(y, "key_file: /tmp/wallet.json", "key_file: \"\"", 1) },
			"ledger.wallet",
		},
		{
			"bad program id",
			func(y string) string {
				return strings.Replace(y, "hydrogen_program_id: Vote111111111111111111111111111111111111111", "hydrogen_program_id: not-an-address", 1)
			},
			"hydrogen_program_id",
		},
		{
			"missing db host",
			func(y string) string { return strings.Replace(y, "host: localhost", "host: \"\"", 1) },
			"database.host",
		},
		{
			"missing identity url",
			func(y string) string { return strings.Replace(y, "base_url: https://auth.example.com", "base_url: \"\"", 1) },
			"identity.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeTempFile(t, tt.mutate(validYAML)))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("LoadAndValidate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadAndValidate error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
