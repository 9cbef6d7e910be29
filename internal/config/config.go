// Package config loads the marketplace service configuration from YAML with
// environment variable expansion, default application and validation.
package config

import "time"

// ServiceConfig is the root configuration for marketd.
type ServiceConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Database DBConfig       `yaml:"database"`
	Market   MarketConfig   `yaml:"market"`
	Identity IdentityConfig `yaml:"identity"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this service instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LedgerConfig holds the connection to the ledger and the deployed programs.
type LedgerConfig struct {
	RPCURL     string       `yaml:"rpc_url"`
	Commitment string       `yaml:"commitment"`
	Wallet     WalletConfig `yaml:"wallet"`

	HydrogenProgramID    string `yaml:"hydrogen_program_id"`
	MarketplaceProgramID string `yaml:"marketplace_program_id"`
	OracleProgramID      string `yaml:"oracle_program_id"`

	// SettlementMint is the settlement token (USDC) mint address.
	SettlementMint string `yaml:"settlement_mint"`
}

// WalletConfig locates the service signing keypair. Exactly one source is
// used; the inline key takes precedence.
type WalletConfig struct {
	KeyFile   string `yaml:"key_file"`
	SecretKey string `yaml:"secret_key"`
}

// DBConfig holds Postgres connection settings for the user store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MarketConfig tunes provisioning and listing maintenance.
type MarketConfig struct {
	// ListingFloor is the minimum number of listings the projector keeps
	// available, synthesizing telemetry batches when below it.
	ListingFloor int `yaml:"listing_floor"`
	// MinAdminLamports is the admin wallet balance required before any
	// provisioning stage executes.
	MinAdminLamports uint64 `yaml:"min_admin_lamports"`
	// ProvisionInterval is how often marketd tops listings up to the floor.
	ProvisionInterval time.Duration `yaml:"provision_interval"`
	// TokenURI is the metadata URI attached to created token mints.
	TokenURI string `yaml:"token_uri"`
}

// IdentityConfig holds the identity-assertion service connection.
type IdentityConfig struct {
	BaseURL   string        `yaml:"base_url"`
	AppID     string        `yaml:"app_id"`
	AppSecret string        `yaml:"app_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
