package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRPCURL            = "https://api.devnet.solana.com"
	DefaultCommitment        = "confirmed"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultListingFloor      = 8
	DefaultMinAdminLamports  = 500_000_000 // 0.5 SOL
	DefaultProvisionInterval = 15 * time.Minute
	DefaultTokenURI          = "https://example.com/metadata.json"
	DefaultIdentityTimeout   = 10 * time.Second
	DefaultHealthPort        = 8080
	DefaultHealthPath        = "/healthz"
)

func (c *ServiceConfig) applyDefaults() {
	// Ledger defaults
	if c.Ledger.RPCURL == "" {
		c.Ledger.RPCURL = DefaultRPCURL
	}
	if c.Ledger.Commitment == "" {
		c.Ledger.Commitment = DefaultCommitment
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Market defaults
	if c.Market.ListingFloor == 0 {
		c.Market.ListingFloor = DefaultListingFloor
	}
	if c.Market.MinAdminLamports == 0 {
		c.Market.MinAdminLamports = DefaultMinAdminLamports
	}
	if c.Market.ProvisionInterval == 0 {
		c.Market.ProvisionInterval = DefaultProvisionInterval
	}
	if c.Market.TokenURI == "" {
		c.Market.TokenURI = DefaultTokenURI
	}

	// Identity defaults
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = DefaultIdentityTimeout
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}
