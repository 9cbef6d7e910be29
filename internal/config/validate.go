package config

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Ledger.validate(); err != nil {
		return err
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Market.ListingFloor < 1 {
		return errors.New("market.listing_floor must be >= 1")
	}
	if c.Market.ProvisionInterval <= 0 {
		return errors.New("market.provision_interval must be positive")
	}

	if c.Identity.BaseURL == "" {
		return errors.New("identity.base_url is required")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (l *LedgerConfig) validate() error {
	if l.RPCURL == "" {
		return errors.New("ledger.rpc_url is required")
	}
	if l.Wallet.KeyFile == "" && l.Wallet.SecretKey == "" {
		return errors.New("ledger.wallet.key_file or ledger.wallet.secret_key is required")
	}

	for field, value := range map[string]string{
		"ledger.hydrogen_program_id":    l.HydrogenProgramID,
		"ledger.marketplace_program_id": l.MarketplaceProgramID,
		"ledger.oracle_program_id":      l.OracleProgramID,
		"ledger.settlement_mint":        l.SettlementMint,
	} {
		if value == "" {
			return fmt.Errorf("%s is required", field)
		}
		if _, err := solana.PublicKeyFromBase58(value); err != nil {
			return fmt.Errorf("%s is not a valid address: %w", field, err)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
