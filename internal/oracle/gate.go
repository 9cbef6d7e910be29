// Package oracle gates trade prices against the on-ledger oracle bounds.
package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	oracleprog "github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/oracle"
)

// Ledger is the capability the gate needs from the ledger client.
type Ledger interface {
	Wallet() solana.PublicKey
	AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	SendAndConfirm(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error)
}

// Gate reads the oracle price singleton and validates offered trade prices
// against it. The singleton is initialized lazily to zero bounds on the first
// read that finds it absent, so a fresh deployment rejects every trade until
// an admin publishes real bounds.
type Gate struct {
	ledger  Ledger
	deriver *pda.Deriver
	program oracleprog.Program
	logger  *slog.Logger
}

// NewGate creates a Gate.
func NewGate(l Ledger, deriver *pda.Deriver, program oracleprog.Program, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{ledger: l, deriver: deriver, program: program, logger: logger}
}

// Current returns the oracle bounds, initializing the configuration and price
// singletons if they do not exist yet.
func (g *Gate) Current(ctx context.Context) (oracleprog.Price, error) {
	priceAddr, err := g.deriver.OraclePrice()
	if err != nil {
		return oracleprog.Price{}, err
	}

	data, err := g.ledger.AccountData(ctx, priceAddr)
	if err == nil {
		return oracleprog.DecodePrice(data)
	}
	if !fault.Is(err, fault.NotFound) {
		return oracleprog.Price{}, fmt.Errorf("read oracle price: %w", err)
	}

	if err := g.initialize(ctx, priceAddr); err != nil {
		return oracleprog.Price{}, err
	}
	return oracleprog.Price{}, nil
}

func (g *Gate) initialize(ctx context.Context, priceAddr solana.PublicKey) error {
	configAddr, err := g.deriver.OracleConfig()
	if err != nil {
		return err
	}

	g.logger.Info("oracle uninitialized, creating with zero bounds", "price", priceAddr)
	ix, err := g.program.InitConfig(priceAddr, configAddr, g.ledger.Wallet())
	if err != nil {
		return err
	}
	if _, err := g.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		if fault.Is(err, fault.AlreadyExists) {
			return nil
		}
		return fmt.Errorf("initialize oracle: %w", err)
	}
	return nil
}

// Validate accepts an offered price inside the current bounds and rejects
// anything outside them.
func (g *Gate) Validate(ctx context.Context, offeredPrice uint64) error {
	bounds, err := g.Current(ctx)
	if err != nil {
		return err
	}
	if offeredPrice < bounds.MinPricePerKg || offeredPrice > bounds.MaxPricePerKg {
		return fault.New(fault.OracleRejection,
			"offered price %d outside oracle range %d-%d",
			offeredPrice, bounds.MinPricePerKg, bounds.MaxPricePerKg)
	}
	return nil
}

// UpdatePrice publishes new bounds. The program enforces the same constraints
// on-ledger; checking here turns a rejected transaction into a clean error
// before any fee is paid.
func (g *Gate) UpdatePrice(ctx context.Context, newMin, newMax uint64) error {
	if newMin >= newMax {
		return fault.New(fault.InputValidation, "invalid bounds: min %d must be below max %d", newMin, newMax)
	}

	priceAddr, err := g.deriver.OraclePrice()
	if err != nil {
		return err
	}
	configAddr, err := g.deriver.OracleConfig()
	if err != nil {
		return err
	}

	if _, err := g.Current(ctx); err != nil {
		return err
	}
	data, err := g.ledger.AccountData(ctx, configAddr)
	if err != nil {
		return fmt.Errorf("read oracle config: %w", err)
	}
	cfg, err := oracleprog.DecodeConfig(data)
	if err != nil {
		return err
	}
	if !cfg.Admin.Equals(g.ledger.Wallet()) {
		return fault.New(fault.Unauthorized, "wallet %s is not the oracle admin %s", g.ledger.Wallet(), cfg.Admin)
	}

	ix, err := g.program.UpdatePrice(newMin, newMax, configAddr, priceAddr, g.ledger.Wallet())
	if err != nil {
		return err
	}
	if _, err := g.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		return fmt.Errorf("update oracle price: %w", err)
	}
	g.logger.Info("oracle bounds updated", "min", newMin, "max", newMax)
	return nil
}

// RotateAdmin hands oracle control to a new admin address.
func (g *Gate) RotateAdmin(ctx context.Context, newAdmin solana.PublicKey) error {
	configAddr, err := g.deriver.OracleConfig()
	if err != nil {
		return err
	}
	data, err := g.ledger.AccountData(ctx, configAddr)
	if err != nil {
		if fault.Is(err, fault.NotFound) {
			return fault.New(fault.NotFound, "oracle not initialized")
		}
		return fmt.Errorf("read oracle config: %w", err)
	}
	cfg, err := oracleprog.DecodeConfig(data)
	if err != nil {
		return err
	}
	if !cfg.Admin.Equals(g.ledger.Wallet()) {
		return fault.New(fault.Unauthorized, "wallet %s is not the oracle admin %s", g.ledger.Wallet(), cfg.Admin)
	}

	ix, err := g.program.UpdateConfig(newAdmin, configAddr, g.ledger.Wallet())
	if err != nil {
		return err
	}
	if _, err := g.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		return fmt.Errorf("rotate oracle admin: %w", err)
	}
	g.logger.Info("oracle admin rotated", "new_admin", newAdmin)
	return nil
}
