package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/hydrogen"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/marketplace"
)

// PriceGate validates offered trade prices against the oracle bounds.
type PriceGate interface {
	Validate(ctx context.Context, offeredPrice uint64) error
}

// Orchestrator executes bids against listings. The service wallet is the
// buyer; settlement is denominated in the configured settlement token.
type Orchestrator struct {
	ledger         Ledger
	gate           PriceGate
	deriver        *pda.Deriver
	marketplace    marketplace.Program
	projector      *Projector
	settlementMint solana.PublicKey
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(l Ledger, gate PriceGate, deriver *pda.Deriver, marketplaceProgram marketplace.Program, projector *Projector, settlementMint solana.PublicKey, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		ledger:         l,
		gate:           gate,
		deriver:        deriver,
		marketplace:    marketplaceProgram,
		projector:      projector,
		settlementMint: settlementMint,
		logger:         logger,
	}
}

// PlaceBid buys amount canister tokens from a listing at the offered price.
// Validation happens strictly before submission: positivity, truncation to
// whole units, the oracle gate, then the buyer's settlement balance. After
// confirmation the listing is re-read into a fresh view.
func (o *Orchestrator) PlaceBid(ctx context.Context, listingAddr solana.PublicKey, amount, offeredPrice float64) (*model.Listing, error) {
	if amount <= 0 || offeredPrice <= 0 {
		return nil, fault.New(fault.InputValidation, "amount and price must be positive, got %v at %v", amount, offeredPrice)
	}
	units := uint64(math.Trunc(amount))
	price := uint64(math.Trunc(offeredPrice))
	if units == 0 || price == 0 {
		return nil, fault.New(fault.InputValidation, "amount and price must be whole units, got %v at %v", amount, offeredPrice)
	}

	if err := o.gate.Validate(ctx, price); err != nil {
		return nil, err
	}

	listingData, err := o.ledger.AccountData(ctx, listingAddr)
	if err != nil {
		if fault.Is(err, fault.NotFound) {
			return nil, fault.Wrap(err, fault.NotFound, "listing %s", listingAddr)
		}
		return nil, fmt.Errorf("read listing %s: %w", listingAddr, err)
	}
	listing, err := marketplace.DecodeListing(listingData)
	if err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", listingAddr, err)
	}

	canisterData, err := o.ledger.AccountData(ctx, listing.H2Canister)
	if err != nil {
		return nil, fmt.Errorf("read canister %s: %w", listing.H2Canister, err)
	}
	canister, err := hydrogen.DecodeH2Canister(canisterData)
	if err != nil {
		return nil, fmt.Errorf("decode canister %s: %w", listing.H2Canister, err)
	}

	buyer := o.ledger.Wallet()
	buyerSettlementAta, err := o.ledger.EnsureAssociatedTokenAccount(ctx, o.settlementMint, buyer)
	if err != nil {
		return nil, fmt.Errorf("ensure buyer settlement account: %w", err)
	}
	balance, err := o.ledger.TokenBalance(ctx, buyerSettlementAta)
	if err != nil {
		return nil, fmt.Errorf("read buyer settlement balance: %w", err)
	}
	cost := units * price
	if balance < cost {
		return nil, fault.New(fault.InsufficientFunds,
			"settlement balance %d below trade cost %d (%d at %d)", balance, cost, units, price)
	}

	buyerAta, err := o.ledger.EnsureAssociatedTokenAccount(ctx, canister.TokenMint, buyer)
	if err != nil {
		return nil, fmt.Errorf("ensure buyer token account: %w", err)
	}
	producerSettlementAta, err := o.ledger.EnsureAssociatedTokenAccount(ctx, o.settlementMint, canister.ProducerPubkey)
	if err != nil {
		return nil, fmt.Errorf("ensure producer settlement account: %w", err)
	}
	config, err := o.deriver.MarketConfig()
	if err != nil {
		return nil, err
	}
	transferManager, err := o.deriver.TransferManager()
	if err != nil {
		return nil, err
	}

	ix, err := o.marketplace.SellTokens(units, price, marketplace.SellTokensAccounts{
		Config:                config,
		Listing:               listingAddr,
		Buyer:                 buyer,
		TransferManager:       transferManager,
		TransferManagerAta:    listing.TransferManagerAta,
		BuyerAta:              buyerAta,
		BuyerSettlementAta:    buyerSettlementAta,
		ProducerSettlementAta: producerSettlementAta,
		Producer:              canister.ProducerPubkey,
	})
	if err != nil {
		return nil, err
	}

	sig, err := o.ledger.SendAndConfirm(ctx, []solana.Instruction{ix})
	if err != nil {
		// Unlike provisioning, a trade never treats an existing-account
		// rejection as success.
		return nil, fmt.Errorf("sell tokens: %w", err)
	}
	o.logger.Info("bid settled",
		"listing", listingAddr,
		"amount", units,
		"price", price,
		"signature", sig,
	)

	return o.snapshot(ctx, listingAddr)
}

// snapshot re-reads a listing into its external view after a trade.
func (o *Orchestrator) snapshot(ctx context.Context, listingAddr solana.PublicKey) (*model.Listing, error) {
	data, err := o.ledger.AccountData(ctx, listingAddr)
	if err != nil {
		return nil, fmt.Errorf("re-read listing %s: %w", listingAddr, err)
	}
	state, err := marketplace.DecodeListing(data)
	if err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", listingAddr, err)
	}
	view, err := o.projector.render(ctx, listingAddr, state)
	if err != nil {
		return nil, fmt.Errorf("render post-trade listing: %w", err)
	}
	return &view, nil
}
