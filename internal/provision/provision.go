// Package provision brings the chain of per-batch ledger resources into
// existence exactly once: producer record, market configuration, certificate,
// canister, batch registration and listing. Every stage is a check-then-create
// so a re-invocation after a crash or partial failure resumes at the first
// unsatisfied stage. The ledger's own account-existence checks are the only
// serialization point; a racing duplicate creation converges to success.
package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/ledger"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/hydrogen"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/marketplace"
)

// placeholderListingPrice is the creation-time listing price.
// TODO: price new listings from the oracle bounds instead of the placeholder.
const placeholderListingPrice = 1

// defaultProducerID and defaultProducerName seed the producer record on
// first initialization.
const (
	defaultProducerID   = 1
	defaultProducerName = "Test Producer"
)

// Ledger is the capability the provisioner needs from the ledger client.
type Ledger interface {
	Wallet() solana.PublicKey
	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	SendAndConfirm(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error)
	SendAndConfirmWithBudget(ctx context.Context, ixs []solana.Instruction, budget ledger.Budget, signers ...solana.PrivateKey) (solana.Signature, error)
	CreateMint(ctx context.Context, authority solana.PublicKey) (solana.PublicKey, error)
	AssociatedTokenAccount(mint, owner solana.PublicKey) (solana.PublicKey, error)
	EnsureAssociatedTokenAccount(ctx context.Context, mint, owner solana.PublicKey) (solana.PublicKey, error)
}

// Config tunes the provisioner.
type Config struct {
	// MinAdminLamports is the wallet balance required before any stage runs.
	MinAdminLamports uint64
	// TokenURI is attached to every created token's metadata.
	TokenURI string
}

// Provisioner walks the provisioning stages for telemetry batches.
type Provisioner struct {
	cfg         Config
	ledger      Ledger
	deriver     *pda.Deriver
	hydrogen    hydrogen.Program
	marketplace marketplace.Program
	logger      *slog.Logger
}

// New creates a Provisioner.
func New(cfg Config, l Ledger, deriver *pda.Deriver, hydrogenProgram hydrogen.Program, marketplaceProgram marketplace.Program, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		cfg:         cfg,
		ledger:      l,
		deriver:     deriver,
		hydrogen:    hydrogenProgram,
		marketplace: marketplaceProgram,
		logger:      logger,
	}
}

// Result reports the addresses of a batch's resources and which of them this
// call created. A fully idempotent re-run reports no creations.
type Result struct {
	Producer solana.PublicKey
	Eac      solana.PublicKey
	EacMint  solana.PublicKey
	Canister solana.PublicKey
	H2Mint   solana.PublicKey
	Listing  solana.PublicKey

	CreatedProducer     bool
	CreatedMarketConfig bool
	CreatedEac          bool
	CreatedCanister     bool
	RegisteredBatch     bool
	CreatedListing      bool
}

// EnsureBatch walks the ordered stages for one batch. Each stage reads the
// resource first and only creates it when absent; a failure leaves prior
// resources in place for the next invocation to resume from.
func (p *Provisioner) EnsureBatch(ctx context.Context, batch model.Batch) (*Result, error) {
	authority := p.ledger.Wallet()

	balance, err := p.ledger.Balance(ctx, authority)
	if err != nil {
		return nil, fmt.Errorf("check admin balance: %w", err)
	}
	if balance < p.cfg.MinAdminLamports {
		return nil, fault.New(fault.InsufficientFunds,
			"admin wallet holds %d lamports, need at least %d", balance, p.cfg.MinAdminLamports)
	}

	res := &Result{}

	if err := p.ensureProducer(ctx, authority, res); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchID, err)
	}
	transferManager, err := p.ensureMarketConfig(ctx, authority, res)
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchID, err)
	}
	if err := p.ensureEac(ctx, authority, batch, res); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchID, err)
	}
	if err := p.ensureCanister(ctx, authority, batch, res); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchID, err)
	}
	if err := p.registerBatch(ctx, authority, batch, res); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchID, err)
	}
	if err := p.ensureListing(ctx, authority, batch, transferManager, res); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchID, err)
	}

	p.logger.Info("batch provisioned",
		"batch_id", batch.BatchID,
		"listing", res.Listing,
		"created_eac", res.CreatedEac,
		"created_canister", res.CreatedCanister,
		"created_listing", res.CreatedListing,
	)
	return res, nil
}

func (p *Provisioner) ensureProducer(ctx context.Context, authority solana.PublicKey, res *Result) error {
	producer, err := p.deriver.Producer(authority)
	if err != nil {
		return err
	}
	res.Producer = producer

	if _, err := p.ledger.AccountData(ctx, producer); err == nil {
		return nil
	} else if !fault.Is(err, fault.NotFound) {
		return fmt.Errorf("read producer: %w", err)
	}

	p.logger.Info("producer record absent, initializing", "producer", producer)
	ix, err := p.hydrogen.InitializeProducer(defaultProducerID, defaultProducerName, producer, authority)
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		if fault.Is(err, fault.AlreadyExists) {
			return nil
		}
		return fmt.Errorf("initialize producer: %w", err)
	}
	res.CreatedProducer = true
	return nil
}

func (p *Provisioner) ensureMarketConfig(ctx context.Context, authority solana.PublicKey, res *Result) (solana.PublicKey, error) {
	config, err := p.deriver.MarketConfig()
	if err != nil {
		return solana.PublicKey{}, err
	}
	transferManager, err := p.deriver.TransferManager()
	if err != nil {
		return solana.PublicKey{}, err
	}

	if _, err := p.ledger.AccountData(ctx, config); err == nil {
		return transferManager, nil
	} else if !fault.Is(err, fault.NotFound) {
		return solana.PublicKey{}, fmt.Errorf("read market config: %w", err)
	}

	p.logger.Info("market config absent, initializing", "config", config)
	ix, err := p.marketplace.InitializeConfig(config, authority, transferManager)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		if fault.Is(err, fault.AlreadyExists) {
			return transferManager, nil
		}
		return solana.PublicKey{}, fmt.Errorf("initialize market config: %w", err)
	}
	res.CreatedMarketConfig = true
	return transferManager, nil
}

func (p *Provisioner) ensureEac(ctx context.Context, authority solana.PublicKey, batch model.Batch, res *Result) error {
	eac, err := p.deriver.Eac(res.Producer, batch.BatchID)
	if err != nil {
		return err
	}
	res.Eac = eac

	if data, err := p.ledger.AccountData(ctx, eac); err == nil {
		state, derr := hydrogen.DecodeEac(data)
		if derr != nil {
			return fmt.Errorf("decode eac: %w", derr)
		}
		res.EacMint = state.TokenMint
		return nil
	} else if !fault.Is(err, fault.NotFound) {
		return fmt.Errorf("read eac: %w", err)
	}

	p.logger.Info("certificate absent, initializing", "batch_id", batch.BatchID, "eac", eac)
	mint, err := p.ledger.CreateMint(ctx, authority)
	if err != nil {
		return fmt.Errorf("create eac mint: %w", err)
	}
	metadata, err := p.deriver.Metadata(mint)
	if err != nil {
		return err
	}
	producerAta, err := p.ledger.AssociatedTokenAccount(mint, authority)
	if err != nil {
		return err
	}

	ix, err := p.hydrogen.InitializeEacStorage(
		batch.BatchID,
		"EAC "+batch.BatchID,
		"EAC",
		p.cfg.TokenURI,
		batch.BurnedKwh,
		hydrogen.InitializeEacStorageAccounts{
			Eac:             eac,
			TokenMint:       mint,
			MetadataAccount: metadata,
			ProducerAta:     producerAta,
			Producer:        res.Producer,
			Signer:          authority,
		},
	)
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirmWithBudget(ctx, []solana.Instruction{ix}, ledger.MintBudget); err != nil {
		if fault.Is(err, fault.AlreadyExists) {
			// A racing call won; its mint is authoritative.
			return p.adoptExistingEac(ctx, eac, res)
		}
		return fmt.Errorf("initialize eac storage: %w", err)
	}
	res.EacMint = mint
	res.CreatedEac = true
	return nil
}

func (p *Provisioner) adoptExistingEac(ctx context.Context, eac solana.PublicKey, res *Result) error {
	data, err := p.ledger.AccountData(ctx, eac)
	if err != nil {
		return fmt.Errorf("re-read eac after race: %w", err)
	}
	state, err := hydrogen.DecodeEac(data)
	if err != nil {
		return fmt.Errorf("decode eac after race: %w", err)
	}
	res.EacMint = state.TokenMint
	return nil
}

func (p *Provisioner) ensureCanister(ctx context.Context, authority solana.PublicKey, batch model.Batch, res *Result) error {
	canister, err := p.deriver.Canister(authority, batch.BatchID)
	if err != nil {
		return err
	}
	res.Canister = canister

	if data, err := p.ledger.AccountData(ctx, canister); err == nil {
		state, derr := hydrogen.DecodeH2Canister(data)
		if derr != nil {
			return fmt.Errorf("decode canister: %w", derr)
		}
		res.H2Mint = state.TokenMint
		return nil
	} else if !fault.Is(err, fault.NotFound) {
		return fmt.Errorf("read canister: %w", err)
	}

	p.logger.Info("canister absent, initializing", "batch_id", batch.BatchID, "canister", canister)
	mint, err := p.ledger.CreateMint(ctx, authority)
	if err != nil {
		return fmt.Errorf("create canister mint: %w", err)
	}
	metadata, err := p.deriver.Metadata(mint)
	if err != nil {
		return err
	}
	producerAta, err := p.ledger.AssociatedTokenAccount(mint, authority)
	if err != nil {
		return err
	}

	ix, err := p.hydrogen.InitializeH2Canister(
		batch.BatchID,
		"Hydrogen "+batch.BatchID,
		"H2U",
		p.cfg.TokenURI,
		hydrogen.InitializeH2CanisterAccounts{
			H2Canister:      canister,
			TokenMint:       mint,
			MetadataAccount: metadata,
			ProducerAta:     producerAta,
			Producer:        res.Producer,
			Signer:          authority,
		},
	)
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		if fault.Is(err, fault.AlreadyExists) {
			data, rerr := p.ledger.AccountData(ctx, canister)
			if rerr != nil {
				return fmt.Errorf("re-read canister after race: %w", rerr)
			}
			state, derr := hydrogen.DecodeH2Canister(data)
			if derr != nil {
				return fmt.Errorf("decode canister after race: %w", derr)
			}
			res.H2Mint = state.TokenMint
			return nil
		}
		return fmt.Errorf("initialize canister: %w", err)
	}
	res.H2Mint = mint
	res.CreatedCanister = true
	return nil
}

// registerBatch binds the certificate and canister, burning certificate
// capacity into minted canister tokens. The program's replay rejection is
// treated as success.
func (p *Provisioner) registerBatch(ctx context.Context, authority solana.PublicKey, batch model.Batch, res *Result) error {
	producerH2Ata, err := p.ledger.AssociatedTokenAccount(res.H2Mint, authority)
	if err != nil {
		return err
	}
	producerEacAta, err := p.ledger.AssociatedTokenAccount(res.EacMint, authority)
	if err != nil {
		return err
	}

	ix, err := p.hydrogen.ProducerRegisterBatch(batch.BatchID, batch.BurnedKwh, hydrogen.ProducerRegisterBatchAccounts{
		Producer:       res.Producer,
		H2Canister:     res.Canister,
		Eac:            res.Eac,
		H2Mint:         res.H2Mint,
		EacMint:        res.EacMint,
		ProducerH2Ata:  producerH2Ata,
		ProducerEacAta: producerEacAta,
		Authority:      authority,
	})
	if err != nil {
		return err
	}

	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		if ledger.HasCustomCode(err, marketplace.ErrCodeBatchAlreadyRegistered) || fault.Is(err, fault.AlreadyExists) {
			p.logger.Info("batch already registered", "batch_id", batch.BatchID)
			return nil
		}
		return fmt.Errorf("register batch: %w", err)
	}
	res.RegisteredBatch = true
	return nil
}

func (p *Provisioner) ensureListing(ctx context.Context, authority solana.PublicKey, batch model.Batch, transferManager solana.PublicKey, res *Result) error {
	listing, err := p.deriver.Listing(res.Canister)
	if err != nil {
		return err
	}
	res.Listing = listing

	custodyAta, err := p.ledger.EnsureAssociatedTokenAccount(ctx, res.H2Mint, transferManager)
	if err != nil {
		return fmt.Errorf("ensure custody token account: %w", err)
	}

	if _, err := p.ledger.AccountData(ctx, listing); err == nil {
		return nil
	} else if !fault.Is(err, fault.NotFound) {
		return fmt.Errorf("read listing: %w", err)
	}

	data, err := p.ledger.AccountData(ctx, res.Canister)
	if err != nil {
		return fmt.Errorf("read canister before listing: %w", err)
	}
	state, err := hydrogen.DecodeH2Canister(data)
	if err != nil {
		return fmt.Errorf("decode canister before listing: %w", err)
	}
	if state.AvailableHydrogen == 0 {
		return fault.New(fault.LedgerFailure, "no available hydrogen in canister for batch %s", batch.BatchID)
	}

	producerAta, err := p.ledger.AssociatedTokenAccount(res.H2Mint, authority)
	if err != nil {
		return err
	}

	p.logger.Info("listing absent, listing tokens",
		"batch_id", batch.BatchID,
		"amount", state.AvailableHydrogen,
	)
	ix, err := p.marketplace.ListTokens(state.AvailableHydrogen, placeholderListingPrice, marketplace.ListTokensAccounts{
		Listing:            listing,
		ProducerAuthority:  authority,
		Producer:           res.Producer,
		H2Canister:         res.Canister,
		ProducerAta:        producerAta,
		TransferManagerAta: custodyAta,
	})
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		if fault.Is(err, fault.AlreadyExists) {
			return nil
		}
		return fmt.Errorf("list tokens: %w", err)
	}
	res.CreatedListing = true
	return nil
}
