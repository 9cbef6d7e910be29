// Package market renders tradeable listings and executes bids against them.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/hydrogen"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/marketplace"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/provision"
)

// productionDateLayout is the human-readable date attached to listing views.
const productionDateLayout = "January 2, 2006"

// renderConcurrency bounds the per-listing join fan-out.
const renderConcurrency = 8

// Ledger is the capability the market components need from the ledger client.
type Ledger interface {
	Wallet() solana.PublicKey
	AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	SendAndConfirm(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error)
	EnsureAssociatedTokenAccount(ctx context.Context, mint, owner solana.PublicKey) (solana.PublicKey, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	ProgramAccounts(ctx context.Context, program solana.PublicKey, discriminator []byte) (map[solana.PublicKey][]byte, error)
	FirstSignatureTime(ctx context.Context, addr solana.PublicKey) (time.Time, error)
}

// Provisioner creates the full resource chain for a telemetry batch.
type Provisioner interface {
	EnsureBatch(ctx context.Context, batch model.Batch) (*provision.Result, error)
}

// TelemetrySource supplies batches to provision when the book runs thin.
type TelemetrySource interface {
	NextBatches(count int) []model.Batch
}

// Projector enumerates listing resources and joins each with its canister,
// custody balance and certificate into the external listing view.
type Projector struct {
	ledger        Ledger
	deriver       *pda.Deriver
	marketplaceID solana.PublicKey
	provisioner   Provisioner
	source        TelemetrySource
	floor         int
	logger        *slog.Logger
}

// NewProjector creates a Projector. provisioner and source may be nil, which
// disables the listing floor top-up.
func NewProjector(l Ledger, deriver *pda.Deriver, marketplaceID solana.PublicKey, provisioner Provisioner, source TelemetrySource, floor int, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		ledger:        l,
		deriver:       deriver,
		marketplaceID: marketplaceID,
		provisioner:   provisioner,
		source:        source,
		floor:         floor,
		logger:        logger,
	}
}

// Listings returns the current listing views, provisioning synthetic batches
// first if fewer than the floor exist.
func (p *Projector) Listings(ctx context.Context) ([]model.Listing, error) {
	scan, err := p.ledger.ProgramAccounts(ctx, p.marketplaceID, marketplace.ListingDiscriminator())
	if err != nil {
		return nil, fmt.Errorf("enumerate listings: %w", err)
	}

	if len(scan) < p.floor && p.provisioner != nil && p.source != nil {
		p.topUp(ctx, p.floor-len(scan))
		scan, err = p.ledger.ProgramAccounts(ctx, p.marketplaceID, marketplace.ListingDiscriminator())
		if err != nil {
			return nil, fmt.Errorf("re-enumerate listings: %w", err)
		}
	}

	type row struct {
		addr  solana.PublicKey
		state marketplace.Listing
	}
	rows := make([]row, 0, len(scan))
	for addr, raw := range scan {
		state, derr := marketplace.DecodeListing(raw)
		if derr != nil {
			p.logger.Warn("skipping undecodable listing", "listing", addr, "err", derr)
			continue
		}
		rows = append(rows, row{addr: addr, state: state})
	}

	views := make([]model.Listing, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(renderConcurrency)
	for i, r := range rows {
		g.Go(func() error {
			view, rerr := p.render(gctx, r.addr, r.state)
			if rerr != nil {
				return rerr
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(views, func(i, j int) bool { return views[i].PublicKey < views[j].PublicKey })
	return views, nil
}

// topUp provisions count synthetic batches. Individual failures are logged
// and skipped so one bad batch cannot starve the book.
func (p *Projector) topUp(ctx context.Context, count int) {
	batches := p.source.NextBatches(count)
	p.logger.Info("listing floor not met, provisioning synthetic batches", "count", len(batches))

	var wg sync.WaitGroup
	for _, batch := range batches {
		wg.Add(1)
		go func(batch model.Batch) {
			defer wg.Done()
			if _, err := p.provisioner.EnsureBatch(ctx, batch); err != nil {
				p.logger.Warn("failed to provision synthetic batch", "batch_id", batch.BatchID, "err", err)
			}
		}(batch)
	}
	wg.Wait()
}

// render joins one listing with its canister, custody balance and certificate.
// A missing certificate degrades to the sentinel mint instead of failing the
// row.
func (p *Projector) render(ctx context.Context, addr solana.PublicKey, state marketplace.Listing) (model.Listing, error) {
	canisterData, err := p.ledger.AccountData(ctx, state.H2Canister)
	if err != nil {
		return model.Listing{}, fmt.Errorf("read canister %s: %w", state.H2Canister, err)
	}
	canister, err := hydrogen.DecodeH2Canister(canisterData)
	if err != nil {
		return model.Listing{}, fmt.Errorf("decode canister %s: %w", state.H2Canister, err)
	}

	balance, err := p.ledger.TokenBalance(ctx, state.TransferManagerAta)
	if err != nil {
		return model.Listing{}, fmt.Errorf("read custody balance for %s: %w", addr, err)
	}

	view := model.Listing{
		PublicKey:          addr.String(),
		CanisterPublicKey:  state.H2Canister.String(),
		Price:              state.Price,
		Amount:             balance,
		TransferManagerAta: state.TransferManagerAta.String(),
		Producer:           canister.ProducerPubkey.String(),
		TokenMint:          canister.TokenMint.String(),
		BatchID:            canister.BatchID,
		ProductionDate:     p.productionDate(ctx, state.H2Canister),
		EacMint:            p.certificateMint(ctx, canister),
	}
	return view, nil
}

// productionDate derives a display date from the canister's first ledger
// signature, falling back to now.
func (p *Projector) productionDate(ctx context.Context, canister solana.PublicKey) string {
	ts, err := p.ledger.FirstSignatureTime(ctx, canister)
	if err != nil {
		return time.Now().Format(productionDateLayout)
	}
	return ts.Format(productionDateLayout)
}

// certificateMint resolves the certificate token mint for a canister's batch.
func (p *Projector) certificateMint(ctx context.Context, canister hydrogen.H2Canister) string {
	producer, err := p.deriver.Producer(canister.ProducerPubkey)
	if err != nil {
		return model.UnknownEacMint
	}
	eacAddr, err := p.deriver.Eac(producer, canister.BatchID)
	if err != nil {
		return model.UnknownEacMint
	}
	data, err := p.ledger.AccountData(ctx, eacAddr)
	if err != nil {
		if !fault.Is(err, fault.NotFound) {
			p.logger.Warn("certificate lookup failed", "eac", eacAddr, "err", err)
		}
		return model.UnknownEacMint
	}
	eac, err := hydrogen.DecodeEac(data)
	if err != nil {
		p.logger.Warn("certificate undecodable", "eac", eacAddr, "err", err)
		return model.UnknownEacMint
	}
	return eac.TokenMint.String()
}
