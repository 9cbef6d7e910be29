package provision

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/hydrogen"
)

// RenameProducer updates the producer record's display name.
func (p *Provisioner) RenameProducer(ctx context.Context, name string) error {
	if name == "" {
		return fault.New(fault.InputValidation, "producer name must not be empty")
	}
	authority := p.ledger.Wallet()
	producer, err := p.deriver.Producer(authority)
	if err != nil {
		return err
	}
	ix, err := p.hydrogen.UpdateProducerData(name, producer, authority)
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		return fmt.Errorf("update producer data: %w", err)
	}
	return nil
}

// AddCertificateCapacity raises a certificate's available kilowatts,
// recording additional attested energy for the batch.
func (p *Provisioner) AddCertificateCapacity(ctx context.Context, batchID string, amount uint64) error {
	if amount == 0 {
		return fault.New(fault.InputValidation, "amount must be positive")
	}
	eac, err := p.eacForBatch(ctx, batchID)
	if err != nil {
		return err
	}
	ix, err := p.hydrogen.AddKilowattsToEac(amount, eac, p.ledger.Wallet())
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		return fmt.Errorf("add kilowatts to eac: %w", err)
	}
	return nil
}

// ReduceCertificateCapacity lowers a certificate's available kilowatts.
func (p *Provisioner) ReduceCertificateCapacity(ctx context.Context, batchID string, amount uint64) error {
	if amount == 0 {
		return fault.New(fault.InputValidation, "amount must be positive")
	}
	eac, err := p.eacForBatch(ctx, batchID)
	if err != nil {
		return err
	}
	ix, err := p.hydrogen.SubstractKilowattsFromEac(amount, eac, p.ledger.Wallet())
	if err != nil {
		return err
	}
	if _, err := p.ledger.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		return fmt.Errorf("substract kilowatts from eac: %w", err)
	}
	return nil
}

// eacForBatch derives the certificate address and confirms it exists.
func (p *Provisioner) eacForBatch(ctx context.Context, batchID string) (solana.PublicKey, error) {
	producer, err := p.deriver.Producer(p.ledger.Wallet())
	if err != nil {
		return solana.PublicKey{}, err
	}
	eac, err := p.deriver.Eac(producer, batchID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	data, err := p.ledger.AccountData(ctx, eac)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("read eac for batch %s: %w", batchID, err)
	}
	if _, err := hydrogen.DecodeEac(data); err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode eac for batch %s: %w", batchID, err)
	}
	return eac, nil
}
