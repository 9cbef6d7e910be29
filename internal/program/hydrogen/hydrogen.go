// Package hydrogen builds instructions for and decodes state of the deployed
// hydrogen program: producer records, energy attestation certificates and
// hydrogen canisters.
package hydrogen

import (
	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/anchor"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
)

// ErrCodeUnauthorized is the program's declared custom error code.
const ErrCodeUnauthorized = 6000

// Program builds instructions against a deployed program id.
type Program struct {
	ID solana.PublicKey
}

// Producer is the on-ledger producer record.
type Producer struct {
	ID        uint64
	Name      string
	Authority solana.PublicKey
}

// Eac is the on-ledger energy attestation certificate. The invariant
// AvailableKwts + BurnedKwts == CertificateCapacityKwts holds after creation.
type Eac struct {
	CertificateCapacityKwts uint64
	AvailableKwts           uint64
	BurnedKwts              uint64
	ProducerPubkey          solana.PublicKey
	TokenMint               solana.PublicKey
}

// H2Canister is the on-ledger hydrogen canister record.
type H2Canister struct {
	BatchID           string
	TotalAmount       uint64
	AvailableHydrogen uint64
	ProducerPubkey    solana.PublicKey
	TokenMint         solana.PublicKey
}

// DecodeProducer decodes a producer account.
func DecodeProducer(data []byte) (Producer, error) {
	var p Producer
	err := anchor.DecodeAccount("Producer", data, &p)
	return p, err
}

// DecodeEac decodes a certificate account.
func DecodeEac(data []byte) (Eac, error) {
	var e Eac
	err := anchor.DecodeAccount("Eac", data, &e)
	return e, err
}

// DecodeH2Canister decodes a canister account.
func DecodeH2Canister(data []byte) (H2Canister, error) {
	var c H2Canister
	err := anchor.DecodeAccount("H2Canister", data, &c)
	return c, err
}

// InitializeProducer creates the producer record for an authority.
func (p Program) InitializeProducer(id uint64, name string, producer, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("initialize_producer", struct {
		ID   uint64
		Name string
	}{id, name})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(producer).WRITE(),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// UpdateProducerData renames an existing producer record.
func (p Program) UpdateProducerData(name string, producer, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("update_producer_data", struct {
		Name string
	}{name})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(producer).WRITE(),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// InitializeEacStorageAccounts carries the account set of the certificate
// initialization instruction.
type InitializeEacStorageAccounts struct {
	Eac             solana.PublicKey
	TokenMint       solana.PublicKey
	MetadataAccount solana.PublicKey
	ProducerAta     solana.PublicKey
	Producer        solana.PublicKey
	Signer          solana.PublicKey
}

// InitializeEacStorage creates the certificate storage for a batch with its
// initial capacity.
func (p Program) InitializeEacStorage(batchID, tokenName, tokenSymbol, tokenURI string, totalAmount uint64, acc InitializeEacStorageAccounts) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("initialize_eac_storage", struct {
		ID          string
		TokenName   string
		TokenSymbol string
		TokenURI    string
		TotalAmount uint64
	}{batchID, tokenName, tokenSymbol, tokenURI, totalAmount})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(acc.Eac).WRITE(),
		solana.Meta(acc.TokenMint).WRITE(),
		solana.Meta(acc.MetadataAccount).WRITE(),
		solana.Meta(acc.ProducerAta).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pda.TokenMetadataProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(acc.Producer),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(acc.Signer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// AddKilowattsToEac raises a certificate's available capacity.
func (p Program) AddKilowattsToEac(amount uint64, eac, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("add_kilowatts_to_eac", struct {
		Amount uint64
	}{amount})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(eac).WRITE(),
		solana.Meta(authority).WRITE().SIGNER(),
	}, data), nil
}

// SubstractKilowattsFromEac lowers a certificate's available capacity.
// The instruction name matches the deployed program.
func (p Program) SubstractKilowattsFromEac(amount uint64, eac, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("substract_kilowatts_from_eac", struct {
		Amount uint64
	}{amount})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(eac).WRITE(),
		solana.Meta(authority).SIGNER(),
	}, data), nil
}

// InitializeH2CanisterAccounts carries the account set of the canister
// initialization instruction.
type InitializeH2CanisterAccounts struct {
	H2Canister      solana.PublicKey
	TokenMint       solana.PublicKey
	MetadataAccount solana.PublicKey
	ProducerAta     solana.PublicKey
	Producer        solana.PublicKey
	Signer          solana.PublicKey
}

// InitializeH2Canister creates the canister record for a batch. The canister
// amount is determined on-ledger from the certificate at registration time.
func (p Program) InitializeH2Canister(batchID, tokenName, tokenSymbol, tokenURI string, acc InitializeH2CanisterAccounts) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("initialize_h2_canister", struct {
		ID          string
		TokenName   string
		TokenSymbol string
		TokenURI    string
	}{batchID, tokenName, tokenSymbol, tokenURI})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(acc.H2Canister).WRITE(),
		solana.Meta(acc.TokenMint).WRITE(),
		solana.Meta(acc.MetadataAccount).WRITE(),
		solana.Meta(acc.ProducerAta).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pda.TokenMetadataProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(acc.Producer),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(acc.Signer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// ProducerRegisterBatchAccounts carries the account set of the batch
// registration instruction.
type ProducerRegisterBatchAccounts struct {
	Producer       solana.PublicKey
	H2Canister     solana.PublicKey
	Eac            solana.PublicKey
	H2Mint         solana.PublicKey
	EacMint        solana.PublicKey
	ProducerH2Ata  solana.PublicKey
	ProducerEacAta solana.PublicKey
	Authority      solana.PublicKey
}

// ProducerRegisterBatch binds a certificate and a canister, burning available
// certificate capacity into minted canister tokens.
func (p Program) ProducerRegisterBatch(batchID string, burnedKwh uint64, acc ProducerRegisterBatchAccounts) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("producer_register_batch", struct {
		ID        string
		BurnedKwh uint64
	}{batchID, burnedKwh})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(acc.Producer).WRITE(),
		solana.Meta(acc.H2Canister).WRITE(),
		solana.Meta(acc.Eac).WRITE(),
		solana.Meta(acc.H2Mint).WRITE(),
		solana.Meta(acc.EacMint).WRITE(),
		solana.Meta(acc.ProducerH2Ata).WRITE(),
		solana.Meta(acc.ProducerEacAta).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pda.TokenMetadataProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(acc.Authority).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}
