// Package marketplace builds instructions for and decodes state of the
// deployed marketplace program: the market configuration singleton, listings
// and custody-mediated token sales.
package marketplace

import (
	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/anchor"
)

// ErrCodeBatchAlreadyRegistered is the embedded custom error code returned
// when a batch registration is replayed.
const ErrCodeBatchAlreadyRegistered = 1003

// Program builds instructions against a deployed program id.
type Program struct {
	ID solana.PublicKey
}

// MarketConfig is the marketplace configuration singleton.
type MarketConfig struct {
	Authority       solana.PublicKey
	TransferManager solana.PublicKey
}

// Listing is a standing offer to sell a canister's custody balance.
type Listing struct {
	H2Canister         solana.PublicKey
	Price              uint64
	TransferManagerAta solana.PublicKey
}

// DecodeMarketConfig decodes the configuration account.
func DecodeMarketConfig(data []byte) (MarketConfig, error) {
	var c MarketConfig
	err := anchor.DecodeAccount("MarketConfig", data, &c)
	return c, err
}

// DecodeListing decodes a listing account.
func DecodeListing(data []byte) (Listing, error) {
	var l Listing
	err := anchor.DecodeAccount("Listing", data, &l)
	return l, err
}

// ListingDiscriminator exposes the account prefix for program-account scans.
func ListingDiscriminator() []byte {
	return anchor.AccountDiscriminator("Listing")
}

// InitializeConfig creates the configuration singleton and establishes the
// custody authority used by all listings.
func (p Program) InitializeConfig(config, authority, transferManager solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("initialize_config", nil)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(config).WRITE(),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(transferManager).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// ListTokensAccounts carries the account set of the listing instruction.
type ListTokensAccounts struct {
	Listing            solana.PublicKey
	ProducerAuthority  solana.PublicKey
	Producer           solana.PublicKey
	H2Canister         solana.PublicKey
	ProducerAta        solana.PublicKey
	TransferManagerAta solana.PublicKey
}

// ListTokens lists amount canister tokens at the given price, transferring
// them into the custody token account.
func (p Program) ListTokens(amount, price uint64, acc ListTokensAccounts) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("list_tokens", struct {
		Amount uint64
		Price  uint64
	}{amount, price})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(acc.Listing).WRITE(),
		solana.Meta(acc.ProducerAuthority).WRITE().SIGNER(),
		solana.Meta(acc.Producer),
		solana.Meta(acc.H2Canister).WRITE(),
		solana.Meta(acc.ProducerAta).WRITE(),
		solana.Meta(acc.TransferManagerAta).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// SellTokensAccounts carries the account set of the settlement instruction.
// Settlement moves canister tokens from custody to the buyer and settlement
// tokens from the buyer to the producer.
type SellTokensAccounts struct {
	Config                solana.PublicKey
	Listing               solana.PublicKey
	Buyer                 solana.PublicKey
	TransferManager       solana.PublicKey
	TransferManagerAta    solana.PublicKey
	BuyerAta              solana.PublicKey
	BuyerSettlementAta    solana.PublicKey
	ProducerSettlementAta solana.PublicKey
	Producer              solana.PublicKey
}

// SellTokens executes a trade of amount canister tokens at the offered price.
func (p Program) SellTokens(amount, price uint64, acc SellTokensAccounts) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("sell_tokens", struct {
		Amount uint64
		Price  uint64
	}{amount, price})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(acc.Config),
		solana.Meta(acc.Listing).WRITE(),
		solana.Meta(acc.Buyer).WRITE().SIGNER(),
		solana.Meta(acc.TransferManager),
		solana.Meta(acc.TransferManagerAta).WRITE(),
		solana.Meta(acc.BuyerAta).WRITE(),
		solana.Meta(acc.BuyerSettlementAta).WRITE(),
		solana.Meta(acc.ProducerSettlementAta).WRITE(),
		solana.Meta(acc.Producer).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}
