// Package pda derives the program-derived addresses that hold per-batch state
// on the ledger. Every derivation is pure and must match the on-chain
// programs' own seed layout byte for byte, since the programs recompute the
// same addresses to authorize access.
package pda

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// TokenMetadataProgramID is the Metaplex token metadata program.
var TokenMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// Seed namespaces used by the deployed programs.
const (
	seedProducer        = "producer"
	seedEac             = "eac"
	seedCanister        = "h2_canister"
	seedListing         = "listing"
	seedMarketConfig    = "config"
	seedTransferManager = "transfer_manager"
	seedOracleConfig    = "oracle_config"
	seedOraclePrice     = "oracle_price"
	seedMetadata        = "metadata"
)

// Deriver computes addresses under the three deployed programs.
type Deriver struct {
	hydrogen    solana.PublicKey
	marketplace solana.PublicKey
	oracle      solana.PublicKey
}

// New creates a Deriver bound to the given program ids.
func New(hydrogen, marketplace, oracle solana.PublicKey) *Deriver {
	return &Deriver{hydrogen: hydrogen, marketplace: marketplace, oracle: oracle}
}

func derive(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive address: %w", err)
	}
	return addr, nil
}

// Producer returns the producer record address for an authority.
func (d *Deriver) Producer(authority solana.PublicKey) (solana.PublicKey, error) {
	return derive(d.hydrogen, []byte(seedProducer), authority.Bytes())
}

// Eac returns the certificate address for a producer and batch.
func (d *Deriver) Eac(producer solana.PublicKey, batchID string) (solana.PublicKey, error) {
	return derive(d.hydrogen, []byte(seedEac), producer.Bytes(), []byte(batchID))
}

// Canister returns the hydrogen canister address for an authority and batch.
func (d *Deriver) Canister(authority solana.PublicKey, batchID string) (solana.PublicKey, error) {
	return derive(d.hydrogen, []byte(seedCanister), authority.Bytes(), []byte(batchID))
}

// Listing returns the listing address for a canister. One listing per
// canister: the derivation is a function of the canister address alone.
func (d *Deriver) Listing(canister solana.PublicKey) (solana.PublicKey, error) {
	return derive(d.marketplace, []byte(seedListing), canister.Bytes())
}

// MarketConfig returns the marketplace configuration singleton address.
func (d *Deriver) MarketConfig() (solana.PublicKey, error) {
	return derive(d.marketplace, []byte(seedMarketConfig))
}

// TransferManager returns the custody authority singleton address.
func (d *Deriver) TransferManager() (solana.PublicKey, error) {
	return derive(d.marketplace, []byte(seedTransferManager))
}

// OracleConfig returns the oracle configuration singleton address.
func (d *Deriver) OracleConfig() (solana.PublicKey, error) {
	return derive(d.oracle, []byte(seedOracleConfig))
}

// OraclePrice returns the oracle price singleton address.
func (d *Deriver) OraclePrice() (solana.PublicKey, error) {
	return derive(d.oracle, []byte(seedOraclePrice))
}

// Metadata returns the Metaplex metadata address for a token mint.
func (d *Deriver) Metadata(mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(TokenMetadataProgramID, []byte(seedMetadata), TokenMetadataProgramID.Bytes(), mint.Bytes())
}
