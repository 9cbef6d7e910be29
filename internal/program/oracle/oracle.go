// Package oracle builds instructions for and decodes state of the deployed
// price oracle program.
package oracle

import (
	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/anchor"
)

// ErrCodeInvalidPriceRange is the program's declared custom error code.
const ErrCodeInvalidPriceRange = 6000

// Program builds instructions against a deployed program id.
type Program struct {
	ID solana.PublicKey
}

// Config is the oracle configuration singleton.
type Config struct {
	Admin solana.PublicKey
}

// Price is the oracle price singleton. The program enforces min < max before
// every write.
type Price struct {
	MinPricePerKg uint64
	MaxPricePerKg uint64
	LastUpdated   int64
}

// DecodeConfig decodes the configuration account.
func DecodeConfig(data []byte) (Config, error) {
	var c Config
	err := anchor.DecodeAccount("OracleConfig", data, &c)
	return c, err
}

// DecodePrice decodes the price account.
func DecodePrice(data []byte) (Price, error) {
	var p Price
	err := anchor.DecodeAccount("OraclePrice", data, &p)
	return p, err
}

// InitConfig creates the configuration and price singletons with the caller
// as admin and zero price bounds.
func (p Program) InitConfig(oraclePrice, oracleConfig, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("init_config", nil)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(oraclePrice).WRITE(),
		solana.Meta(oracleConfig).WRITE(),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// UpdatePrice sets new bounds; the program requires the admin signature and
// newMin < newMax.
func (p Program) UpdatePrice(newMin, newMax uint64, oracleConfig, oraclePrice, admin solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("update_price", struct {
		NewMin uint64
		NewMax uint64
	}{newMin, newMax})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(oracleConfig),
		solana.Meta(oraclePrice).WRITE(),
		solana.Meta(admin).SIGNER(),
	}, data), nil
}

// UpdateConfig rotates the oracle admin. The instruction name carries the
// deployed program's spelling.
func (p Program) UpdateConfig(newAdmin, oracleConfig, admin solana.PublicKey) (solana.Instruction, error) {
	data, err := anchor.EncodeInstruction("update_coinfig", struct {
		NewAdmin solana.PublicKey
	}{newAdmin})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(oracleConfig).WRITE(),
		solana.Meta(admin).SIGNER(),
	}, data), nil
}
