package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// mintAccountSize is the SPL token mint state size.
const mintAccountSize = 82

// MintDecimals is the decimal count used for every mint this service creates.
const MintDecimals = 9

// CreateMint builds a fresh token mint with the given authority as both mint
// and freeze authority. The mint account is constructed manually: a funded
// system create-account followed by an initialize-mint in one transaction.
func (c *Client) CreateMint(ctx context.Context, authority solana.PublicKey) (solana.PublicKey, error) {
	mint, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("generate mint keypair: %w", err)
	}

	rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, mintAccountSize, c.commitment)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("get rent exemption: %w", err)
	}

	ixs := []solana.Instruction{
		system.NewCreateAccountInstruction(
			rent,
			mintAccountSize,
			solana.TokenProgramID,
			c.wallet.PublicKey(),
			mint.PublicKey(),
		).Build(),
		token.NewInitializeMintInstruction(
			MintDecimals,
			authority,
			authority,
			mint.PublicKey(),
			solana.SysVarRentPubkey,
		).Build(),
	}

	if _, err := c.SendAndConfirm(ctx, ixs, mint); err != nil {
		return solana.PublicKey{}, fmt.Errorf("create mint: %w", err)
	}

	c.logger.Info("mint created", "mint", mint.PublicKey(), "authority", authority)
	return mint.PublicKey(), nil
}

// AssociatedTokenAccount derives the associated token address for an owner,
// which may be off-curve (a program-derived custody authority).
func (c *Client) AssociatedTokenAccount(mint, owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return ata, nil
}

// EnsureAssociatedTokenAccount derives the associated token account and
// creates it, funded by the service wallet, if it does not exist yet.
func (c *Client) EnsureAssociatedTokenAccount(ctx context.Context, mint, owner solana.PublicKey) (solana.PublicKey, error) {
	ata, err := c.AssociatedTokenAccount(mint, owner)
	if err != nil {
		return solana.PublicKey{}, err
	}

	exists, err := c.AccountExists(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if exists {
		return ata, nil
	}

	ix, err := associatedtokenaccount.NewCreateInstruction(
		c.wallet.PublicKey(),
		owner,
		mint,
	).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("build create associated token account: %w", err)
	}
	if _, err := c.SendAndConfirm(ctx, []solana.Instruction{ix}); err != nil {
		// A racing creation is fine; the account is what we wanted.
		if IsAlreadyInUse(err) {
			return ata, nil
		}
		return solana.PublicKey{}, fmt.Errorf("create associated token account: %w", err)
	}

	c.logger.Info("associated token account created", "ata", ata, "mint", mint, "owner", owner)
	return ata, nil
}

// TokenBalance returns the raw token amount held by a token account.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get token balance %s: %w", tokenAccount, err)
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token balance %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}
