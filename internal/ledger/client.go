// Package ledger wraps the connection to the ledger endpoint: signing,
// fee/compute budgeting, submission, confirmation and the bounded
// blockhash-expiry retry. Everything above it goes through this client.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
)

// Budget is the compute allowance attached to a transaction.
type Budget struct {
	Units         uint32 // compute unit limit
	MicroLamports uint64 // priority fee per compute unit
}

// DefaultBudget matches the standard allowance for token operations.
var DefaultBudget = Budget{Units: 200_000, MicroLamports: 100_000}

// MintBudget is the raised allowance used for certificate storage
// initialization, which creates metadata in the same transaction.
var MintBudget = Budget{Units: 500_000, MicroLamports: 800_000}

const (
	// maxSubmitAttempts bounds resubmission after blockhash expiry.
	maxSubmitAttempts = 3
	confirmPollEvery  = 500 * time.Millisecond
)

// Client is the long-lived authenticated channel to the ledger. It is
// read-only after construction and safe for concurrent use.
type Client struct {
	rpc        *rpc.Client
	wallet     solana.PrivateKey
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithCommitment sets the confirmation level.
func WithCommitment(commitment rpc.CommitmentType) Option {
	return func(c *Client) { c.commitment = commitment }
}

// New connects a client to the given RPC endpoint with the service wallet.
func New(endpoint string, wallet solana.PrivateKey, opts ...Option) *Client {
	c := &Client{
		rpc:        rpc.New(endpoint),
		wallet:     wallet,
		commitment: rpc.CommitmentConfirmed,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wallet returns the service wallet's public key.
func (c *Client) Wallet() solana.PublicKey {
	return c.wallet.PublicKey()
}

// SendAndConfirm submits the instructions with the default compute budget.
func (c *Client) SendAndConfirm(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error) {
	return c.SendAndConfirmWithBudget(ctx, ixs, DefaultBudget, signers...)
}

// SendAndConfirmWithBudget attaches a fresh blockhash and the compute budget
// instructions, signs with the wallet plus any extra signers, submits, and
// waits for confirmation. If the blockhash expires before confirmation the
// transaction is rebuilt and resubmitted, up to maxSubmitAttempts; every
// other failure is surfaced immediately.
func (c *Client) SendAndConfirmWithBudget(ctx context.Context, ixs []solana.Instruction, budget Budget, signers ...solana.PrivateKey) (solana.Signature, error) {
	full := make([]solana.Instruction, 0, len(ixs)+2)
	full = append(full, ixs...)
	full = append(full,
		computebudget.NewSetComputeUnitLimitInstruction(budget.Units).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(budget.MicroLamports).Build(),
	)

	var lastErr error
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		sig, err := c.submitOnce(ctx, full, signers)
		if err == nil {
			return sig, nil
		}
		if !IsBlockhashExpired(err) {
			return solana.Signature{}, err
		}
		lastErr = err
		c.logger.Warn("blockhash expired before confirmation, resubmitting",
			"attempt", attempt,
			"max_attempts", maxSubmitAttempts,
		)
	}
	return solana.Signature{}, fault.Wrap(lastErr, fault.LedgerTransient,
		"transaction not confirmed within %d attempts", maxSubmitAttempts)
}

func (c *Client) submitOnce(ctx context.Context, ixs []solana.Instruction, signers []solana.PrivateKey) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(c.wallet.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	keys := map[solana.PublicKey]solana.PrivateKey{c.wallet.PublicKey(): c.wallet}
	for _, s := range signers {
		keys[s.PublicKey()] = s
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := keys[key]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		if IsBlockhashExpired(err) {
			return solana.Signature{}, errBlockhashExpired{cause: err}
		}
		return solana.Signature{}, classifySubmitError(err)
	}

	if err := c.confirm(ctx, sig, recent.Value.LastValidBlockHeight); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// confirm polls the signature status until the commitment is reached or the
// transaction's blockhash expires.
func (c *Client) confirm(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ticker := time.NewTicker(confirmPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return fmt.Errorf("get signature status: %w", err)
		}
		if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return classifySubmitError(fmt.Errorf("transaction %s failed: %v", sig, st.Err))
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
			continue
		}

		// Status unknown: the transaction either hasn't landed yet or its
		// blockhash has expired and it never will.
		height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
		if err != nil {
			return fmt.Errorf("get block height: %w", err)
		}
		if height > lastValidBlockHeight {
			return errBlockhashExpired{cause: fmt.Errorf("block height %d past last valid %d", height, lastValidBlockHeight)}
		}
	}
}

// AccountData fetches raw account data. A missing account reports
// fault.NotFound.
func (c *Client) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		if err == rpc.ErrNotFound {
			return nil, fault.Wrap(err, fault.NotFound, "account %s", addr)
		}
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	if res.Value == nil {
		return nil, fault.New(fault.NotFound, "account %s", addr)
	}
	return res.Value.Data.GetBinary(), nil
}

// AccountExists reports whether the account is present on the ledger.
func (c *Client) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	_, err := c.AccountData(ctx, addr)
	if err != nil {
		if fault.Is(err, fault.NotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Balance returns the lamport balance of an address.
func (c *Client) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, addr, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", addr, err)
	}
	return res.Value, nil
}

// ProgramAccounts returns all accounts of a program whose data starts with
// the given discriminator.
func (c *Client) ProgramAccounts(ctx context.Context, program solana.PublicKey, discriminator []byte) (map[solana.PublicKey][]byte, error) {
	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(discriminator)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts %s: %w", program, err)
	}
	out := make(map[solana.PublicKey][]byte, len(res))
	for _, ka := range res {
		out[ka.Pubkey] = ka.Account.Data.GetBinary()
	}
	return out, nil
}

// FirstSignatureTime returns the ledger timestamp of the most recent
// transaction touching the address.
func (c *Client) FirstSignatureTime(ctx context.Context, addr solana.PublicKey) (time.Time, error) {
	limit := 1
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, addr, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.commitment,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("get signatures for %s: %w", addr, err)
	}
	if len(sigs) == 0 {
		return time.Time{}, fault.New(fault.NotFound, "no signatures for %s", addr)
	}
	if sigs[0].BlockTime != nil {
		return sigs[0].BlockTime.Time(), nil
	}
	bt, err := c.rpc.GetBlockTime(ctx, sigs[0].Slot)
	if err != nil {
		return time.Time{}, fmt.Errorf("get block time for slot %d: %w", sigs[0].Slot, err)
	}
	if bt == nil {
		return time.Time{}, fault.New(fault.NotFound, "block time unavailable for slot %d", sigs[0].Slot)
	}
	return bt.Time(), nil
}
