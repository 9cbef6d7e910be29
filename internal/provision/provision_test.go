package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/anchor"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/ledger"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/hydrogen"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/marketplace"
)

var (
	hydrogenID    = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	marketplaceID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")
	oracleID      = solana.MustPublicKeyFromBase58("Feature111111111111111111111111111111111111")
)

// fakeLedger interprets submitted instructions against an in-memory account
// map, mirroring the ledger's account-existence behavior.
type fakeLedger struct {
	wallet     solana.PrivateKey
	lamports   uint64
	accounts   map[solana.PublicKey][]byte
	registered map[string]bool // canister address -> batch registered

	submissions []string // discriminator names, in submission order
}

func newFakeLedger(t *testing.T) *fakeLedger {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	return &fakeLedger{
		wallet:     key,
		lamports:   1_000_000_000,
		accounts:   make(map[solana.PublicKey][]byte),
		registered: make(map[string]bool),
	}
}

func encodeAccount(t *testing.T, name string, v any) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(anchor.AccountDiscriminator(name))
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return buf.Bytes()
}

func (f *fakeLedger) Wallet() solana.PublicKey { return f.wallet.PublicKey() }

func (f *fakeLedger) Balance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	return f.lamports, nil
}

func (f *fakeLedger) AccountData(_ context.Context, addr solana.PublicKey) ([]byte, error) {
	data, ok := f.accounts[addr]
	if !ok {
		return nil, fault.New(fault.NotFound, "account %s", addr)
	}
	return data, nil
}

func (f *fakeLedger) SendAndConfirm(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) (solana.Signature, error) {
	return f.SendAndConfirmWithBudget(ctx, ixs, ledger.DefaultBudget, signers...)
}

func (f *fakeLedger) SendAndConfirmWithBudget(_ context.Context, ixs []solana.Instruction, _ ledger.Budget, _ ...solana.PrivateKey) (solana.Signature, error) {
	for _, ix := range ixs {
		if err := f.apply(ix); err != nil {
			return solana.Signature{}, err
		}
	}
	return solana.Signature{}, nil
}

func (f *fakeLedger) apply(ix solana.Instruction) error {
	data, err := ix.Data()
	if err != nil {
		return err
	}
	metas := ix.Accounts()
	disc := data[:8]

	switch {
	case bytes.Equal(disc, anchor.InstructionDiscriminator("initialize_producer")):
		f.submissions = append(f.submissions, "initialize_producer")
		addr := metas[0].PublicKey
		if _, exists := f.accounts[addr]; exists {
			return errors.New("Allocate: account already in use")
		}
		f.accounts[addr] = encodeAccountRaw("Producer", hydrogen.Producer{
			ID: 1, Name: "Test Producer", Authority: metas[1].PublicKey,
		})

	case bytes.Equal(disc, anchor.InstructionDiscriminator("initialize_config")):
		f.submissions = append(f.submissions, "initialize_config")
		addr := metas[0].PublicKey
		if _, exists := f.accounts[addr]; exists {
			return errors.New("Allocate: account already in use")
		}
		f.accounts[addr] = encodeAccountRaw("MarketConfig", marketplace.MarketConfig{
			Authority: metas[1].PublicKey, TransferManager: metas[2].PublicKey,
		})

	case bytes.Equal(disc, anchor.InstructionDiscriminator("initialize_eac_storage")):
		f.submissions = append(f.submissions, "initialize_eac_storage")
		addr := metas[0].PublicKey
		if _, exists := f.accounts[addr]; exists {
			return errors.New("Allocate: account already in use")
		}
		var args struct {
			ID          string
			TokenName   string
			TokenSymbol string
			TokenURI    string
			TotalAmount uint64
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		f.accounts[addr] = encodeAccountRaw("Eac", hydrogen.Eac{
			CertificateCapacityKwts: args.TotalAmount,
			AvailableKwts:           args.TotalAmount,
			ProducerPubkey:          metas[7].PublicKey,
			TokenMint:               metas[1].PublicKey,
		})

	case bytes.Equal(disc, anchor.InstructionDiscriminator("initialize_h2_canister")):
		f.submissions = append(f.submissions, "initialize_h2_canister")
		addr := metas[0].PublicKey
		if _, exists := f.accounts[addr]; exists {
			return errors.New("Allocate: account already in use")
		}
		var args struct {
			ID          string
			TokenName   string
			TokenSymbol string
			TokenURI    string
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		f.accounts[addr] = encodeAccountRaw("H2Canister", hydrogen.H2Canister{
			BatchID:        args.ID,
			ProducerPubkey: metas[9].PublicKey,
			TokenMint:      metas[1].PublicKey,
		})

	case bytes.Equal(disc, anchor.InstructionDiscriminator("producer_register_batch")):
		f.submissions = append(f.submissions, "producer_register_batch")
		canisterAddr := metas[1].PublicKey
		if f.registered[canisterAddr.String()] {
			return errors.New("Error processing Instruction 0: custom program error: 0x3eb")
		}
		var args struct {
			ID        string
			BurnedKwh uint64
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		state, err := hydrogen.DecodeH2Canister(f.accounts[canisterAddr])
		if err != nil {
			return err
		}
		state.TotalAmount = args.BurnedKwh
		state.AvailableHydrogen = args.BurnedKwh
		f.accounts[canisterAddr] = encodeAccountRaw("H2Canister", state)

		eacState, err := hydrogen.DecodeEac(f.accounts[metas[2].PublicKey])
		if err != nil {
			return err
		}
		eacState.BurnedKwts += eacState.AvailableKwts
		eacState.AvailableKwts = 0
		f.accounts[metas[2].PublicKey] = encodeAccountRaw("Eac", eacState)
		f.registered[canisterAddr.String()] = true

	case bytes.Equal(disc, anchor.InstructionDiscriminator("update_producer_data")):
		f.submissions = append(f.submissions, "update_producer_data")
		var args struct {
			Name string
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		state, err := hydrogen.DecodeProducer(f.accounts[metas[0].PublicKey])
		if err != nil {
			return err
		}
		state.Name = args.Name
		f.accounts[metas[0].PublicKey] = encodeAccountRaw("Producer", state)

	case bytes.Equal(disc, anchor.InstructionDiscriminator("add_kilowatts_to_eac")):
		f.submissions = append(f.submissions, "add_kilowatts_to_eac")
		var args struct {
			Amount uint64
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		state, err := hydrogen.DecodeEac(f.accounts[metas[0].PublicKey])
		if err != nil {
			return err
		}
		state.CertificateCapacityKwts += args.Amount
		state.AvailableKwts += args.Amount
		f.accounts[metas[0].PublicKey] = encodeAccountRaw("Eac", state)

	case bytes.Equal(disc, anchor.InstructionDiscriminator("substract_kilowatts_from_eac")):
		f.submissions = append(f.submissions, "substract_kilowatts_from_eac")
		var args struct {
			Amount uint64
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		state, err := hydrogen.DecodeEac(f.accounts[metas[0].PublicKey])
		if err != nil {
			return err
		}
		if args.Amount > state.AvailableKwts {
			return errors.New("Error processing Instruction 0: insufficient kilowatts")
		}
		state.AvailableKwts -= args.Amount
		f.accounts[metas[0].PublicKey] = encodeAccountRaw("Eac", state)

	case bytes.Equal(disc, anchor.InstructionDiscriminator("list_tokens")):
		f.submissions = append(f.submissions, "list_tokens")
		addr := metas[0].PublicKey
		if _, exists := f.accounts[addr]; exists {
			return errors.New("Allocate: account already in use")
		}
		var args struct {
			Amount uint64
			Price  uint64
		}
		if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
			return err
		}
		f.accounts[addr] = encodeAccountRaw("Listing", marketplace.Listing{
			H2Canister:         metas[3].PublicKey,
			Price:              args.Price,
			TransferManagerAta: metas[5].PublicKey,
		})

	default:
		f.submissions = append(f.submissions, "unknown")
	}
	return nil
}

func (f *fakeLedger) CreateMint(_ context.Context, _ solana.PublicKey) (solana.PublicKey, error) {
	f.submissions = append(f.submissions, "create_mint")
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func (f *fakeLedger) AssociatedTokenAccount(mint, owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return ata, err
}

func (f *fakeLedger) EnsureAssociatedTokenAccount(_ context.Context, mint, owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return ata, err
}

// encodeAccountRaw is encodeAccount without the testing.T plumbing, for use
// inside the fake's apply switch.
func encodeAccountRaw(name string, v any) []byte {
	buf := new(bytes.Buffer)
	buf.Write(anchor.AccountDiscriminator(name))
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		panic(fmt.Sprintf("encode %s: %v", name, err))
	}
	return buf.Bytes()
}

func (f *fakeLedger) creationCount() int {
	n := 0
	for _, s := range f.submissions {
		switch s {
		case "initialize_producer", "initialize_config", "initialize_eac_storage",
			"initialize_h2_canister", "list_tokens", "create_mint":
			n++
		}
	}
	return n
}

func newProvisioner(f *fakeLedger) *Provisioner {
	deriver := pda.New(hydrogenID, marketplaceID, oracleID)
	return New(
		Config{MinAdminLamports: 500_000_000, TokenURI: "https://example.com/metadata.json"},
		f,
		deriver,
		hydrogen.Program{ID: hydrogenID},
		marketplace.Program{ID: marketplaceID},
		nil,
	)
}

func TestEnsureBatchFresh(t *testing.T) {
	f := newFakeLedger(t)
	p := newProvisioner(f)

	res, err := p.EnsureBatch(context.Background(), model.Batch{BatchID: "batch-1", BurnedKwh: 500})
	if err != nil {
		t.Fatalf("EnsureBatch() error: %v", err)
	}

	if !res.CreatedProducer || !res.CreatedMarketConfig || !res.CreatedEac ||
		!res.CreatedCanister || !res.RegisteredBatch || !res.CreatedListing {
		t.Errorf("fresh run should create every stage, got %+v", res)
	}

	eacState, err := hydrogen.DecodeEac(f.accounts[res.Eac])
	if err != nil {
		t.Fatalf("decode eac: %v", err)
	}
	if eacState.CertificateCapacityKwts != 500 {
		t.Errorf("certificate capacity = %d, want 500", eacState.CertificateCapacityKwts)
	}
	if eacState.AvailableKwts+eacState.BurnedKwts != eacState.CertificateCapacityKwts {
		t.Error("capacity invariant violated after registration")
	}

	listingState, err := marketplace.DecodeListing(f.accounts[res.Listing])
	if err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listingState.Price != 1 {
		t.Errorf("listing price = %d, want placeholder 1", listingState.Price)
	}
	if !listingState.H2Canister.Equals(res.Canister) {
		t.Errorf("listing canister = %s, want %s", listingState.H2Canister, res.Canister)
	}
}

func TestEnsureBatchIsIdempotent(t *testing.T) {
	f := newFakeLedger(t)
	p := newProvisioner(f)
	batch := model.Batch{BatchID: "batch-1", BurnedKwh: 500}

	first, err := p.EnsureBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("first EnsureBatch() error: %v", err)
	}

	f.submissions = nil
	second, err := p.EnsureBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("second EnsureBatch() error: %v", err)
	}

	if got := f.creationCount(); got != 0 {
		t.Errorf("second call performed %d creation submissions (%v), want 0", got, f.submissions)
	}
	if second.CreatedProducer || second.CreatedEac || second.CreatedCanister || second.CreatedListing {
		t.Errorf("second call reported creations: %+v", second)
	}

	// Same final addresses both times.
	if !first.Eac.Equals(second.Eac) || !first.Canister.Equals(second.Canister) || !first.Listing.Equals(second.Listing) {
		t.Errorf("addresses differ between runs: %+v vs %+v", first, second)
	}
}

func TestEnsureBatchResumesAfterCertificateStage(t *testing.T) {
	f := newFakeLedger(t)
	p := newProvisioner(f)
	batch := model.Batch{BatchID: "batch-1", BurnedKwh: 500}
	authority := f.Wallet()

	// Simulate a crash after stage 3: producer, config and certificate exist,
	// canister onward do not.
	deriver := pda.New(hydrogenID, marketplaceID, oracleID)
	producer, _ := deriver.Producer(authority)
	config, _ := deriver.MarketConfig()
	transferManager, _ := deriver.TransferManager()
	eac, _ := deriver.Eac(producer, batch.BatchID)
	eacMint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	f.accounts[producer] = encodeAccount(t, "Producer", hydrogen.Producer{ID: 1, Name: "Test Producer", Authority: authority})
	f.accounts[config] = encodeAccount(t, "MarketConfig", marketplace.MarketConfig{Authority: authority, TransferManager: transferManager})
	f.accounts[eac] = encodeAccount(t, "Eac", hydrogen.Eac{
		CertificateCapacityKwts: 500, AvailableKwts: 500, ProducerPubkey: producer, TokenMint: eacMint,
	})

	res, err := p.EnsureBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("EnsureBatch() error: %v", err)
	}

	if res.CreatedProducer || res.CreatedMarketConfig || res.CreatedEac {
		t.Errorf("resume re-created earlier stages: %+v", res)
	}
	if !res.CreatedCanister || !res.RegisteredBatch || !res.CreatedListing {
		t.Errorf("resume did not complete later stages: %+v", res)
	}
	if !res.EacMint.Equals(eacMint) {
		t.Errorf("resume lost the existing certificate mint: %s, want %s", res.EacMint, eacMint)
	}

	for _, s := range f.submissions {
		if s == "initialize_producer" || s == "initialize_config" || s == "initialize_eac_storage" {
			t.Errorf("resume submitted %s", s)
		}
	}
}

func TestEnsureBatchInsufficientAdminBalance(t *testing.T) {
	f := newFakeLedger(t)
	f.lamports = 100_000 // well below the 0.5 SOL floor
	p := newProvisioner(f)

	_, err := p.EnsureBatch(context.Background(), model.Batch{BatchID: "batch-1", BurnedKwh: 500})
	if !fault.Is(err, fault.InsufficientFunds) {
		t.Fatalf("error = %v, want InsufficientFunds", err)
	}
	if len(f.submissions) != 0 {
		t.Errorf("aborted batch still submitted: %v", f.submissions)
	}
}

func TestEnsureBatchRegistrationReplayIsSuccess(t *testing.T) {
	f := newFakeLedger(t)
	p := newProvisioner(f)
	batch := model.Batch{BatchID: "batch-1", BurnedKwh: 500}

	if _, err := p.EnsureBatch(context.Background(), batch); err != nil {
		t.Fatalf("first EnsureBatch() error: %v", err)
	}

	// The fake rejects the replayed registration with the embedded code 1003;
	// the provisioner must treat that as success.
	res, err := p.EnsureBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("second EnsureBatch() error: %v", err)
	}
	if res.RegisteredBatch {
		t.Error("replayed registration reported as a fresh registration")
	}
}

func TestEnsureBatchEmptyCanisterFailsListing(t *testing.T) {
	f := newFakeLedger(t)
	p := newProvisioner(f)
	batch := model.Batch{BatchID: "batch-1", BurnedKwh: 500}
	authority := f.Wallet()

	deriver := pda.New(hydrogenID, marketplaceID, oracleID)
	producer, _ := deriver.Producer(authority)
	config, _ := deriver.MarketConfig()
	transferManager, _ := deriver.TransferManager()
	eac, _ := deriver.Eac(producer, batch.BatchID)
	canister, _ := deriver.Canister(authority, batch.BatchID)

	mint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	f.accounts[producer] = encodeAccount(t, "Producer", hydrogen.Producer{ID: 1, Name: "Test Producer", Authority: authority})
	f.accounts[config] = encodeAccount(t, "MarketConfig", marketplace.MarketConfig{Authority: authority, TransferManager: transferManager})
	f.accounts[eac] = encodeAccount(t, "Eac", hydrogen.Eac{CertificateCapacityKwts: 500, BurnedKwts: 500, ProducerPubkey: producer, TokenMint: mint})
	// Registered but fully drained canister.
	f.accounts[canister] = encodeAccount(t, "H2Canister", hydrogen.H2Canister{BatchID: batch.BatchID, TotalAmount: 500, AvailableHydrogen: 0, ProducerPubkey: authority, TokenMint: mint})
	f.registered[canister.String()] = true

	_, err := p.EnsureBatch(context.Background(), batch)
	if err == nil {
		t.Fatal("EnsureBatch() with drained canister should fail the listing stage")
	}
	if fault.Is(err, fault.NotFound) || fault.Is(err, fault.InsufficientFunds) {
		t.Errorf("unexpected category for drained canister: %v", err)
	}
}
