package hydrogen

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/anchor"
)

var (
	testProgram   = Program{ID: solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")}
	testAuthority = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testProducer  = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
)

func TestInitializeProducerEncoding(t *testing.T) {
	ix, err := testProgram.InitializeProducer(1, "Test Producer", testProducer, testAuthority)
	if err != nil {
		t.Fatalf("InitializeProducer() error: %v", err)
	}

	if !ix.ProgramID().Equals(testProgram.ID) {
		t.Errorf("ProgramID = %s, want %s", ix.ProgramID(), testProgram.ID)
	}

	accounts := ix.Accounts()
	if len(accounts) != 3 {
		t.Fatalf("len(accounts) = %d, want 3", len(accounts))
	}
	if !accounts[0].PublicKey.Equals(testProducer) || !accounts[0].IsWritable || accounts[0].IsSigner {
		t.Errorf("producer meta = %+v, want writable non-signer", accounts[0])
	}
	if !accounts[1].IsWritable || !accounts[1].IsSigner {
		t.Errorf("authority meta = %+v, want writable signer", accounts[1])
	}
	if !accounts[2].PublicKey.Equals(solana.SystemProgramID) {
		t.Errorf("accounts[2] = %s, want system program", accounts[2].PublicKey)
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("Data() error: %v", err)
	}
	if !bytes.HasPrefix(data, anchor.InstructionDiscriminator("initialize_producer")) {
		t.Error("data does not start with the initialize_producer discriminator")
	}
}

func TestProducerRegisterBatchEncoding(t *testing.T) {
	acc := ProducerRegisterBatchAccounts{
		Producer:       testProducer,
		H2Canister:     solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111"),
		Eac:            solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111"),
		H2Mint:         solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
		EacMint:        solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111"),
		ProducerH2Ata:  testAuthority,
		ProducerEacAta: testAuthority,
		Authority:      testAuthority,
	}
	ix, err := testProgram.ProducerRegisterBatch("batch-1", 500, acc)
	if err != nil {
		t.Fatalf("ProducerRegisterBatch() error: %v", err)
	}

	accounts := ix.Accounts()
	if len(accounts) != 12 {
		t.Fatalf("len(accounts) = %d, want 12", len(accounts))
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("Data() error: %v", err)
	}
	// disc + string(4+7) + u64
	if len(data) != 8+4+7+8 {
		t.Errorf("len(data) = %d, want %d", len(data), 8+4+7+8)
	}
	if string(data[12:19]) != "batch-1" {
		t.Errorf("batch id payload = %q, want %q", string(data[12:19]), "batch-1")
	}
	// burnedKwh = 500 little-endian
	if data[19] != 0xf4 || data[20] != 0x01 {
		t.Errorf("burnedKwh bytes = %x, want f401...", data[19:27])
	}
}

func TestEacRoundTrip(t *testing.T) {
	src := Eac{
		CertificateCapacityKwts: 500,
		AvailableKwts:           200,
		BurnedKwts:              300,
		ProducerPubkey:          testProducer,
		TokenMint:               testAuthority,
	}
	payload, err := anchor.EncodeInstruction("x", src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data := append(anchor.AccountDiscriminator("Eac"), payload[8:]...)

	got, err := DecodeEac(data)
	if err != nil {
		t.Fatalf("DecodeEac() error: %v", err)
	}
	if got != src {
		t.Errorf("DecodeEac() = %+v, want %+v", got, src)
	}
	if got.AvailableKwts+got.BurnedKwts != got.CertificateCapacityKwts {
		t.Error("capacity invariant violated in fixture")
	}
}

func TestH2CanisterRoundTrip(t *testing.T) {
	src := H2Canister{
		BatchID:           "batch-17",
		TotalAmount:       500,
		AvailableHydrogen: 8,
		ProducerPubkey:    testProducer,
		TokenMint:         testAuthority,
	}
	payload, err := anchor.EncodeInstruction("x", src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data := append(anchor.AccountDiscriminator("H2Canister"), payload[8:]...)

	got, err := DecodeH2Canister(data)
	if err != nil {
		t.Fatalf("DecodeH2Canister() error: %v", err)
	}
	if got != src {
		t.Errorf("DecodeH2Canister() = %+v, want %+v", got, src)
	}

	if _, err := DecodeProducer(data); err == nil {
		t.Error("DecodeProducer() accepted canister data")
	}
}
