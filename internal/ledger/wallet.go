package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// LoadWallet loads the service signing keypair. The key is either a path to
// a keygen file or the inline JSON byte array itself, both in the standard
// 64-byte secret key format.
func LoadWallet(keyFile, inlineKey string) (solana.PrivateKey, error) {
	if inlineKey != "" {
		return parseSecretKey([]byte(inlineKey))
	}
	if keyFile == "" {
		return nil, fmt.Errorf("wallet key is required: set key_file or secret_key")
	}
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read wallet key file: %w", err)
	}
	return parseSecretKey(data)
}

func parseSecretKey(data []byte) (solana.PrivateKey, error) {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, fmt.Errorf("parse wallet secret key: %w", err)
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("wallet secret key byte %d out of range: %d", i, n)
		}
		raw[i] = byte(n)
	}
	key := solana.PrivateKey(raw)
	if len(key) != 64 {
		return nil, fmt.Errorf("wallet secret key must be 64 bytes, got %d", len(key))
	}
	return key, nil
}
