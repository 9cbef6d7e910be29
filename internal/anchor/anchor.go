// Package anchor implements the wire conventions of the deployed Anchor
// programs: 8-byte sha256 discriminators followed by borsh-encoded payloads.
package anchor

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// InstructionDiscriminator returns the 8-byte prefix for an instruction,
// derived from its snake_case name.
func InstructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// AccountDiscriminator returns the 8-byte prefix for an account struct name.
func AccountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// EncodeInstruction serializes an instruction: discriminator then the args
// struct borsh-encoded in field order. A nil args value encodes no payload.
func EncodeInstruction(name string, args any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(InstructionDiscriminator(name))
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			return nil, fmt.Errorf("encode %s args: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeAccount checks the account discriminator and borsh-decodes the state
// that follows it into dst.
func DecodeAccount(name string, data []byte, dst any) error {
	disc := AccountDiscriminator(name)
	if len(data) < len(disc) {
		return fmt.Errorf("decode %s: account data too short (%d bytes)", name, len(data))
	}
	if !bytes.Equal(data[:8], disc) {
		return fmt.Errorf("decode %s: discriminator mismatch", name)
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(dst); err != nil {
		return fmt.Errorf("decode %s state: %w", name, err)
	}
	return nil
}
