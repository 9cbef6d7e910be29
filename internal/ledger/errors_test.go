package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
)

func TestIsBlockhashExpired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sentinel", errBlockhashExpired{cause: errors.New("height past last valid")}, true},
		{"wrapped sentinel", fmt.Errorf("submit: %w", errBlockhashExpired{cause: errors.New("x")}), true},
		{"preflight message", errors.New("Transaction simulation failed: Blockhash not found"), true},
		{"height message", errors.New("transaction expired: block height exceeded"), true},
		{"other", errors.New("insufficient funds for rent"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlockhashExpired(tt.err); got != tt.want {
				t.Errorf("IsBlockhashExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCustomErrorCode(t *testing.T) {
	structured := &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed",
		Data: map[string]any{
			"err": map[string]any{
				"InstructionError": []any{float64(2), map[string]any{"Custom": float64(1003)}},
			},
		},
	}

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOK   bool
	}{
		{"structured", structured, 1003, true},
		{"wrapped structured", fmt.Errorf("send: %w", structured), 1003, true},
		{"message hex", errors.New("Error processing Instruction 0: custom program error: 0x3eb"), 1003, true},
		{"message hex unauthorized", errors.New("custom program error: 0x1770"), 6000, true},
		{"no code", errors.New("connection refused"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := CustomErrorCode(tt.err)
			if ok != tt.wantOK || code != tt.wantCode {
				t.Errorf("CustomErrorCode() = (%d, %v), want (%d, %v)", code, ok, tt.wantCode, tt.wantOK)
			}
		})
	}
}

func TestHasCustomCode(t *testing.T) {
	if !HasCustomCode(errors.New("custom program error: 0x3eb"), 1003) {
		t.Error("HasCustomCode hex = false, want true")
	}
	// Some nodes only embed the decimal code in the message text.
	if !HasCustomCode(errors.New("failed to register batch: error 1003 raised"), 1003) {
		t.Error("HasCustomCode embedded decimal = false, want true")
	}
	if HasCustomCode(errors.New("custom program error: 0x3eb"), 6000) {
		t.Error("HasCustomCode mismatched code = true, want false")
	}
}

func TestClassifySubmitError(t *testing.T) {
	already := classifySubmitError(errors.New("Allocate: account Address { .. } already in use"))
	if fault.CategoryOf(already) != fault.AlreadyExists {
		t.Errorf("already-in-use category = %v, want %v", fault.CategoryOf(already), fault.AlreadyExists)
	}

	other := classifySubmitError(errors.New("custom program error: 0x1770"))
	if fault.CategoryOf(other) != fault.LedgerFailure {
		t.Errorf("custom-code category = %v, want %v", fault.CategoryOf(other), fault.LedgerFailure)
	}
	if code, ok := CustomErrorCode(errors.Unwrap(other)); !ok || code != 6000 {
		t.Errorf("underlying code = (%d, %v), want (6000, true)", code, ok)
	}
}
