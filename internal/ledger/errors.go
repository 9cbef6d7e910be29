package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
)

// errBlockhashExpired marks a submission that failed only because the
// attached blockhash aged out. It is the single retryable submission error.
type errBlockhashExpired struct {
	cause error
}

func (e errBlockhashExpired) Error() string {
	return fmt.Sprintf("blockhash expired: %v", e.cause)
}

func (e errBlockhashExpired) Unwrap() error { return e.cause }

// IsBlockhashExpired reports whether the error is the expired-blockhash
// class, either our own sentinel or the node's preflight rejection.
func IsBlockhashExpired(err error) bool {
	var expired errBlockhashExpired
	if errors.As(err, &expired) {
		return true
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Blockhash not found") ||
		strings.Contains(msg, "block height exceeded")
}

// IsAlreadyInUse reports whether the ledger rejected an account creation
// because the account already exists.
func IsAlreadyInUse(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already in use")
}

// CustomErrorCode extracts a program's custom error code from a rejected
// submission, looking at the structured RPC error data first and falling
// back to the conventional "custom program error: 0x…" message text.
func CustomErrorCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if code, ok := customCodeFromData(rpcErr.Data); ok {
			return code, true
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "custom program error: 0x"); idx >= 0 {
		hex := msg[idx+len("custom program error: 0x"):]
		if end := strings.IndexFunc(hex, func(r rune) bool {
			return !strings.ContainsRune("0123456789abcdefABCDEF", r)
		}); end >= 0 {
			hex = hex[:end]
		}
		if code, perr := strconv.ParseInt(hex, 16, 32); perr == nil {
			return int(code), true
		}
	}
	return 0, false
}

// customCodeFromData walks the jsonrpc error data for
// {"err":{"InstructionError":[idx,{"Custom":code}]}}.
func customCodeFromData(data any) (int, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}
	inner, ok := m["err"].(map[string]any)
	if !ok {
		return 0, false
	}
	ie, ok := inner["InstructionError"].([]any)
	if !ok || len(ie) != 2 {
		return 0, false
	}
	custom, ok := ie[1].(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := custom["Custom"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// HasCustomCode reports whether the error carries the given program error
// code, matching the embedded decimal as a last resort since some nodes only
// surface it inside the message text.
func HasCustomCode(err error, code int) bool {
	if got, ok := CustomErrorCode(err); ok {
		return got == code
	}
	return err != nil && strings.Contains(err.Error(), strconv.Itoa(code))
}

// classifySubmitError maps a non-retryable submission failure onto the fault
// taxonomy, preserving the underlying program error for diagnostics.
func classifySubmitError(err error) error {
	if IsAlreadyInUse(err) {
		return fault.Wrap(err, fault.AlreadyExists, "account already initialized")
	}
	if code, ok := CustomErrorCode(err); ok {
		return fault.Wrap(err, fault.LedgerFailure, "program rejected instruction with code %d", code)
	}
	return fault.Wrap(err, fault.LedgerFailure, "transaction rejected")
}
