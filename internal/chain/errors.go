package chain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCredentials covers malformed keys, malformed addresses and
	// keys that do not belong to the claimed address.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAddress is returned for a malformed counterparty address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrReverted marks a mined transaction whose receipt status is failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrNoReceipt is returned when a receipt lookup is made without a hash.
	ErrNoReceipt = errors.New("no receipt")
)

// ContractError wraps anything the node, the ABI packer or the contract
// itself reported for a call. Callers surface it as is.
type ContractError struct {
	Method string
	TxHash string
	Err    error
}

func (e *ContractError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("contract %s (tx %s): %v", e.Method, e.TxHash, e.Err)
	}
	return fmt.Sprintf("contract %s: %v", e.Method, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// IsContractError reports whether err carries a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
