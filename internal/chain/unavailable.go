package chain

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnavailable is the cause reported while no node connection exists.
var ErrUnavailable = errors.New("blockchain node unavailable")

// Unavailable returns a Backend that fails every call with a ContractError
// whose cause wraps reason. It keeps the QR and catalog endpoints usable
// while the node cannot be reached.
func Unavailable(reason error) Backend {
	if reason == nil {
		return unavailable{err: ErrUnavailable}
	}
	return unavailable{err: errors.Wrap(ErrUnavailable, reason.Error())}
}

type unavailable struct {
	err error
}

func (u unavailable) Transact(_ context.Context, _ Credentials, method string, _ ...interface{}) (*TxReceipt, error) {
	return nil, &ContractError{Method: method, Err: u.err}
}

func (u unavailable) Call(_ context.Context, method string, _ ...interface{}) (map[string]interface{}, error) {
	return nil, &ContractError{Method: method, Err: u.err}
}

func (u unavailable) ReceiptStatus(_ context.Context, _ string) (*TxReceipt, error) {
	return nil, u.err
}
