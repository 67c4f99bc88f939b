package chain

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Credentials identify the account signing a call. They travel with each
// request and are never persisted.
type Credentials struct {
	Address    string `json:"address"`
	PrivateKey string `json:"-"`
}

// Key parses the private key and checks it signs for Address.
func (c Credentials) Key() (*ecdsa.PrivateKey, common.Address, error) {
	if !common.IsHexAddress(strings.TrimSpace(c.Address)) {
		return nil, common.Address{}, errors.Wrap(ErrInvalidCredentials, "account address is not a hex address")
	}
	hexkey := strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x")
	if len(hexkey) != 64 {
		return nil, common.Address{}, errors.Wrap(ErrInvalidCredentials, "private key must be 32 bytes hex")
	}
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, common.Address{}, errors.Wrapf(ErrInvalidCredentials, "private key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if addr != common.HexToAddress(c.Address) {
		return nil, common.Address{}, errors.Wrap(ErrInvalidCredentials, "private key does not match account address")
	}
	return key, addr, nil
}

// Validate is Key without the results.
func (c Credentials) Validate() error {
	_, _, err := c.Key()
	return err
}

// ParseAddress validates a counterparty address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Wrapf(ErrInvalidAddress, "%q", s)
	}
	return common.HexToAddress(s), nil
}
