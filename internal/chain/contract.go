package chain

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ProdAuth contract methods.
const (
	MethodRegisterSeller = "registerSeller"
	MethodRegisterBuyer  = "registerOwner"
	MethodNewArticle     = "newArticle"
	MethodInitSold       = "initSold"
	MethodVerifyPurchase = "verifyPurchase"
	MethodSee            = "see"
)

// Contract exposes the ProdAuth operations over a Backend. Arguments are
// checked locally before anything is signed; the contract decides the rest.
type Contract struct {
	backend Backend
}

func NewContract(b Backend) *Contract {
	return &Contract{backend: b}
}

// Backend returns the backend the contract runs on.
func (c *Contract) Backend() Backend {
	return c.backend
}

func (c *Contract) RegisterSeller(ctx context.Context, creds Credentials, name string) (*TxReceipt, error) {
	return c.transact(ctx, creds, MethodRegisterSeller, name)
}

func (c *Contract) RegisterBuyer(ctx context.Context, creds Credentials, name string) (*TxReceipt, error) {
	return c.transact(ctx, creds, MethodRegisterBuyer, name)
}

// RegisterProduct records identifier against the seller's product code.
func (c *Contract) RegisterProduct(ctx context.Context, creds Credentials, identifier, productCode string) (*TxReceipt, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, errors.New("identifier is empty")
	}
	return c.transact(ctx, creds, MethodNewArticle, identifier, productCode)
}

// InitiateSale marks identifier as being sold to buyer.
func (c *Contract) InitiateSale(ctx context.Context, creds Credentials, identifier, buyer string) (*TxReceipt, error) {
	to, err := ParseAddress(buyer)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, creds, MethodInitSold, identifier, to)
}

// VerifyPurchase has the buyer confirm identifier was received from seller.
func (c *Contract) VerifyPurchase(ctx context.Context, creds Credentials, identifier, seller string) (*TxReceipt, error) {
	from, err := ParseAddress(seller)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, creds, MethodVerifyPurchase, identifier, from)
}

// Inspect reads the on-chain record of identifier.
func (c *Contract) Inspect(ctx context.Context, identifier string) (map[string]interface{}, error) {
	return c.backend.Call(ctx, MethodSee, identifier)
}

func (c *Contract) ReceiptStatus(ctx context.Context, txHash string) (*TxReceipt, error) {
	return c.backend.ReceiptStatus(ctx, txHash)
}

func (c *Contract) transact(ctx context.Context, creds Credentials, method string, args ...interface{}) (*TxReceipt, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return c.backend.Transact(ctx, creds, method, args...)
}
