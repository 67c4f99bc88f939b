package ledger

import (
	"context"
	"errors"

	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"gorm.io/gorm"
)

// Catalog moves products between local states once the contract has settled
// the transaction that asked for the move. Until then a product keeps its
// last settled state.
type Catalog struct {
	products ProductRepository
}

func NewCatalog(products ProductRepository) *Catalog {
	return &Catalog{products: products}
}

// Apply projects a settled transaction onto the product it names. Pending
// transactions and products missing from the catalog are ignored.
func (c *Catalog) Apply(ctx context.Context, tx *domain.ChainTx) error {
	if tx.Identifier == "" || tx.Status == domain.TxPending {
		return nil
	}
	p, err := c.products.GetByIdentifier(ctx, tx.Identifier)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fields := transition(p, tx)
	if len(fields) == 0 {
		return nil
	}
	return c.products.Update(ctx, tx.Identifier, fields)
}

// transition returns the columns tx changes on p. Failed sales and
// purchases change nothing: the contract kept the previous owner.
func transition(p *domain.Product, tx *domain.ChainTx) map[string]interface{} {
	confirmed := tx.Status == domain.TxConfirmed
	switch tx.Method {
	case chain.MethodNewArticle:
		if p.Status != domain.ProductPending || p.TxHash != tx.TxHash {
			return nil
		}
		if confirmed {
			return map[string]interface{}{"status": domain.ProductRegistered}
		}
		return map[string]interface{}{"status": domain.ProductRejected}
	case chain.MethodInitSold:
		if !confirmed {
			return nil
		}
		return map[string]interface{}{
			"status":        domain.ProductSalePending,
			"buyer_address": tx.ToAddress,
		}
	case chain.MethodVerifyPurchase:
		if !confirmed {
			return nil
		}
		return map[string]interface{}{
			"status":        domain.ProductSold,
			"owner_address": tx.FromAddress,
			"buyer_address": tx.FromAddress,
		}
	}
	return nil
}
