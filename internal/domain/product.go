package domain

import "time"

// Product status values. A product is pending until its newArticle
// transaction is mined, and rejected if that transaction fails.
const (
	ProductPending     = "pending"
	ProductRejected    = "rejected"
	ProductRegistered  = "registered"
	ProductSalePending = "sale_pending"
	ProductSold        = "sold"
)

// Product is the local record of an article registered on chain.
// Identifier never changes once written.
type Product struct {
	ID            int64     `json:"id,string" gorm:"primaryKey"`
	Identifier    string    `json:"identifier" gorm:"uniqueIndex;size:128"`
	ProductCode   string    `json:"product_code" gorm:"index;size:255"`
	SellerAddress string    `json:"seller_address" gorm:"index;size:42"`
	OwnerAddress  string    `json:"owner_address" gorm:"index;size:42"` // buyer once verified
	BuyerAddress  string    `json:"buyer_address" gorm:"size:42"`       // set when a sale starts
	Status        string    `json:"status" gorm:"index;size:16"`
	TxHash        string    `json:"tx_hash" gorm:"size:66"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Product) TableName() string {
	return "prod_product"
}
