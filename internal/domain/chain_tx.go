package domain

import "time"

// ChainTx status values
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxFailed    = "failed"
)

// ChainTx tracks a submitted contract call until its receipt is known.
type ChainTx struct {
	ID          int64      `json:"id,string" gorm:"primaryKey"`
	Method      string     `json:"method" gorm:"index;size:32"`
	Identifier  string     `json:"identifier" gorm:"index;size:128"` // product, empty for registrations
	FromAddress string     `json:"from_address" gorm:"index;size:42"`
	ToAddress   string     `json:"to_address" gorm:"size:42"`
	TxHash      string     `json:"tx_hash" gorm:"uniqueIndex;size:66"`
	Status      string     `json:"status" gorm:"index;size:16"`
	ErrorMsg    string     `json:"error_msg"`
	BlockNumber uint64     `json:"block_number"`
	CheckCount  int        `json:"check_count" gorm:"default:0"` // receipt lookups so far
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`
	MinedAt     *time.Time `json:"mined_at"`
}

// TableName specifies the table name
func (ChainTx) TableName() string {
	return "prod_chain_tx"
}
