package domain

import "time"

const (
	RoleSeller = "seller"
	RoleBuyer  = "buyer"
)

// Participant is an account that registered itself with the contract.
type Participant struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Address   string    `json:"address" gorm:"uniqueIndex:idx_participant_role;size:42"`
	Role      string    `json:"role" gorm:"uniqueIndex:idx_participant_role;size:16"`
	Name      string    `json:"name" gorm:"size:255"`
	TxHash    string    `json:"tx_hash" gorm:"size:66"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name
func (Participant) TableName() string {
	return "prod_participant"
}
