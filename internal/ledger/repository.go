package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/prodauth/prodauth/internal/domain"
	"gorm.io/gorm"
)

// ProductRepository handles database operations for products
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error

	// GetByIdentifier returns gorm.ErrRecordNotFound when the product is unknown
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Product, error)

	// Update writes the given columns of the product with this identifier
	Update(ctx context.Context, identifier string, fields map[string]interface{}) error

	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.Product, int64, error)
}

// ParticipantRepository handles database operations for registered accounts
type ParticipantRepository interface {
	// Upsert creates the participant or refreshes name and tx hash of an
	// existing address/role pair
	Upsert(ctx context.Context, p *domain.Participant) error

	GetByAddress(ctx context.Context, address, role string) (*domain.Participant, error)

	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.Participant, int64, error)
}

// ChainTxRepository handles database operations for submitted transactions
type ChainTxRepository interface {
	Create(ctx context.Context, tx *domain.ChainTx) error

	GetByHash(ctx context.Context, hash string) (*domain.ChainTx, error)

	// GetPending retrieves pending transactions, oldest first
	GetPending(ctx context.Context, limit int) ([]*domain.ChainTx, error)

	// UpdateStatus records a receipt outcome
	UpdateStatus(ctx context.Context, id int64, status, errorMsg string, blockNumber uint64) error

	// IncrementCheck bumps the receipt lookup counter
	IncrementCheck(ctx context.Context, id int64) error

	// DeleteOlderThan removes rows created more than days ago
	DeleteOlderThan(ctx context.Context, days int) (int64, error)

	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChainTx, int64, error)
}

// Columns a List filter may name. Anything else is ignored.
var (
	productFilterColumns     = []string{"status", "seller_address", "owner_address", "product_code"}
	participantFilterColumns = []string{"role", "address"}
	chainTxFilterColumns     = []string{"status", "method", "identifier", "from_address"}
)

func applyFilter(query *gorm.DB, filter map[string]interface{}, allowed []string) *gorm.DB {
	for _, key := range allowed {
		value, ok := filter[key]
		if !ok || value == nil || value == "" {
			continue
		}
		query = query.Where(key+" = ?", value)
	}
	return query
}

// MaxPage bounds page numbers so offsets cannot overflow.
const MaxPage = 1_000_000

func paginate(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return (page - 1) * pageSize, pageSize
}

// GormProductRepository is the GORM implementation of ProductRepository
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormProductRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormProductRepository) Update(ctx context.Context, identifier string, fields map[string]interface{}) error {
	delete(fields, "identifier")
	res := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("identifier = ?", identifier).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormProductRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.Product, int64, error) {
	var rows []*domain.Product
	var total int64

	query := applyFilter(r.db.WithContext(ctx).Model(&domain.Product{}), filter, productFilterColumns)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := paginate(page, pageSize)
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

// GormParticipantRepository is the GORM implementation of ParticipantRepository
type GormParticipantRepository struct {
	db *gorm.DB
}

func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	return &GormParticipantRepository{db: db}
}

func (r *GormParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	var existing domain.Participant
	err := r.db.WithContext(ctx).
		Where("address = ? AND role = ?", p.Address, p.Role).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(p).Error
	case err != nil:
		return err
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"name": p.Name, "tx_hash": p.TxHash}).Error
}

func (r *GormParticipantRepository) GetByAddress(ctx context.Context, address, role string) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).Where("address = ? AND role = ?", address, role).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormParticipantRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.Participant, int64, error) {
	var rows []*domain.Participant
	var total int64

	query := applyFilter(r.db.WithContext(ctx).Model(&domain.Participant{}), filter, participantFilterColumns)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := paginate(page, pageSize)
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

// GormChainTxRepository is the GORM implementation of ChainTxRepository
type GormChainTxRepository struct {
	db *gorm.DB
}

func NewGormChainTxRepository(db *gorm.DB) *GormChainTxRepository {
	return &GormChainTxRepository{db: db}
}

func (r *GormChainTxRepository) Create(ctx context.Context, tx *domain.ChainTx) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *GormChainTxRepository) GetByHash(ctx context.Context, hash string) (*domain.ChainTx, error) {
	var tx domain.ChainTx
	err := r.db.WithContext(ctx).Where("tx_hash = ?", hash).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *GormChainTxRepository) GetPending(ctx context.Context, limit int) ([]*domain.ChainTx, error) {
	var txs []*domain.ChainTx
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.TxPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *GormChainTxRepository) UpdateStatus(ctx context.Context, id int64, status, errorMsg string, blockNumber uint64) error {
	fields := map[string]interface{}{
		"status":    status,
		"error_msg": errorMsg,
	}
	if status != domain.TxPending {
		fields["mined_at"] = time.Now()
	}
	if blockNumber > 0 {
		fields["block_number"] = blockNumber
	}
	return r.db.WithContext(ctx).
		Model(&domain.ChainTx{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *GormChainTxRepository) IncrementCheck(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.ChainTx{}).
		Where("id = ?", id).
		Update("check_count", gorm.Expr("check_count + 1")).Error
}

func (r *GormChainTxRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", time.Now().AddDate(0, 0, -days)).
		Delete(&domain.ChainTx{})
	return res.RowsAffected, res.Error
}

func (r *GormChainTxRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChainTx, int64, error) {
	var rows []*domain.ChainTx
	var total int64

	query := applyFilter(r.db.WithContext(ctx).Model(&domain.ChainTx{}), filter, chainTxFilterColumns)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := paginate(page, pageSize)
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}
