// Package ledger coordinates product actions between the contract and the
// local database. The contract is the source of truth; the database is a
// catalog of what this service submitted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/internal/productid"
	"github.com/prodauth/prodauth/internal/qrcodec"
	pkgcommon "github.com/prodauth/prodauth/pkg/common"
	"github.com/prodauth/prodauth/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidInput = errors.New("invalid input")

// Service runs seller and buyer actions end to end.
type Service struct {
	contract     *chain.Contract
	ids          *productid.Generator
	qrOpts       qrcodec.Options
	products     ProductRepository
	catalog      *Catalog
	participants ParticipantRepository
	txs          ChainTxRepository
	bus          EventBus.Bus
}

type Option func(*Service)

// WithGenerator replaces the identifier generator.
func WithGenerator(g *productid.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// WithQrcodeOptions sets the rendering used for freshly registered products.
func WithQrcodeOptions(o qrcodec.Options) Option {
	return func(s *Service) { s.qrOpts = o }
}

func NewService(contract *chain.Contract, db *gorm.DB, bus EventBus.Bus, opts ...Option) *Service {
	products := NewGormProductRepository(db)
	s := &Service{
		contract:     contract,
		ids:          productid.NewGenerator(nil),
		qrOpts:       qrcodec.DefaultOptions(),
		products:     products,
		catalog:      NewCatalog(products),
		participants: NewGormParticipantRepository(db),
		txs:          NewGormChainTxRepository(db),
		bus:          bus,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Transactions exposes the transaction repository to the receipt tracker.
func (s *Service) Transactions() ChainTxRepository {
	return s.txs
}

// Catalog exposes the product state transitions to the receipt tracker.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// NormalizeIdentifier trims and lower-cases a typed identifier and checks it
// is plain hex.
func NormalizeIdentifier(s string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	if !productid.Valid(id) {
		return "", fmt.Errorf("%w: product id %q is not a hex identifier", ErrInvalidInput, s)
	}
	return id, nil
}

// ResolveIdentifier picks the identifier for a sale or purchase. A QR image
// wins over typed text when both are supplied. Typed text is normalized; a
// decoded payload is passed on exactly as read once it is known to be hex.
func ResolveIdentifier(text string, qrImage []byte) (string, error) {
	if len(qrImage) > 0 {
		decoded, err := qrcodec.DecodeBytes(qrImage)
		if err != nil {
			metrics.Incr(metrics.QrcodeDecodeFail)
			zap.L().Warn("qrcode not recognized", zap.String("namespace", "ledger"), zap.Error(err))
			return "", err
		}
		if !productid.Valid(strings.ToLower(decoded)) {
			return "", fmt.Errorf("%w: qrcode payload %q is not a hex identifier", ErrInvalidInput, decoded)
		}
		return decoded, nil
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return NormalizeIdentifier(text)
}

// RegisterParticipant registers creds as a seller or buyer under name.
func (s *Service) RegisterParticipant(ctx context.Context, role string, creds chain.Credentials, name string) (*domain.Participant, *chain.TxReceipt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	var (
		rc  *chain.TxReceipt
		err error
	)
	switch role {
	case domain.RoleSeller:
		rc, err = s.contract.RegisterSeller(ctx, creds, name)
	case domain.RoleBuyer:
		rc, err = s.contract.RegisterBuyer(ctx, creds, name)
	default:
		return nil, nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err != nil {
		s.contractFailed(err)
		return nil, nil, err
	}
	addr := checksum(creds.Address)
	s.publish(TxEvent{Method: rc.Method, From: addr, Receipt: rc})

	p := &domain.Participant{
		ID:      pkgcommon.UUIDint64(),
		Address: addr,
		Role:    role,
		Name:    name,
		TxHash:  rc.TxHash,
	}
	if err := s.participants.Upsert(ctx, p); err != nil {
		zap.L().Error("participant record failed", zap.String("namespace", "ledger"), zap.String("address", addr), zap.Error(err))
	}
	return p, rc, nil
}

// AddProductResult is the outcome of registering a product.
type AddProductResult struct {
	Product *domain.Product
	QRCode  []byte // PNG
	Receipt *chain.TxReceipt
}

// AddProduct mints an identifier for productCode, renders its QR code and
// registers it on chain under the seller in creds.
func (s *Service) AddProduct(ctx context.Context, creds chain.Credentials, productCode string) (*AddProductResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	id, err := s.ids.Generate(productCode)
	if err != nil {
		return nil, err
	}
	png, err := qrcodec.Encode(id, s.qrOpts)
	if err != nil {
		return nil, err
	}
	rc, err := s.contract.RegisterProduct(ctx, creds, id, productCode)
	if err != nil {
		s.contractFailed(err)
		return nil, err
	}
	seller := checksum(creds.Address)
	metrics.Incr(metrics.ProductRegistered)

	p := &domain.Product{
		ID:            pkgcommon.UUIDint64(),
		Identifier:    id,
		ProductCode:   productCode,
		SellerAddress: seller,
		OwnerAddress:  seller,
		Status:        domain.ProductPending,
		TxHash:        rc.TxHash,
	}
	if err := s.products.Create(ctx, p); err != nil {
		zap.L().Error("product record failed", zap.String("namespace", "ledger"), zap.String("identifier", id), zap.Error(err))
	}
	ev := TxEvent{Method: rc.Method, Identifier: id, From: seller, Receipt: rc}
	s.publish(ev)
	if s.settleNow(ctx, ev) {
		p.Status = domain.ProductRegistered
	}
	zap.L().Info("product registered",
		zap.String("namespace", "ledger"),
		zap.String("identifier", id),
		zap.String("seller", seller),
		zap.String("tx", rc.TxHash))
	return &AddProductResult{Product: p, QRCode: png, Receipt: rc}, nil
}

// TransferRequest names a product and the counterparty of a sale or purchase.
// QRImage, when set, overrides Identifier.
type TransferRequest struct {
	Identifier   string
	QRImage      []byte
	Counterparty string
}

// InitiateSale starts the sale of a product to the buyer in req.
func (s *Service) InitiateSale(ctx context.Context, creds chain.Credentials, req TransferRequest) (string, *chain.TxReceipt, error) {
	if strings.TrimSpace(req.Counterparty) == "" {
		return "", nil, fmt.Errorf("%w: buyer address is required", ErrInvalidInput)
	}
	id, err := ResolveIdentifier(req.Identifier, req.QRImage)
	if err != nil {
		return "", nil, err
	}
	rc, err := s.contract.InitiateSale(ctx, creds, id, req.Counterparty)
	if err != nil {
		s.contractFailed(err)
		return id, nil, err
	}
	ev := TxEvent{Method: rc.Method, Identifier: id, From: checksum(creds.Address), To: checksum(req.Counterparty), Receipt: rc}
	s.publish(ev)
	s.settleNow(ctx, ev)
	metrics.Incr(metrics.SaleInitiated)
	return id, rc, nil
}

// VerifyPurchase has the buyer in creds confirm receipt of a product from
// the seller in req. Locally the product belongs to the buyer once the
// transaction is confirmed.
func (s *Service) VerifyPurchase(ctx context.Context, creds chain.Credentials, req TransferRequest) (string, *chain.TxReceipt, error) {
	if strings.TrimSpace(req.Counterparty) == "" {
		return "", nil, fmt.Errorf("%w: seller address is required", ErrInvalidInput)
	}
	id, err := ResolveIdentifier(req.Identifier, req.QRImage)
	if err != nil {
		return "", nil, err
	}
	rc, err := s.contract.VerifyPurchase(ctx, creds, id, req.Counterparty)
	if err != nil {
		s.contractFailed(err)
		return id, nil, err
	}
	ev := TxEvent{Method: rc.Method, Identifier: id, From: checksum(creds.Address), To: checksum(req.Counterparty), Receipt: rc}
	s.publish(ev)
	s.settleNow(ctx, ev)
	metrics.Incr(metrics.PurchaseVerified)
	return id, rc, nil
}

// Inspect returns the contract's record of a product.
func (s *Service) Inspect(ctx context.Context, identifier string) (map[string]interface{}, error) {
	id, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	out, err := s.contract.Inspect(ctx, id)
	if err != nil {
		s.contractFailed(err)
		return nil, err
	}
	return out, nil
}

// GetProduct looks a product up in the local catalog.
func (s *Service) GetProduct(ctx context.Context, identifier string) (*domain.Product, error) {
	id, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	return s.products.GetByIdentifier(ctx, id)
}

// ProductQRCode renders the QR code of a catalogued product.
func (s *Service) ProductQRCode(ctx context.Context, identifier string, opts qrcodec.Options) ([]byte, error) {
	p, err := s.GetProduct(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return qrcodec.Encode(p.Identifier, opts)
}

func (s *Service) ListProducts(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.Product, int64, error) {
	return s.products.List(ctx, filter, page, pageSize)
}

func (s *Service) ListParticipants(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.Participant, int64, error) {
	return s.participants.List(ctx, filter, page, pageSize)
}

func (s *Service) ListTransactions(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChainTx, int64, error) {
	return s.txs.List(ctx, filter, page, pageSize)
}

// settleNow applies a receipt that was already mined when the call returned
// (Chain.WaitMined). Pending receipts are left to the receipt tracker.
func (s *Service) settleNow(ctx context.Context, ev TxEvent) bool {
	if ev.Receipt.Status != chain.TxConfirmed {
		return false
	}
	if err := s.catalog.Apply(ctx, newChainTx(ev)); err != nil {
		zap.L().Error("product update failed",
			zap.String("namespace", "ledger"),
			zap.String("identifier", ev.Identifier),
			zap.Error(err))
		return false
	}
	return true
}

func (s *Service) publish(ev TxEvent) {
	if s.bus != nil {
		s.bus.Publish(TopicTxSubmitted, ev)
	}
}

func (s *Service) contractFailed(err error) {
	if chain.IsContractError(err) {
		metrics.Incr(metrics.ContractFailed)
	}
}

func checksum(addr string) string {
	return common.HexToAddress(strings.TrimSpace(addr)).Hex()
}
