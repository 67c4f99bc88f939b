package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TopicTxSubmitted carries a TxEvent for every call the contract accepted.
const TopicTxSubmitted = "tx.submitted"

// TxEvent describes one submitted contract call.
type TxEvent struct {
	Method     string
	Identifier string
	From       string
	To         string
	Receipt    *chain.TxReceipt
}

// Recorder keeps a ChainTx row for every submitted call it hears about.
type Recorder struct {
	txs ChainTxRepository
	bus EventBus.Bus
}

func NewRecorder(txs ChainTxRepository) *Recorder {
	return &Recorder{txs: txs}
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus EventBus.Bus) error {
	if err := bus.Subscribe(TopicTxSubmitted, r.onSubmitted); err != nil {
		return err
	}
	r.bus = bus
	return nil
}

// Detach undoes Attach.
func (r *Recorder) Detach() {
	if r.bus != nil {
		_ = r.bus.Unsubscribe(TopicTxSubmitted, r.onSubmitted)
		r.bus = nil
	}
}

func (r *Recorder) onSubmitted(ev TxEvent) {
	if ev.Receipt == nil || ev.Receipt.TxHash == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.txs.GetByHash(ctx, ev.Receipt.TxHash)
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		zap.L().Error("chain tx lookup failed", zap.String("namespace", "ledger"), zap.Error(err))
		return
	}

	row := newChainTx(ev)
	row.ID = common.UUIDint64()
	if row.Status != domain.TxPending {
		now := time.Now()
		row.MinedAt = &now
	}
	if err := r.txs.Create(ctx, row); err != nil {
		zap.L().Error("chain tx record failed",
			zap.String("namespace", "ledger"),
			zap.String("tx", row.TxHash),
			zap.Error(err))
		return
	}
	zap.L().Debug("chain tx recorded",
		zap.String("namespace", "ledger"),
		zap.String("method", row.Method),
		zap.String("tx", row.TxHash))
}

func newChainTx(ev TxEvent) *domain.ChainTx {
	tx := &domain.ChainTx{
		Method:      ev.Method,
		Identifier:  ev.Identifier,
		FromAddress: ev.From,
		ToAddress:   ev.To,
		TxHash:      ev.Receipt.TxHash,
		Status:      string(ev.Receipt.Status),
		BlockNumber: ev.Receipt.BlockNumber,
	}
	if tx.Status == "" {
		tx.Status = domain.TxPending
	}
	return tx
}
