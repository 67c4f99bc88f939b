package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/pkg/metrics"
	"go.uber.org/zap"
)

// TrackStats summarises one tracker pass.
type TrackStats struct {
	Checked   int64 `json:"checked"`
	Confirmed int64 `json:"confirmed"`
	Failed    int64 `json:"failed"`
}

// ReceiptTracker settles pending ChainTx rows from their receipts. A row
// that stays pending for maxChecks lookups is marked failed.
type ReceiptTracker struct {
	txs       ChainTxRepository
	receipts  chain.ReceiptReader
	pool      *ants.Pool
	catalog   *Catalog
	maxChecks int
	batch     int
	running   atomic.Bool

	mu      sync.Mutex
	settled []*domain.ChainTx
}

type TrackerOption func(*ReceiptTracker)

// WithCatalog applies every settled transaction to the product catalog.
func WithCatalog(c *Catalog) TrackerOption {
	return func(t *ReceiptTracker) { t.catalog = c }
}

func NewReceiptTracker(txs ChainTxRepository, receipts chain.ReceiptReader, pool *ants.Pool, maxChecks int, opts ...TrackerOption) *ReceiptTracker {
	if maxChecks <= 0 {
		maxChecks = 240
	}
	t := &ReceiptTracker{
		txs:       txs,
		receipts:  receipts,
		pool:      pool,
		maxChecks: maxChecks,
		batch:     500,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Run checks one batch of pending transactions. Overlapping calls return
// immediately with empty stats.
func (t *ReceiptTracker) Run(ctx context.Context) (TrackStats, error) {
	var stats TrackStats
	if !t.running.CompareAndSwap(false, true) {
		return stats, nil
	}
	defer t.running.Store(false)

	pending, err := t.txs.GetPending(ctx, t.batch)
	if err != nil {
		return stats, err
	}

	var wg sync.WaitGroup
	for _, tx := range pending {
		tx := tx
		wg.Add(1)
		task := func() {
			defer wg.Done()
			t.check(ctx, tx, &stats)
		}
		if t.pool == nil {
			task()
			continue
		}
		if err := t.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	t.applySettled(ctx)

	if stats.Checked > 0 {
		zap.L().Info("receipt tracker pass",
			zap.String("namespace", "ledger"),
			zap.Int64("checked", stats.Checked),
			zap.Int64("confirmed", stats.Confirmed),
			zap.Int64("failed", stats.Failed))
	}
	return stats, nil
}

func (t *ReceiptTracker) check(ctx context.Context, tx *domain.ChainTx, stats *TrackStats) {
	atomic.AddInt64(&stats.Checked, 1)
	if err := t.txs.IncrementCheck(ctx, tx.ID); err != nil {
		zap.L().Error("receipt check count update failed", zap.String("namespace", "ledger"), zap.Error(err))
	}
	checks := tx.CheckCount + 1

	rc, err := t.receipts.ReceiptStatus(ctx, tx.TxHash)
	switch {
	case err != nil:
		zap.L().Warn("receipt lookup failed",
			zap.String("namespace", "ledger"),
			zap.String("tx", tx.TxHash),
			zap.Error(err))
		t.giveUpIfExhausted(ctx, tx, checks, stats, "receipt lookup failed: "+err.Error())
	case rc.Status == chain.TxConfirmed:
		t.settle(ctx, tx, domain.TxConfirmed, "", rc.BlockNumber)
		atomic.AddInt64(&stats.Confirmed, 1)
		metrics.Incr(metrics.TxConfirmed)
	case rc.Status == chain.TxFailed:
		t.settle(ctx, tx, domain.TxFailed, chain.ErrReverted.Error(), rc.BlockNumber)
		atomic.AddInt64(&stats.Failed, 1)
		metrics.Incr(metrics.TxFailed)
	default:
		t.giveUpIfExhausted(ctx, tx, checks, stats, "no receipt after maximum checks")
	}
}

func (t *ReceiptTracker) giveUpIfExhausted(ctx context.Context, tx *domain.ChainTx, checks int, stats *TrackStats, reason string) {
	if checks < t.maxChecks {
		return
	}
	t.settle(ctx, tx, domain.TxFailed, reason, 0)
	atomic.AddInt64(&stats.Failed, 1)
	metrics.Incr(metrics.TxFailed)
}

func (t *ReceiptTracker) settle(ctx context.Context, tx *domain.ChainTx, status, msg string, block uint64) {
	if err := t.txs.UpdateStatus(ctx, tx.ID, status, msg, block); err != nil {
		zap.L().Error("chain tx status update failed",
			zap.String("namespace", "ledger"),
			zap.String("tx", tx.TxHash),
			zap.Error(err))
		return
	}
	settled := *tx
	settled.Status = status
	t.mu.Lock()
	t.settled = append(t.settled, &settled)
	t.mu.Unlock()
	zap.L().Info("chain tx settled",
		zap.String("namespace", "ledger"),
		zap.String("method", tx.Method),
		zap.String("tx", tx.TxHash),
		zap.String("status", status))
}

// applySettled feeds the pass's settled rows to the catalog in submission
// order, so a sale confirmed in the same pass as its purchase lands first.
func (t *ReceiptTracker) applySettled(ctx context.Context) {
	t.mu.Lock()
	settled := t.settled
	t.settled = nil
	t.mu.Unlock()
	if t.catalog == nil {
		return
	}
	sort.Slice(settled, func(i, j int) bool {
		if settled[i].CreatedAt.Equal(settled[j].CreatedAt) {
			return settled[i].ID < settled[j].ID
		}
		return settled[i].CreatedAt.Before(settled[j].CreatedAt)
	})
	for _, tx := range settled {
		if err := t.catalog.Apply(ctx, tx); err != nil {
			zap.L().Error("product update failed",
				zap.String("namespace", "ledger"),
				zap.String("identifier", tx.Identifier),
				zap.String("tx", tx.TxHash),
				zap.Error(err))
		}
	}
}
