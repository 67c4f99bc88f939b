package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReceipts map[string]*chain.TxReceipt

func (s scriptedReceipts) ReceiptStatus(_ context.Context, hash string) (*chain.TxReceipt, error) {
	rc, ok := s[hash]
	if !ok {
		return nil, errors.New("node timeout")
	}
	return rc, nil
}

func TestReceiptTracker(t *testing.T) {
	ctx := context.Background()
	repo := NewGormChainTxRepository(newTestDB(t))
	rows := []*domain.ChainTx{
		{ID: 1, TxHash: "0x01", Status: domain.TxPending},
		{ID: 2, TxHash: "0x02", Status: domain.TxPending},
		{ID: 3, TxHash: "0x03", Status: domain.TxPending},
		{ID: 4, TxHash: "0x04", Status: domain.TxPending, CheckCount: 2},
		{ID: 5, TxHash: "0x05", Status: domain.TxPending},
	}
	for _, r := range rows {
		require.NoError(t, repo.Create(ctx, r))
	}
	receipts := scriptedReceipts{
		"0x01": {Status: chain.TxConfirmed, BlockNumber: 10},
		"0x02": {Status: chain.TxFailed, BlockNumber: 11},
		"0x03": {Status: chain.TxPending},
		"0x04": {Status: chain.TxPending},
	}

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	tracker := NewReceiptTracker(repo, receipts, pool, 3)
	stats, err := tracker.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Checked)
	assert.EqualValues(t, 1, stats.Confirmed)
	assert.EqualValues(t, 2, stats.Failed)

	expect := map[string]string{
		"0x01": domain.TxConfirmed,
		"0x02": domain.TxFailed,
		"0x03": domain.TxPending,
		"0x04": domain.TxFailed,
		"0x05": domain.TxPending,
	}
	for hash, status := range expect {
		got, err := repo.GetByHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status, hash)
	}
	got, _ := repo.GetByHash(ctx, "0x01")
	assert.Equal(t, uint64(10), got.BlockNumber)
	got, _ = repo.GetByHash(ctx, "0x05")
	assert.Equal(t, 1, got.CheckCount)

	// second and third pass exhaust 0x05 and 0x03
	_, err = tracker.Run(ctx)
	require.NoError(t, err)
	stats, err = tracker.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Failed)
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReceiptTrackerWithoutPool(t *testing.T) {
	ctx := context.Background()
	repo := NewGormChainTxRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &domain.ChainTx{ID: 1, TxHash: "0x01", Status: domain.TxPending}))

	tracker := NewReceiptTracker(repo, scriptedReceipts{"0x01": {Status: chain.TxConfirmed}}, nil, 0)
	stats, err := tracker.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Confirmed)
}
