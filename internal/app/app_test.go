package app

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prodauth/prodauth/config"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/internal/qrcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type confirmingBackend struct{}

func (confirmingBackend) Transact(_ context.Context, _ chain.Credentials, method string, _ ...interface{}) (*chain.TxReceipt, error) {
	return &chain.TxReceipt{Method: method, TxHash: "0x01", Status: chain.TxPending}, nil
}

func (confirmingBackend) Call(_ context.Context, _ string, _ ...interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (confirmingBackend) ReceiptStatus(_ context.Context, hash string) (*chain.TxReceipt, error) {
	return &chain.TxReceipt{TxHash: hash, Status: chain.TxConfirmed, BlockNumber: 5}, nil
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cfg := *config.DefaultAppConfig
	cfg.System.Workdir = ""
	cfg.Logger.FileEnable = false
	cfg.Chain.ArtifactsDir = t.TempDir()
	cfg.Chain.MaxReceiptChecks = 3

	a := NewApplication(&cfg)
	a.OverrideDB(db)
	a.OverrideBackend(confirmingBackend{})
	a.Init(&cfg)
	t.Cleanup(a.Release)
	return a
}

func TestInitWiresLedger(t *testing.T) {
	a := newTestApp(t)
	require.NotNil(t, a.Ledger())
	require.NotNil(t, a.Scheduler())
	assert.Len(t, a.Scheduler().Entries(), 3)
	assert.True(t, a.DB().Migrator().HasTable(&domain.ChainTx{}))
}

func TestTrackReceipts(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.DB().Create(&domain.ChainTx{ID: 7, TxHash: "0x07", Status: domain.TxPending}).Error)

	stats, err := a.TrackReceipts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Confirmed)

	var tx domain.ChainTx
	require.NoError(t, a.DB().First(&tx, 7).Error)
	assert.Equal(t, domain.TxConfirmed, tx.Status)
	assert.Equal(t, uint64(5), tx.BlockNumber)
}

func TestClearExpireData(t *testing.T) {
	a := newTestApp(t)
	a.Config().System.TxHistoryDays = 10
	require.NoError(t, a.DB().Create(&domain.ChainTx{ID: 1, TxHash: "0x01", Status: domain.TxConfirmed, CreatedAt: time.Now().AddDate(0, 0, -11)}).Error)
	require.NoError(t, a.DB().Create(&domain.ChainTx{ID: 2, TxHash: "0x02", Status: domain.TxConfirmed}).Error)

	a.SchedClearExpireData()

	var count int64
	a.DB().Model(&domain.ChainTx{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCheckStaleTransactions(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.DB().Create(&domain.ChainTx{ID: 1, TxHash: "0x01", Status: domain.TxPending, CheckCount: 3}).Error)
	require.NoError(t, a.DB().Create(&domain.ChainTx{ID: 2, TxHash: "0x02", Status: domain.TxPending, CheckCount: 1}).Error)

	a.checkStaleTransactions()

	var txs []domain.ChainTx
	require.NoError(t, a.DB().Order("id").Find(&txs).Error)
	assert.Equal(t, domain.TxFailed, txs[0].Status)
	assert.Equal(t, domain.TxPending, txs[1].Status)
}

func TestQrcodeOptions(t *testing.T) {
	opts, err := QrcodeOptions(config.QrcodeConfig{Level: "H", BoxSize: 3, Border: 2})
	require.NoError(t, err)
	assert.Equal(t, qrcodec.Options{Level: qrcodec.LevelHigh, BoxSize: 3, Border: 2}, opts)

	opts, err = QrcodeOptions(config.QrcodeConfig{Level: "low", BoxSize: 10})
	require.NoError(t, err)
	assert.True(t, opts.NoBorder)

	_, err = QrcodeOptions(config.QrcodeConfig{Level: "max"})
	assert.Error(t, err)
}

func TestDialFailureFallsBack(t *testing.T) {
	cfg := *config.DefaultAppConfig
	cfg.Chain.ArtifactsDir = t.TempDir()
	a := NewApplication(&cfg)
	b := a.dialChain()
	_, err := chain.NewContract(b).Inspect(context.Background(), "41")
	assert.ErrorIs(t, err, chain.ErrUnavailable)
}
