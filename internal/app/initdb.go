package app

import (
	"path"

	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/pkg/common"
	"go.uber.org/zap"
)

// checkArtifacts warns when the contract build output is missing.
func (a *Application) checkArtifacts() {
	mapFile := path.Join(a.appConfig.Chain.ArtifactsDir, "deployments", "map.json")
	if !common.FileExists(mapFile) {
		zap.L().Warn("contract deployment map not found",
			zap.String("namespace", "chain"),
			zap.String("file", mapFile))
	}
}

// checkStaleTransactions fails pending rows that already used up their
// receipt checks, e.g. after MaxReceiptChecks was lowered.
func (a *Application) checkStaleTransactions() {
	limit := a.appConfig.Chain.MaxReceiptChecks
	if limit <= 0 {
		return
	}
	res := a.gormDB.Model(&domain.ChainTx{}).
		Where("status = ? AND check_count >= ?", domain.TxPending, limit).
		Updates(map[string]interface{}{
			"status":    domain.TxFailed,
			"error_msg": "no receipt after maximum checks",
		})
	if res.Error != nil {
		zap.L().Error("failed to settle stale transactions", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		zap.L().Info("settled stale transactions", zap.Int64("count", res.RowsAffected))
	}
}
