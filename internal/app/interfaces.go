package app

import (
	"context"

	"github.com/prodauth/prodauth/config"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/ledger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// LedgerProvider provides the product service and the contract backend
type LedgerProvider interface {
	Ledger() *ledger.Service
	Backend() chain.Backend
}

// AppContext combines all provider interfaces for full application context
// Handlers should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	LedgerProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// TrackReceipts runs a receipt tracker pass immediately
	TrackReceipts(ctx context.Context) (ledger.TrackStats, error)
}
