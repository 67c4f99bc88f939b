package app

import (
	"context"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/prodauth/prodauth/config"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/internal/ledger"
	"github.com/prodauth/prodauth/internal/qrcodec"
	"github.com/prodauth/prodauth/pkg/common"
	"github.com/prodauth/prodauth/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus
	backend   chain.Backend
	client    *chain.Client
	recorder  *ledger.Recorder
	ledger    *ledger.Service
	tracker   *ledger.ReceiptTracker
	pool      *ants.Pool
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ LedgerProvider    = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

// OverrideBackend replaces the contract backend (used in tests).
func (a *Application) OverrideBackend(b chain.Backend) {
	a.backend = b
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	initLogger(cfg)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if a.gormDB == nil {
		cfg.Database.Type = common.IfEmptyStr(cfg.Database.Type, "sqlite")
		a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
		zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)
	}

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	if a.backend == nil {
		a.backend = a.dialChain()
	}
	a.initLedger()

	go func() {
		time.Sleep(3 * time.Second)
		a.checkArtifacts()
		a.checkStaleTransactions()
	}()

	a.initJob()
}

func initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.GetLogFile(),
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)
}

// dialChain connects to the node. Without a node the service still runs;
// contract calls then fail with chain.ErrUnavailable.
func (a *Application) dialChain() chain.Backend {
	cfg := a.appConfig
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := chain.Dial(ctx, chain.Options{
		URL:          cfg.ProviderURL(),
		ArtifactsDir: cfg.Chain.ArtifactsDir,
		ChainID:      cfg.Chain.ChainID,
		Contract:     cfg.Chain.Contract,
		CallTimeout:  time.Duration(cfg.Chain.CallTimeout) * time.Second,
		WaitMined:    cfg.Chain.WaitMined,
	})
	if err != nil {
		zap.L().Error("blockchain connection failed, contract calls disabled",
			zap.String("namespace", "chain"),
			zap.Error(err))
		return chain.Unavailable(err)
	}
	a.client = client
	return client
}

func (a *Application) initLedger() {
	cfg := a.appConfig
	a.bus = EventBus.New()
	a.recorder = ledger.NewRecorder(ledger.NewGormChainTxRepository(a.gormDB))
	if err := a.recorder.Attach(a.bus); err != nil {
		zap.L().Error("ledger recorder subscribe failed", zap.Error(err))
	}

	qrOpts, err := QrcodeOptions(cfg.Qrcode)
	if err != nil {
		zap.L().Warn("invalid qrcode config, using defaults", zap.Error(err))
		qrOpts = qrcodec.DefaultOptions()
	}
	a.ledger = ledger.NewService(chain.NewContract(a.backend), a.gormDB, a.bus, ledger.WithQrcodeOptions(qrOpts))

	workers := cfg.Chain.ReceiptWorkers
	if workers <= 0 {
		workers = 16
	}
	a.pool, err = ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		zap.S().Errorf("receipt worker panic: %v", p)
	}))
	if err != nil {
		zap.L().Error("receipt worker pool init failed", zap.Error(err))
	}
	a.tracker = ledger.NewReceiptTracker(a.ledger.Transactions(), a.backend, a.pool, cfg.Chain.MaxReceiptChecks,
		ledger.WithCatalog(a.ledger.Catalog()))
}

// QrcodeOptions converts the configured QR defaults.
func QrcodeOptions(c config.QrcodeConfig) (qrcodec.Options, error) {
	level, err := qrcodec.ParseLevel(c.Level)
	if err != nil {
		return qrcodec.Options{}, err
	}
	return qrcodec.Options{
		Level:    level,
		BoxSize:  c.BoxSize,
		Border:   c.Border,
		NoBorder: c.Border == 0,
	}, nil
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		return a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...)
	}
	return a.gormDB.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Ledger() *ledger.Service {
	return a.ledger
}

// Backend returns the contract backend in use.
func (a *Application) Backend() chain.Backend {
	return a.backend
}

// TrackReceipts runs one receipt tracker pass now.
func (a *Application) TrackReceipts(ctx context.Context) (ledger.TrackStats, error) {
	return a.tracker.Run(ctx)
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.recorder != nil {
		a.recorder.Detach()
	}
	if a.pool != nil {
		a.pool.Release()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	_ = metrics.Close()
	_ = zap.L().Sync()
}
