package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZkAGI/pawpad-rofl/internal/audit"
	"github.com/ZkAGI/pawpad-rofl/internal/audit/ledger"
	"github.com/ZkAGI/pawpad-rofl/internal/chain/evm"
	"github.com/ZkAGI/pawpad-rofl/internal/chain/solana"
	"github.com/ZkAGI/pawpad-rofl/internal/config"
	cronrunner "github.com/ZkAGI/pawpad-rofl/internal/cron"
	"github.com/ZkAGI/pawpad-rofl/internal/db"
	"github.com/ZkAGI/pawpad-rofl/internal/handler"
	"github.com/ZkAGI/pawpad-rofl/internal/lockstore"
	"github.com/ZkAGI/pawpad-rofl/internal/logger"
	"github.com/ZkAGI/pawpad-rofl/internal/paas"
	gormrepository "github.com/ZkAGI/pawpad-rofl/internal/repository/gorm"
	"github.com/ZkAGI/pawpad-rofl/internal/risk"
	"github.com/ZkAGI/pawpad-rofl/internal/scheduler"
	"github.com/ZkAGI/pawpad-rofl/internal/service"
	signalfeed "github.com/ZkAGI/pawpad-rofl/internal/signal"
	"github.com/ZkAGI/pawpad-rofl/internal/tee"
	"github.com/ZkAGI/pawpad-rofl/internal/trade"
)

func main() {
	cfgPath := os.Getenv("PAWPAD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PAWPAD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}
	switchOn := func(key string) func(ctx context.Context) bool {
		return func(ctx context.Context) bool { return settingsSvc.IsEnabled(ctx, key, true) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys := tee.New(cfg.TEE)
	if cfg.TEE.Mock {
		logger.Warn("tee mock key derivation enabled, do not use with real funds")
	}
	guard := risk.NewGuard(cfg.Trading)

	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	baseClient, err := evm.Dial(dialCtx, cfg.EVM.RPCURL)
	cancelDial()
	if err != nil {
		logger.Fatal("base rpc dial failed", zap.Error(err))
	}
	defer baseClient.Close()

	registry := trade.Registry{
		signalfeed.AssetETH: evm.NewExecutor(cfg.EVM, baseClient, keys, guard, logger.Named("evm")),
		signalfeed.AssetSOL: solana.NewExecutor(cfg.Solana, keys, guard, logger.Named("solana")),
	}

	paasClient := initPaaSClient(logger)
	emitters := audit.Multi{}
	status := &handler.StatusHandler{TradingDisabled: cfg.Trading.Disabled}
	if onchain := initLedger(ctx, cfg, keys, logger); onchain != nil {
		emitters = append(emitters, audit.Gated{Emitter: onchain, Enabled: switchOn(service.FeatureAuditLedger)})
		status.AuditSigner = onchain
	}
	if paasClient != nil {
		emitters = append(emitters, audit.Gated{Emitter: &audit.OpsLogEmitter{Client: paasClient}, Enabled: switchOn(service.FeatureAuditOpsLogs)})
	}

	fetcher := signalfeed.NewHTTPFetcher(cfg.Signals, store, logger.Named("signals"))
	fetcher.LogEnabled = switchOn(service.FeatureSignalLogs)

	locker := lockstore.New(cfg.Lock, logger)
	if closer, ok := locker.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	cycle := scheduler.NewCycle(cfg.Trading, cfg.Lock.TTL)
	cycle.Fetcher = fetcher
	cycle.Users = store
	cycle.Guard = guard
	cycle.Switches = settingsSvc
	cycle.Locker = locker
	cycle.Logger = logger.Named("cycle")
	status.Cycles = cycle
	status.Signals = fetcher
	cycle.Dispatcher = &trade.Dispatcher{
		Registry: registry,
		Trades:   store,
		Audit:    emitters,
		Logger:   logger.Named("dispatch"),
	}

	if cfg.Trading.Disabled {
		logger.Warn("trading kill switch is on, cycles will not trade")
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := handler.NewEngine(
		[]gin.HandlerFunc{
			paas.RequireBearerMiddleware(),
			paas.WriteAuditMiddleware(paasClient, logger),
		},
		&handler.HealthHandler{Ping: func() error { return db.Ping(dbConn) }},
		status,
		&handler.TradesHandler{Repo: store},
		&handler.SwitchesHandler{Settings: settingsSvc},
		&handler.CyclesHandler{Runner: cycle, BaseCtx: ctx, Logger: logger},
	)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if _, err := cronRunner.Add(cfg.Trading.CycleCron, func(ctx context.Context, tickID string) {
		cycle.Run(ctx, tickID)
	}); err != nil {
		logger.Fatal("cycle cron add failed", zap.String("spec", cfg.Trading.CycleCron), zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Trading.RunOnStart {
		go cycle.Run(ctx, "startup-"+uuid.NewString())
	}

	paasClient.LogBestEffort("pawpad_trader_start", "info", map[string]any{
		"env":              cfg.App.Env,
		"trading_disabled": cfg.Trading.Disabled,
		"cycle_cron":       cfg.Trading.CycleCron,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	paasClient.LogBestEffort("pawpad_trader_stop", "info", nil)
}

func initPaaSClient(logger *zap.Logger) *paas.Client {
	p := paas.NewFromEnv()
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		logger.Warn("paas login failed (ops logs disabled)", zap.Error(err))
		return nil
	}
	logger.Info("paas login ok")
	return p
}

// initLedger returns nil when no audit contract is configured outside mock
// mode.
func initLedger(ctx context.Context, cfg config.Config, keys tee.KeyDeriver, logger *zap.Logger) *ledger.Emitter {
	if cfg.TEE.Mock {
		return ledger.New(cfg.Audit, nil, keys, true, logger.Named("ledger"))
	}
	if strings.TrimSpace(cfg.Audit.Contract) == "" {
		logger.Warn("audit.contract not set, on-chain audit disabled")
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client, err := evm.Dial(dialCtx, cfg.Audit.RPCURL)
	if err != nil {
		logger.Error("sapphire rpc dial failed, on-chain audit disabled", zap.Error(err))
		return nil
	}
	return ledger.New(cfg.Audit, client, keys, false, logger.Named("ledger"))
}
