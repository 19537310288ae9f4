package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appconf "coinsub.com/config"
	"coinsub.com/internal/api"
	"coinsub.com/internal/app/reconciler"
	"coinsub.com/internal/core/service"
	"coinsub.com/internal/domain"
	"coinsub.com/internal/infra/explorer"
	"coinsub.com/internal/infra/notify"
	"coinsub.com/internal/infra/persistence"
	"coinsub.com/pkg/config"
	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/orm"
	"coinsub.com/pkg/ratelimit"
	"coinsub.com/pkg/safe"
	"coinsub.com/pkg/xredis"
)

const serviceName = "reconciler"

func main() {
	// 1. 配置
	var cfg appconf.Config
	if _, err := config.LoadAndWatch(serviceName, &cfg); err != nil {
		panic("load config failed: " + err.Error())
	}

	// 2. 日志
	logger.InitWithFile(serviceName, cfg.Log.Level, cfg.Log.File)
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "服务启动", zap.String("service", serviceName))

	// 3. 依赖：MySQL / Redis
	db := orm.NewMySQL(&cfg.Mysql)
	rdb := xredis.NewRedis(&cfg.Redis)

	repo := persistence.New(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Fatal(ctx, "建表失败", zap.Error(err))
	}

	// 4. 区块链数据源
	registry := explorer.BuildRegistry(cfg.Sources.PriceURLs, cfg.Sources.BalanceURLs)
	client := explorer.NewClient()
	priceOracle := explorer.NewPriceOracle(registry, client, cfg.FallbackPrice())
	balanceOracle := explorer.NewBalanceOracle(registry, client)
	detector := explorer.NewDoubleSpendDetector(registry, client)

	var notifier domain.Notifier = notify.NewLogNotifier()

	// 5. 业务服务
	plans := cfg.PlanBook()
	svc := service.NewPaymentService(repo, priceOracle, balanceOracle, notifier, plans, cfg.PaymentTimeout())

	// 地址池播种 (幂等，重复启动不会重复导入)
	if cfg.Addresses.File != "" {
		seeder := service.NewAddressSeeder(repo, cfg.Addresses.Network)
		if _, err := seeder.SeedFromFile(ctx, cfg.Addresses.File); err != nil {
			logger.Warn(ctx, "地址池播种失败", zap.Error(err))
		}
	}

	// 6. 对账引擎
	engine := reconciler.New(&reconciler.Config{
		SweepInterval: cfg.SweepInterval(),
		AlertInterval: cfg.AlertInterval(),
		WorkerCount:   cfg.Sweep.Workers,
		LockTTL:       cfg.SweepLockTTL(),
	}, rdb, repo, svc, balanceOracle, detector, notifier)

	safe.GoCtx(ctx, func(ctx context.Context) {
		engine.Start(ctx)
	})

	// 7. HTTP 服务
	// 按 ip:route 限流，5 qps / 突发 10
	limiter := ratelimit.NewStore(rate.Limit(5), 10, 10*time.Minute)
	limiter.StartJanitor(ctx, time.Minute)

	handler := api.NewHandler(svc, priceOracle, balanceOracle)
	router := api.NewRouter(handler, limiter, cfg.HTTP.AdminToken)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
	safe.Go(func() {
		logger.Info(ctx, "HTTP 服务监听", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP 服务异常退出", zap.Error(err))
		}
	})

	// 8. 等退出信号，优雅停机
	<-ctx.Done()
	logger.Info(context.Background(), "收到退出信号，开始停机")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP 停机失败", zap.Error(err))
	}

	logger.Info(context.Background(), "服务已停止")
}
