package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coinsub.com/internal/core/service"
	"coinsub.com/internal/domain"
	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/metrics"
	"coinsub.com/pkg/safe"
	"coinsub.com/pkg/xredis"
)

// sweep 互斥锁的 key
const sweepLockKey = "coinsub:reconciler:sweep"

type Config struct {
	SweepInterval time.Duration // 对账间隔
	AlertInterval time.Duration // 提醒检查间隔 (比对账快)
	WorkerCount   uint8         // 余额检查的并发 worker 数
	LockTTL       time.Duration // sweep 锁的自动过期时间
}

// Engine 对账引擎
// 每个 tick 做一轮 sweep：先查所有 Pending 交易的余额，
// 再清理超时的——顺序不能反，交易可能在超时的同一个窗口里到账，
// 余额检查优先，把网络延迟的好处让给付款方
type Engine struct {
	config   *Config
	rdb      *redis.Client
	store    service.Store
	payments *service.PaymentService
	balance  domain.BalanceOracle
	checker  domain.DoubleSpendChecker
	notifier domain.Notifier
}

func New(cfg *Config, rdb *redis.Client, store service.Store, payments *service.PaymentService,
	balance domain.BalanceOracle, checker domain.DoubleSpendChecker, notifier domain.Notifier) *Engine {
	// 对默认的配置进行兜底
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 4 * time.Minute
	}

	return &Engine{
		config:   cfg,
		rdb:      rdb,
		store:    store,
		payments: payments,
		balance:  balance,
		checker:  checker,
		notifier: notifier,
	}
}

func (e *Engine) Start(ctx context.Context) {
	logger.Info(ctx, "🚀 对账引擎启动",
		zap.Duration("sweep_interval", e.config.SweepInterval),
		zap.Duration("alert_interval", e.config.AlertInterval),
		zap.Uint8("workers", e.config.WorkerCount))

	// 对账和提醒是两个独立调度的任务，共享同一个存储
	safe.GoCtx(ctx, func(ctx context.Context) {
		e.sweepLoop(ctx)
	})
	safe.GoCtx(ctx, func(ctx context.Context) {
		e.alertLoop(ctx)
	})

	<-ctx.Done()
	logger.Info(ctx, "🛑 对账引擎停止")
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep 一轮完整对账
// 分布式锁保证同一时刻只有一个 sweep：上一轮还没跑完时
// 下一个 tick 直接跳过，绝不双重处理同一笔交易
func (e *Engine) Sweep(ctx context.Context) {
	lock := xredis.NewDistLock(e.rdb, sweepLockKey, e.config.LockTTL)
	got, err := lock.TryLock(ctx)
	if err != nil {
		logger.Error(ctx, "sweep 抢锁失败", zap.Error(err))
		return
	}
	if !got {
		metrics.SweepSkippedTotal.Inc()
		logger.Warn(ctx, "上一轮 sweep 还在跑，本轮跳过")
		return
	}
	defer func() {
		if _, err := lock.Unlock(ctx); err != nil {
			logger.Error(ctx, "sweep 释放锁失败", zap.Error(err))
		}
	}()

	// 看门狗：sweep 可能超过锁的 TTL (大积压 × 每源 15s 超时)，
	// 持锁期间定期续期，否则锁悄悄过期、互斥名存实亡
	wctx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	safe.Go(func() {
		ticker := time.NewTicker(e.config.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
				held, err := lock.Refresh(wctx)
				if err != nil {
					logger.Error(wctx, "sweep 锁续期失败", zap.Error(err))
					continue
				}
				if !held {
					logger.Warn(wctx, "sweep 锁已丢失，后续 tick 可能并行")
					return
				}
			}
		}
	})

	started := time.Now()
	logger.Info(ctx, "开始对账")

	// 第一趟：所有 Pending 交易查余额 (包括技术上已超时的)
	e.checkPendingBalances(ctx)

	// 第二趟：清理超时交易
	e.expireOverdue(ctx)

	// 顺带把到期订阅翻成 expired
	if n, err := e.store.ExpireDue(ctx, time.Now().UTC()); err != nil {
		logger.Error(ctx, "订阅过期清理失败", zap.Error(err))
	} else if n > 0 {
		logger.Info(ctx, "订阅过期清理完成", zap.Int64("expired", n))
	}

	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	logger.Info(ctx, "对账完成", zap.Duration("took", time.Since(started)))
}

// checkPendingBalances 余额检查趟，worker 并发扇出
// 每笔 Pending 交易独占一个地址、每个用户最多一笔 Pending，
// 所以 worker 之间天然不会碰同一个地址或同一个用户
func (e *Engine) checkPendingBalances(ctx context.Context) {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		// 存储失败就等下一个 tick 重试，不留中间状态
		logger.Error(ctx, "拉取待对账交易失败", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	logger.Info(ctx, "待对账交易", zap.Int("count", len(pending)))

	txChan := make(chan *domain.Transaction, len(pending))
	var wg sync.WaitGroup
	for w := uint8(0); w < e.config.WorkerCount; w++ {
		wg.Add(1)
		safe.Go(func() {
			defer wg.Done()
			for tx := range txChan {
				e.checkOne(ctx, tx)
			}
		})
	}

	for _, tx := range pending {
		txChan <- tx
	}
	close(txChan)
	wg.Wait()
}

// checkOne 单笔交易的状态推进
func (e *Engine) checkOne(ctx context.Context, tx *domain.Transaction) {
	res := e.balance.GetBalance(ctx, tx.BtcAddress)

	switch {
	case res.State == domain.BalanceUnknown:
		// 余额不明不做任何迁移，下一轮再说
		metrics.TxProcessedTotal.WithLabelValues("unknown_balance").Inc()
		logger.Warn(ctx, "余额不明，跳过本轮",
			zap.Int64("tx_id", tx.ID), logger.Address("addr", tx.BtcAddress))

	case res.State == domain.BalanceNonZero && res.Amount.GreaterThanOrEqual(tx.BtcAmount):
		// 钱到齐了，先过重复付款检测
		if e.checker.LooksLikeDoubleSpend(ctx, tx.BtcAddress, tx.BtcAmount) {
			// 挂起：保持 Pending，等人工处理，绝不自动确认
			metrics.TxProcessedTotal.WithLabelValues("held").Inc()
			metrics.DoubleSpendAlertsTotal.Inc()
			e.notifier.DoubleSpendAlert(ctx, tx)
			return
		}
		won, err := e.payments.Confirm(ctx, tx)
		if err != nil {
			logger.Error(ctx, "确认付款失败", zap.Int64("tx_id", tx.ID), zap.Error(err))
			return
		}
		if won {
			metrics.TxProcessedTotal.WithLabelValues("confirmed").Inc()
		}

	case res.State == domain.BalanceNonZero:
		// 0 < 余额 < 应付：发部分付款提醒，状态不动
		metrics.TxProcessedTotal.WithLabelValues("partial").Inc()
		e.notifier.PartialPayment(ctx, tx, res.Amount)

	default:
		metrics.TxProcessedTotal.WithLabelValues("no_change").Inc()
	}
}

// expireOverdue 超时清理趟
// 跑在余额检查之后：刚才确认掉的已经不在 Pending 里了
func (e *Engine) expireOverdue(ctx context.Context) {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		logger.Error(ctx, "拉取待对账交易失败", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, tx := range pending {
		if tx.ExpiresAt.After(now) {
			continue
		}

		ok, err := e.store.UpdateStatus(ctx, tx.ID, domain.TxStatusPending, domain.TxStatusExpired, nil)
		if err != nil {
			logger.Error(ctx, "标记超时失败", zap.Int64("tx_id", tx.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue // 已被别处处理
		}

		metrics.TxProcessedTotal.WithLabelValues("expired").Inc()
		logger.Info(ctx, "⏰ 交易超时作废",
			zap.Int64("tx_id", tx.ID), zap.Int64("user_id", tx.UserID))

		// 地址回收有零余额门槛：收过钱却没对上账的地址绝不回池
		// 过期后才到账的钱不再自动确认，ReleaseIfVerifiedZero
		// 会把非零余额记出来给运营看
		e.payments.ReleaseIfVerifiedZero(ctx, tx.BtcAddress)
		e.notifier.PaymentExpired(ctx, tx)
	}
}
