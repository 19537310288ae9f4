package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coinsub.com/pkg/logger"
)

// 催单 / 提醒的时间窗口
// 窗口宽度要大于 AlertInterval，否则会漏人；
// 每轮 tick 窗口整体前移，同一个用户最多落进窗口几次，
// 渲染层按自己的口味去重
const (
	nudgeAfter      = 10 * time.Minute // 注册多久没付款开始催
	nudgeWindow     = 5 * time.Minute
	nudgeBatchLimit = 5 // 一轮最多催几个人，别刷屏

	reminderAfter  = 35 * time.Minute // 确认多久后发"别再付一次"
	reminderWindow = 5 * time.Minute
)

func (e *Engine) alertLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.AlertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runAlerts(ctx)
		}
	}
}

// runAlerts 提醒轮：比对账轮跑得快，但只读不写
func (e *Engine) runAlerts(ctx context.Context) {
	e.nudgeUnpaidUsers(ctx)
	e.remindConfirmed(ctx)
}

// nudgeUnpaidUsers 🔔 催注册后一直没付款的用户
func (e *Engine) nudgeUnpaidUsers(ctx context.Context) {
	now := time.Now().UTC()
	from := now.Add(-nudgeAfter - nudgeWindow)
	to := now.Add(-nudgeAfter)

	users, err := e.store.ListRecentWithoutConfirmed(ctx, from, to, nudgeBatchLimit)
	if err != nil {
		logger.Error(ctx, "拉取未付款用户失败", zap.Error(err))
		return
	}
	if len(users) == 0 {
		return
	}

	logger.Info(ctx, "🔔 未付款用户催单", zap.Int("count", len(users)))
	e.notifier.UnpaidUserNudge(ctx, users)
}

// remindConfirmed 🔔 确认半小时后提醒用户别对同一个地址二次付款
// 地址确认后已经退出对账，再打钱没人盯，提醒是唯一的防线
func (e *Engine) remindConfirmed(ctx context.Context) {
	now := time.Now().UTC()
	from := now.Add(-reminderAfter - reminderWindow)
	to := now.Add(-reminderAfter)

	txs, err := e.store.ListConfirmedBetween(ctx, from, to)
	if err != nil {
		logger.Error(ctx, "拉取已确认交易失败", zap.Error(err))
		return
	}

	for _, tx := range txs {
		e.notifier.DoubleSpendReminder(ctx, tx)
	}
}
