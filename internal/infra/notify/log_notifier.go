package notify

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/logger"
)

// LogNotifier 兜底的消息出口：结构化日志
// 真正的投递渠道 (Telegram/邮件) 是外部协作者，接同一个接口即可替换
type LogNotifier struct{}

var _ domain.Notifier = (*LogNotifier)(nil)

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) PaymentConfirmed(ctx context.Context, tx *domain.Transaction, sub *domain.Subscription) {
	fields := []zap.Field{
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("plan", tx.Plan),
		zap.String("btc_amount", tx.BtcAmount.String()),
	}
	if sub.ExpiresAt != nil {
		fields = append(fields, zap.Time("sub_expires_at", *sub.ExpiresAt))
	} else {
		fields = append(fields, zap.String("sub_expires_at", "lifetime"))
	}
	logger.Info(ctx, "NOTIFY ✅ 付款已确认，订阅开通", fields...)
}

func (n *LogNotifier) PartialPayment(ctx context.Context, tx *domain.Transaction, received decimal.Decimal) {
	logger.Info(ctx, "NOTIFY ⚠️ 收到部分付款",
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("received", received.String()),
		zap.String("expected", tx.BtcAmount.String()),
		zap.String("missing", tx.BtcAmount.Sub(received).String()),
		logger.Address("addr", tx.BtcAddress))
}

func (n *LogNotifier) PaymentExpired(ctx context.Context, tx *domain.Transaction) {
	logger.Info(ctx, "NOTIFY ⏰ 付款超时作废",
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("plan", tx.Plan))
}

func (n *LogNotifier) DoubleSpendAlert(ctx context.Context, tx *domain.Transaction) {
	logger.Warn(ctx, "NOTIFY 🚨 疑似重复付款，交易挂起待人工复核",
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("plan", tx.Plan),
		zap.String("btc_amount", tx.BtcAmount.String()),
		logger.Address("addr", tx.BtcAddress))
}

func (n *LogNotifier) UnpaidUserNudge(ctx context.Context, users []*domain.User) {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	logger.Info(ctx, "NOTIFY ⏰ 注册后未付款用户", zap.Int64s("user_ids", ids))
}

func (n *LogNotifier) DoubleSpendReminder(ctx context.Context, tx *domain.Transaction) {
	logger.Info(ctx, "NOTIFY 🔔 已确认付款的二次付款提醒",
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("plan", tx.Plan))
}
