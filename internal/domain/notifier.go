package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Notifier 引擎对外的消息出口
// 渲染和投递 (Telegram/邮件/站内信) 是外部协作者的事，引擎只发事件
type Notifier interface {
	// PaymentConfirmed 付款确认，订阅已开通
	PaymentConfirmed(ctx context.Context, tx *Transaction, sub *Subscription)
	// PartialPayment 只收到一部分钱
	PartialPayment(ctx context.Context, tx *Transaction, received decimal.Decimal)
	// PaymentExpired 付款超时作废
	PaymentExpired(ctx context.Context, tx *Transaction)
	// DoubleSpendAlert 疑似重复付款，交易挂起待人工处理
	DoubleSpendAlert(ctx context.Context, tx *Transaction)
	// UnpaidUserNudge 注册后迟迟未付款的用户清单 (发给运营)
	UnpaidUserNudge(ctx context.Context, users []*User)
	// DoubleSpendReminder 确认后的"别再付一次"提醒
	DoubleSpendReminder(ctx context.Context, tx *Transaction)
}
