package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type BalanceState uint8

// 余额探测结果状态
// "全部数据源失败"不能坍缩成 0，否则过期清理会把收过钱的地址放回池子
const (
	BalanceZero    BalanceState = iota // 确认过的零余额
	BalanceNonZero                     // 确认有余额
	BalanceUnknown                     // 所有数据源耗尽，真实余额不明
)

// BalanceResult 余额探测的三态结果
type BalanceResult struct {
	State  BalanceState
	Amount decimal.Decimal // 仅 NonZero 时有意义，整币单位
}

// VerifiedZero 是否是确认过的零余额 (Unknown 不算)
func (r BalanceResult) VerifiedZero() bool {
	return r.State == BalanceZero
}

// PriceOracle 法币汇率聚合器
type PriceOracle interface {
	// GetPrice 返回当前 BTC/USD 价格和使用的数据源名称
	// 永不返回非正数；全部数据源失败时返回配置的兜底价格
	GetPrice(ctx context.Context) (price decimal.Decimal, source string)
}

// BalanceOracle 地址余额聚合器
type BalanceOracle interface {
	// GetBalance 探测地址累计收款余额 (整币单位)
	GetBalance(ctx context.Context, address string) BalanceResult
}

// DoubleSpendChecker 重复付款启发式检测
type DoubleSpendChecker interface {
	// LooksLikeDoubleSpend 地址历史里是否有两笔以上输出金额 ≈ expected
	// 查询失败一律返回 true (宁可误报走人工复核)
	LooksLikeDoubleSpend(ctx context.Context, address string, expected decimal.Decimal) bool
}
