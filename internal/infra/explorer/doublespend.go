package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/logger"
)

const (
	// 历史查询超时
	historyFetchTimeout = 10 * time.Second
)

// doubleSpendTolerance 金额匹配容差 ≈ 1000 sat
// 付款方钱包可能会把找零或手续费折进来，完全等值匹配会漏
var doubleSpendTolerance = decimal.RequireFromString("0.00001")

// DoubleSpendDetector 重复付款启发式检测
// 一次性地址只该收到一笔钱；同一地址出现两笔"恰好等于应付金额"的
// 输出，大概率是用户重复付款或在试探对账逻辑
//
// 查询失败一律判定可疑 (fail closed)：误报的代价是人工复核，
// 自动确认一笔可能重复的付款代价大得多
type DoubleSpendDetector struct {
	source *BalanceSource // 指定的一个带历史接口的源
	client *Client
}

var _ domain.DoubleSpendChecker = (*DoubleSpendDetector)(nil)

func NewDoubleSpendDetector(registry *Registry, client *Client) *DoubleSpendDetector {
	return &DoubleSpendDetector{
		source: registry.HistorySource(),
		client: client,
	}
}

// LooksLikeDoubleSpend（实现 domain.DoubleSpendChecker 接口）
func (d *DoubleSpendDetector) LooksLikeDoubleSpend(ctx context.Context, address string, expected decimal.Decimal) bool {
	if address == "" {
		logger.Warn(ctx, "重复付款检测收到空地址")
		return false
	}
	if d.source == nil {
		// 没配任何带历史接口的源，没法检测，宁可误报
		logger.Error(ctx, "没有可用的交易历史源，按可疑处理")
		return true
	}

	url := fmt.Sprintf("%s/address/%s/txs", d.source.BaseURL, address)

	fetchCtx, cancel := context.WithTimeout(ctx, historyFetchTimeout)
	body, err := d.client.GetOrNotFound(fetchCtx, d.source.Name+"_txs", url)
	cancel()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// 地址连交易都没有，谈不上重复付款
			return false
		}
		logger.Error(ctx, "交易历史查询失败，按可疑处理",
			logger.Address("addr", address), zap.Error(err))
		return true
	}

	matches, err := countMatchingOutputs(body, address, expected)
	if err != nil {
		logger.Error(ctx, "交易历史解析失败，按可疑处理",
			logger.Address("addr", address), zap.Error(err))
		return true
	}

	if matches > 1 {
		logger.Warn(ctx, "🚨 检测到疑似重复付款",
			logger.Address("addr", address),
			zap.String("expected", expected.String()),
			zap.Int("matching_outputs", matches))
		return true
	}
	return false
}

// countMatchingOutputs 统计指向 address、金额在容差内等于 expected 的输出
// 响应格式按 blockstream/mempool 系：[{"vout":[{"scriptpubkey_address","value"}]}]
func countMatchingOutputs(body []byte, address string, expected decimal.Decimal) (int, error) {
	v, err := decode(body)
	if err != nil {
		return 0, err
	}
	txs, ok := v.([]interface{})
	if !ok {
		return 0, fmt.Errorf("expected tx array")
	}

	matches := 0
	for _, tx := range txs {
		vout, ok := dig(tx, "vout")
		if !ok {
			continue
		}
		outs, ok := vout.([]interface{})
		if !ok {
			continue
		}
		for _, out := range outs {
			addr, ok := dig(out, "scriptpubkey_address")
			if !ok || addr != address {
				continue
			}
			val, ok := dig(out, "value")
			if !ok {
				continue
			}
			sat, err := num(val)
			if err != nil {
				continue
			}
			btc := sat.Div(satoshiFactor)
			if btc.Sub(expected).Abs().LessThan(doubleSpendTolerance) {
				matches++
			}
		}
	}
	return matches, nil
}
