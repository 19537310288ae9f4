package explorer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/metrics"
)

const (
	// 单个浏览器源的请求超时，余额接口普遍比行情慢
	balanceFetchTimeout = 15 * time.Second
	// 比特币地址的最小合理长度，短于它连请求都不用发
	minAddressLen = 26
)

// BalanceOracle 地址余额聚合器
// 返回三态结果：所有源都挂了是 Unknown，不坍缩成 0——
// 过期清理靠"确认过的零余额"判断能不能回收地址
type BalanceOracle struct {
	registry *Registry
	client   *Client
}

var _ domain.BalanceOracle = (*BalanceOracle)(nil)

func NewBalanceOracle(registry *Registry, client *Client) *BalanceOracle {
	return &BalanceOracle{registry: registry, client: client}
}

// GetBalance 探测地址累计收款余额（实现 domain.BalanceOracle 接口）
func (o *BalanceOracle) GetBalance(ctx context.Context, address string) domain.BalanceResult {
	if len(address) < minAddressLen {
		logger.Warn(ctx, "地址长度不合法，拒绝查询", logger.Address("addr", address))
		return domain.BalanceResult{State: domain.BalanceUnknown}
	}

	// 有源明确回答过 404 (地址无任何历史) 时，耗尽后按确认零处理
	sawNotFound := false

	for i, src := range o.registry.Balances {
		if src.ShapeURL == nil {
			// 不认识的厂商拼不出余额 URL，跳过
			logger.Debug(ctx, "浏览器源无已知 URL 形态，跳过", zap.String("source", src.Name))
			continue
		}
		url := src.ShapeURL(src.BaseURL, address)

		fetchCtx, cancel := context.WithTimeout(ctx, balanceFetchTimeout)
		body, err := o.client.GetOrNotFound(fetchCtx, src.Name, url)
		cancel()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// 404 = 地址没有任何历史，换下一个源确认
				sawNotFound = true
				logger.Debug(ctx, "浏览器源未收录该地址",
					zap.String("source", src.Name), logger.Address("addr", address))
				continue
			}
			metrics.SourceErrorsTotal.WithLabelValues("balance", src.Name, "fetch").Inc()
			logger.Warn(ctx, "浏览器源请求失败，换下一个",
				zap.String("source", src.Name), logger.Address("addr", address), zap.Error(err))
			continue
		}

		amount, err := src.Parse(body, address)
		if err != nil {
			metrics.SourceErrorsTotal.WithLabelValues("balance", src.Name, "parse").Inc()
			logger.Warn(ctx, "浏览器源响应解析失败",
				zap.String("source", src.Name), zap.Error(err))
			continue
		}

		metrics.SourceFallbackDepth.WithLabelValues("balance").Observe(float64(i + 1))
		logger.Debug(ctx, "余额获取成功",
			zap.String("source", src.Name),
			logger.Address("addr", address),
			zap.String("balance", amount.String()))

		if amount.IsPositive() {
			return domain.BalanceResult{State: domain.BalanceNonZero, Amount: amount}
		}
		return domain.BalanceResult{State: domain.BalanceZero, Amount: decimal.Zero}
	}

	if sawNotFound {
		// 至少一个源明确说"没见过这个地址"，等价于确认的零余额
		return domain.BalanceResult{State: domain.BalanceZero, Amount: decimal.Zero}
	}

	// 全部源耗尽：真实余额不明，调用方绝不能当成零处理
	logger.Error(ctx, "❌ 所有浏览器源全部失败，余额不明", logger.Address("addr", address))
	return domain.BalanceResult{State: domain.BalanceUnknown}
}
