package explorer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/metrics"
)

// 单个行情源的请求超时
const priceFetchTimeout = 10 * time.Second

// PriceOracle 行情聚合器
// 公共行情 API 的故障互不相关，按配置顺序挨个试就能拿到高可用，
// 不需要多数表决——这个场景下几秒的价格滞后无所谓
type PriceOracle struct {
	registry *Registry
	client   *Client
	fallback decimal.Decimal // 全部源失败时的静态兜底价
	sf       singleflight.Group
}

var _ domain.PriceOracle = (*PriceOracle)(nil)

func NewPriceOracle(registry *Registry, client *Client, fallback decimal.Decimal) *PriceOracle {
	return &PriceOracle{
		registry: registry,
		client:   client,
		fallback: fallback,
	}
}

type priceAnswer struct {
	price  decimal.Decimal
	source string
}

// GetPrice 当前 BTC/USD 价格（实现 domain.PriceOracle 接口）
// 永不返回非正数；这个调用除了日志没有任何副作用
func (o *PriceOracle) GetPrice(ctx context.Context) (decimal.Decimal, string) {
	// singleflight 防击穿：sweep 的几十个 worker 同时要价格时只打一次外网
	v, _, _ := o.sf.Do("btc_usd", func() (interface{}, error) {
		return o.scan(ctx), nil
	})
	ans := v.(priceAnswer)
	metrics.PriceValue.Set(ans.price.InexactFloat64())
	return ans.price, ans.source
}

func (o *PriceOracle) scan(ctx context.Context) priceAnswer {
	for i, src := range o.registry.Prices {
		fetchCtx, cancel := context.WithTimeout(ctx, priceFetchTimeout)
		body, err := o.client.Get(fetchCtx, src.Name, src.URL)
		cancel()
		if err != nil {
			// 超时/连接错误/非2xx 都只是跳过，不是致命错误
			metrics.SourceErrorsTotal.WithLabelValues("price", src.Name, "fetch").Inc()
			logger.Warn(ctx, "行情源请求失败，换下一个",
				zap.String("source", src.Name), zap.Error(err))
			continue
		}

		price, err := src.Parse(body)
		if err != nil {
			metrics.SourceErrorsTotal.WithLabelValues("price", src.Name, "parse").Inc()
			logger.Warn(ctx, "行情源响应解析失败",
				zap.String("source", src.Name), zap.Error(err))
			continue
		}

		// 只接受严格为正的价格
		if !price.IsPositive() {
			metrics.SourceErrorsTotal.WithLabelValues("price", src.Name, "nonpositive").Inc()
			logger.Warn(ctx, "行情源返回非正价格",
				zap.String("source", src.Name), zap.String("price", price.String()))
			continue
		}

		metrics.SourceFallbackDepth.WithLabelValues("price").Observe(float64(i + 1))
		logger.Debug(ctx, "行情获取成功",
			zap.String("source", src.Name), zap.String("price", price.String()))
		return priceAnswer{price: price, source: src.Name}
	}

	// 全部源耗尽：降级信号，不是崩溃
	logger.Warn(ctx, "⚠️ 所有行情源全部失败，使用静态兜底价格",
		zap.String("fallback", o.fallback.String()))
	return priceAnswer{price: o.fallback, source: "fallback"}
}
