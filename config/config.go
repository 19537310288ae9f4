package config

import (
	"time"

	"github.com/shopspring/decimal"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/orm"
	"coinsub.com/pkg/xredis"
)

// Config 对账服务的全量配置，对应 etc/reconciler.yaml
// 数据源列表 / 兜底价格 / 档位表只在启动时读一次，热更新不生效
type Config struct {
	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"` // 为空时只打 stdout
	} `mapstructure:"log"`

	HTTP struct {
		Addr       string `mapstructure:"addr"`
		AdminToken string `mapstructure:"admin_token"` // 运营接口的访问口令
	} `mapstructure:"http"`

	Mysql orm.Config    `mapstructure:"mysql"`
	Redis xredis.Config `mapstructure:"redis"`

	Sources struct {
		// 数据源按配置顺序轮询，顺序就是优先级
		PriceURLs   []string `mapstructure:"price_urls"`
		BalanceURLs []string `mapstructure:"balance_urls"`
		// 所有价格源都挂掉时的兜底汇率 (USD/BTC)
		FallbackPriceUSD float64 `mapstructure:"fallback_price_usd"`
	} `mapstructure:"sources"`

	Payment struct {
		TimeoutMinutes int `mapstructure:"timeout_minutes"` // 付款窗口
	} `mapstructure:"payment"`

	Sweep struct {
		IntervalSeconds      int   `mapstructure:"interval_seconds"`
		AlertIntervalSeconds int   `mapstructure:"alert_interval_seconds"`
		Workers              uint8 `mapstructure:"workers"`
		LockTTLSeconds       int   `mapstructure:"lock_ttl_seconds"`
	} `mapstructure:"sweep"`

	Plans []PlanConfig `mapstructure:"plans"`

	Addresses struct {
		File    string `mapstructure:"file"`    // 一行一个地址的文本文件
		Network string `mapstructure:"network"` // mainnet / testnet / regtest
	} `mapstructure:"addresses"`
}

type PlanConfig struct {
	ID           string  `mapstructure:"id"`
	Name         string  `mapstructure:"name"`
	PriceUSD     float64 `mapstructure:"price_usd"`
	DurationDays int     `mapstructure:"duration_days"` // 0 表示终身
	Link         string  `mapstructure:"link"`
}

func (c *Config) FallbackPrice() decimal.Decimal {
	return decimal.NewFromFloat(c.Sources.FallbackPriceUSD)
}

func (c *Config) PaymentTimeout() time.Duration {
	if c.Payment.TimeoutMinutes <= 0 {
		return 180 * time.Minute
	}
	return time.Duration(c.Payment.TimeoutMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	if c.Sweep.IntervalSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.Sweep.IntervalSeconds) * time.Second
}

func (c *Config) AlertInterval() time.Duration {
	if c.Sweep.AlertIntervalSeconds <= 0 {
		return 80 * time.Second
	}
	return time.Duration(c.Sweep.AlertIntervalSeconds) * time.Second
}

func (c *Config) SweepLockTTL() time.Duration {
	if c.Sweep.LockTTLSeconds <= 0 {
		return 4 * time.Minute
	}
	return time.Duration(c.Sweep.LockTTLSeconds) * time.Second
}

// PlanBook 把配置里的档位表转成领域对象，金额统一走 decimal
func (c *Config) PlanBook() *domain.PlanBook {
	plans := make([]domain.Plan, 0, len(c.Plans))
	for _, p := range c.Plans {
		plans = append(plans, domain.Plan{
			ID:           p.ID,
			Name:         p.Name,
			PriceUSD:     decimal.NewFromFloat(p.PriceUSD),
			DurationDays: p.DurationDays,
			Link:         p.Link,
		})
	}
	return domain.NewPlanBook(plans)
}
