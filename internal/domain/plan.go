package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan 付费档位，进程启动时从配置加载，之后只读
type Plan struct {
	ID           string // "VIP1" "VIP2" "VIP3"
	Name         string
	PriceUSD     decimal.Decimal
	DurationDays int    // 0 表示终身
	Link         string // 付款确认后发放的访问链接
}

// Lifetime 是否终身档位
func (p Plan) Lifetime() bool {
	return p.DurationDays <= 0
}

// SubscriptionExpiry 按确认时间计算订阅到期时间，终身档位返回 nil
func (p Plan) SubscriptionExpiry(confirmedAt time.Time) *time.Time {
	if p.Lifetime() {
		return nil
	}
	t := confirmedAt.AddDate(0, 0, p.DurationDays)
	return &t
}

// PlanBook 档位目录
type PlanBook struct {
	plans map[string]Plan
	order []string
}

func NewPlanBook(plans []Plan) *PlanBook {
	b := &PlanBook{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if _, dup := b.plans[p.ID]; dup {
			continue
		}
		b.plans[p.ID] = p
		b.order = append(b.order, p.ID)
	}
	return b
}

// Get 按档位 id 查找
func (b *PlanBook) Get(id string) (Plan, bool) {
	p, ok := b.plans[id]
	return p, ok
}

// All 按配置顺序返回全部档位
func (b *PlanBook) All() []Plan {
	out := make([]Plan, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.plans[id])
	}
	return out
}
