package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSubscriptionExpiry(t *testing.T) {
	confirmedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("按天数顺延", func(t *testing.T) {
		p := Plan{ID: "VIP1", DurationDays: 30}
		exp := p.SubscriptionExpiry(confirmedAt)
		require.NotNil(t, exp)
		assert.Equal(t, time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC), *exp)
		assert.False(t, p.Lifetime())
	})

	t.Run("终身档位没有到期时间", func(t *testing.T) {
		p := Plan{ID: "VIP3", DurationDays: 0}
		assert.Nil(t, p.SubscriptionExpiry(confirmedAt))
		assert.True(t, p.Lifetime())
	})
}

func TestPlanBook(t *testing.T) {
	book := NewPlanBook([]Plan{
		{ID: "VIP1", PriceUSD: decimal.RequireFromString("50")},
		{ID: "VIP2", PriceUSD: decimal.RequireFromString("120")},
		{ID: "VIP1", PriceUSD: decimal.RequireFromString("999")}, // 重复 id 忽略
	})

	p, ok := book.Get("VIP1")
	require.True(t, ok)
	assert.Equal(t, "50", p.PriceUSD.String())

	_, ok = book.Get("VIP9")
	assert.False(t, ok)

	// All 按配置顺序
	all := book.All()
	require.Len(t, all, 2)
	assert.Equal(t, "VIP1", all[0].ID)
	assert.Equal(t, "VIP2", all[1].ID)
}

func TestTxStatusTerminal(t *testing.T) {
	assert.False(t, TxStatusPending.Terminal())
	assert.True(t, TxStatusConfirmed.Terminal())
	assert.True(t, TxStatusExpired.Terminal())
	assert.True(t, TxStatusCancelled.Terminal())
}

func TestBalanceResultVerifiedZero(t *testing.T) {
	assert.True(t, BalanceResult{State: BalanceZero}.VerifiedZero())
	assert.False(t, BalanceResult{State: BalanceNonZero, Amount: decimal.RequireFromString("0.1")}.VerifiedZero())
	// Unknown 绝不等于零
	assert.False(t, BalanceResult{State: BalanceUnknown}.VerifiedZero())
}
