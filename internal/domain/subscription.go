package domain

import (
	"context"
	"time"
)

type SubStatus string

// 订阅状态枚举
const (
	SubStatusActive    SubStatus = "active"
	SubStatusExpired   SubStatus = "expired"
	SubStatusCancelled SubStatus = "cancelled"
)

// Subscription 付费订阅，和确认交易 1:1
// ExpiresAt 为 nil 表示终身
type Subscription struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	UserID        int64     `gorm:"index;not null"`
	Plan          string    `gorm:"size:10;not null"`
	TransactionID int64     `gorm:"not null"` // 来源交易
	Status        SubStatus `gorm:"index;size:20;default:active"`
	CreatedAt     time.Time
	StartsAt      time.Time
	ExpiresAt     *time.Time
	UpdatedAt     time.Time
}

// SubscriptionRepo 订阅操作
type SubscriptionRepo interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	// GetActiveByUser "活跃订阅"：status=active 且 expires_at 为空或未来
	// 一个用户最多一条，没有返回 nil
	GetActiveByUser(ctx context.Context, userID int64) (*Subscription, error)
	// ExpireDue 把已到期的 active 订阅翻成 expired，返回条数
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
