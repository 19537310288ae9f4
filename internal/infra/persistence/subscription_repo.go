package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/xerr"
)

// CreateSubscription 开通订阅（实现 domain.SubscriptionRepo 接口）
func (r *Repo) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	if err := r.conn(ctx).WithContext(ctx).Create(sub).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create subscription failed: %v", err))
	}
	return nil
}

// GetActiveByUser 用户的活跃订阅（实现 domain.SubscriptionRepo 接口）
// active 且 expires_at 为空或未来
func (r *Repo) GetActiveByUser(ctx context.Context, userID int64) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.conn(ctx).WithContext(ctx).
		Where("user_id = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)",
			userID, domain.SubStatusActive, time.Now().UTC()).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get active subscription failed: %v", err))
	}
	return &sub, nil
}

// ExpireDue 批量过期（实现 domain.SubscriptionRepo 接口）
func (r *Repo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.conn(ctx).WithContext(ctx).Model(&domain.Subscription{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", domain.SubStatusActive, now).
		Update("status", domain.SubStatusExpired)
	if res.Error != nil {
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("expire subscriptions failed: %v", res.Error))
	}
	return res.RowsAffected, nil
}
