package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/xerr"
)

// UpsertUser 不存在则创建，存在则刷新资料（实现 domain.UserRepo 接口）
func (r *Repo) UpsertUser(ctx context.Context, user *domain.User) error {
	user.LastActivity = time.Now().UTC()

	err := r.conn(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "first_name", "last_activity",
		}),
	}).Create(user).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("upsert user failed: %v", err))
	}
	return nil
}

// GetUser 按 id 查询（实现 domain.UserRepo 接口）
func (r *Repo) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var user domain.User
	err := r.conn(ctx).WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get user failed: %v", err))
	}
	return &user, nil
}

// ListRecentWithoutConfirmed 催单名单（实现 domain.UserRepo 接口）
// 注册时间落在 [from, to] 且名下没有已确认交易的用户
func (r *Repo) ListRecentWithoutConfirmed(ctx context.Context, from, to time.Time, limit int) ([]*domain.User, error) {
	users := make([]*domain.User, 0)

	sub := r.conn(ctx).Model(&domain.Transaction{}).
		Select("user_id").
		Where("status = ?", domain.TxStatusConfirmed)

	err := r.conn(ctx).WithContext(ctx).Model(&domain.User{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Where("user_id NOT IN (?)", sub).
		Order("created_at DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list unpaid users failed: %v", err))
	}
	return users, nil
}
