package domain

import (
	"context"
	"time"
)

// User 外部系统的用户，按外部 id 落库
type User struct {
	UserID       int64  `gorm:"primaryKey"`
	Username     string `gorm:"size:255"`
	FirstName    string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	LastActivity time.Time
}

// UserRepo 用户操作
type UserRepo interface {
	// UpsertUser 不存在则创建，存在则刷新资料和活跃时间
	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID int64) (*User, error)
	// ListRecentWithoutConfirmed 注册时间落在区间内、且没有已确认交易的用户
	// (未付款催单用)
	ListRecentWithoutConfirmed(ctx context.Context, from, to time.Time, limit int) ([]*User, error)
}
