package persistence

import (
	"context"

	"gorm.io/gorm"

	"coinsub.com/internal/domain"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// 确保 Repo 实现了所有接口
var (
	_ domain.UserRepo         = (*Repo)(nil)
	_ domain.AddressRepo      = (*Repo)(nil)
	_ domain.TransactionRepo  = (*Repo)(nil)
	_ domain.SubscriptionRepo = (*Repo)(nil)
)

// AutoMigrate 建表 (开发/测试环境用，生产走迁移脚本)
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(
		&domain.User{},
		&domain.ReceiveAddress{},
		&domain.Transaction{},
		&domain.Subscription{},
	)
}

// Transaction 实现事务
func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 把 tx 注入到 context 中
		txCtx := context.WithValue(ctx, "tx_db", tx)
		return fn(txCtx)
	})
}

// conn 获取事务 DB (如果 ctx 里有事务，就用事务)
func (r *Repo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value("tx_db").(*gorm.DB); ok {
		return tx
	}
	return r.db
}
