package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TxStatus string

// 对账记录状态枚举
// Pending 之外全部是终态，进了终态就不可再变
const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusExpired   TxStatus = "expired"
	TxStatusCancelled TxStatus = "cancelled"
)

// Terminal 是否终态
func (s TxStatus) Terminal() bool {
	return s == TxStatusConfirmed || s == TxStatusExpired || s == TxStatusCancelled
}

// Transaction 一笔待对账的付款
// 创建后金额字段永不修改，作为审计记录永不删除
type Transaction struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	UserID     int64  `gorm:"index;not null"`
	Plan       string `gorm:"size:10;not null"`
	BtcAddress string `gorm:"index;size:255;not null"` // 独占引用地址池
	// 金额统一用 decimal，避免浮点对账误差
	BtcAmount   decimal.Decimal `gorm:"type:decimal(16,8);not null"` // 创建时按汇率快照固定
	UsdAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	BtcRate     decimal.Decimal `gorm:"type:decimal(12,2);not null"` // 汇率快照
	Status      TxStatus        `gorm:"index;size:20;default:pending"`
	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"not null"`
	ConfirmedAt *time.Time
	UpdatedAt   time.Time
}

// TransactionRepo 对账记录操作
type TransactionRepo interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	// ListByUser 按创建时间倒序
	ListByUser(ctx context.Context, userID int64) ([]*Transaction, error)
	// ListPending 全部待对账记录，创建时间正序
	ListPending(ctx context.Context) ([]*Transaction, error)
	// GetPendingByUser 用户当前的待对账记录 (最多一条)，没有返回 nil
	GetPendingByUser(ctx context.Context, userID int64) (*Transaction, error)
	// UpdateStatus 条件状态迁移：只有当前状态是 from 时才成功
	// 返回 false 表示已被别处处理，调用方按幂等处理
	UpdateStatus(ctx context.Context, id int64, from, to TxStatus, confirmedAt *time.Time) (bool, error)
	// ListConfirmedBetween 确认时间落在区间内的记录 (二次付款提醒用)
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Transaction, error)
	// RevenueStats 已确认交易合计 (笔数 / BTC / USD)
	RevenueStats(ctx context.Context) (count int64, btc, usd decimal.Decimal, err error)
}
