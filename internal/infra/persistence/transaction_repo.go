package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/xerr"
)

// CreateTransaction 新建对账记录（实现 domain.TransactionRepo 接口）
func (r *Repo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := r.conn(ctx).WithContext(ctx).Create(tx).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create transaction failed: %v", err))
	}
	return nil
}

// GetTransaction 按 id 查询（实现 domain.TransactionRepo 接口）
func (r *Repo) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.conn(ctx).WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没找到
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get transaction failed: %v", err))
	}
	return &tx, nil
}

// ListByUser 用户全部记录，新的在前（实现 domain.TransactionRepo 接口）
func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]*domain.Transaction, error) {
	txs := make([]*domain.Transaction, 0)
	err := r.conn(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list by user failed: %v", err))
	}
	return txs, nil
}

// ListPending 全部待对账记录（实现 domain.TransactionRepo 接口）
// 正序：先创建的先检查
func (r *Repo) ListPending(ctx context.Context) ([]*domain.Transaction, error) {
	txs := make([]*domain.Transaction, 0)
	err := r.conn(ctx).WithContext(ctx).
		Where("status = ?", domain.TxStatusPending).
		Order("created_at ASC").
		Find(&txs).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list pending failed: %v", err))
	}
	return txs, nil
}

// GetPendingByUser 用户当前的待对账记录（实现 domain.TransactionRepo 接口）
func (r *Repo) GetPendingByUser(ctx context.Context, userID int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.conn(ctx).WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.TxStatusPending).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get pending by user failed: %v", err))
	}
	return &tx, nil
}

// UpdateStatus 条件状态迁移（实现 domain.TransactionRepo 接口）
// 🔒 乐观锁：WHERE status = from，保证终态不可再变、并发只有一方赢
func (r *Repo) UpdateStatus(ctx context.Context, id int64, from, to domain.TxStatus, confirmedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	if confirmedAt != nil {
		updates["confirmed_at"] = *confirmedAt
	}

	res := r.conn(ctx).WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("update status failed: %v", res.Error))
	}

	// 影响行数为 0：记录已被别的线程处理过了，视为幂等失败
	return res.RowsAffected == 1, nil
}

// ListConfirmedBetween 确认时间落在区间内的记录（实现 domain.TransactionRepo 接口）
func (r *Repo) ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error) {
	txs := make([]*domain.Transaction, 0)
	err := r.conn(ctx).WithContext(ctx).
		Where("status = ? AND confirmed_at BETWEEN ? AND ?", domain.TxStatusConfirmed, from, to).
		Find(&txs).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list confirmed failed: %v", err))
	}
	return txs, nil
}

// RevenueStats 已确认交易合计（实现 domain.TransactionRepo 接口）
func (r *Repo) RevenueStats(ctx context.Context) (int64, decimal.Decimal, decimal.Decimal, error) {
	var row struct {
		Count    int64
		TotalBtc decimal.Decimal
		TotalUsd decimal.Decimal
	}

	err := r.conn(ctx).WithContext(ctx).Model(&domain.Transaction{}).
		Select("COUNT(*) as count, COALESCE(SUM(btc_amount), 0) as total_btc, COALESCE(SUM(usd_amount), 0) as total_usd").
		Where("status = ?", domain.TxStatusConfirmed).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, xerr.New(xerr.DbError, fmt.Sprintf("revenue stats failed: %v", err))
	}

	return row.Count, row.TotalBtc, row.TotalUsd, nil
}
