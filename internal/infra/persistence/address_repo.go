package persistence

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/xerr"
)

// 地址池批量导入的批大小
const seedBatchSize = 1000

// SeedAddresses 批量导入收款地址（实现 domain.AddressRepo 接口）
// 冲突忽略 (INSERT IGNORE)，重复播种不报错
func (r *Repo) SeedAddresses(ctx context.Context, addresses []string) (int64, error) {
	var inserted int64

	for i := 0; i < len(addresses); i += seedBatchSize {
		end := i + seedBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}

		batch := make([]domain.ReceiveAddress, 0, end-i)
		for _, addr := range addresses[i:end] {
			batch = append(batch, domain.ReceiveAddress{
				Address: addr,
				Status:  domain.AddressAvailable,
			})
		}

		res := r.conn(ctx).WithContext(ctx).Clauses(clause.OnConflict{
			DoNothing: true,
		}).Create(&batch)
		if res.Error != nil {
			return inserted, xerr.New(xerr.DbError, fmt.Sprintf("seed addresses failed: %v", res.Error))
		}
		inserted += res.RowsAffected
	}

	return inserted, nil
}

// PickAvailable 随机挑一个空闲地址（实现 domain.AddressRepo 接口）
// ORDER BY RAND() 在 MySQL 和 SQLite 里函数名不同，这里用
// count + 随机偏移，均匀且两边都能跑
func (r *Repo) PickAvailable(ctx context.Context) (string, error) {
	db := r.conn(ctx)

	var total int64
	if err := db.WithContext(ctx).Model(&domain.ReceiveAddress{}).
		Where("status = ?", domain.AddressAvailable).
		Count(&total).Error; err != nil {
		return "", xerr.New(xerr.DbError, fmt.Sprintf("count available failed: %v", err))
	}
	if total == 0 {
		return "", nil // 池子空了不是错误，调用方处理
	}

	var addr domain.ReceiveAddress
	err := db.WithContext(ctx).
		Where("status = ?", domain.AddressAvailable).
		Offset(rand.Intn(int(total))).
		Limit(1).
		Find(&addr).Error
	if err != nil {
		return "", xerr.New(xerr.DbError, fmt.Sprintf("pick available failed: %v", err))
	}
	return addr.Address, nil
}

// AssignAddress 条件占用（实现 domain.AddressRepo 接口）
// 🔒 乐观锁：WHERE status = available，并发抢同一个地址只有一个能成
func (r *Repo) AssignAddress(ctx context.Context, address string, userID int64) (bool, error) {
	now := time.Now().UTC()

	res := r.conn(ctx).WithContext(ctx).Model(&domain.ReceiveAddress{}).
		Where("address = ? AND status = ?", address, domain.AddressAvailable).
		Updates(map[string]interface{}{
			"status":      domain.AddressAssigned,
			"assigned_to": userID,
			"assigned_at": now,
		})
	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("assign address failed: %v", res.Error))
	}

	// RowsAffected == 0 说明地址已被别人抢走，不是错误
	return res.RowsAffected == 1, nil
}

// ReleaseAddress 无条件释放（实现 domain.AddressRepo 接口）
// 幂等：释放已空闲的地址是 no-op
func (r *Repo) ReleaseAddress(ctx context.Context, address string) error {
	err := r.conn(ctx).WithContext(ctx).Model(&domain.ReceiveAddress{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{
			"status":      domain.AddressAvailable,
			"assigned_to": 0,
			"assigned_at": gorm.Expr("NULL"),
		}).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("release address failed: %v", err))
	}
	return nil
}

// CountAvailable 空闲地址数量（实现 domain.AddressRepo 接口）
func (r *Repo) CountAvailable(ctx context.Context) (int64, error) {
	var total int64
	err := r.conn(ctx).WithContext(ctx).Model(&domain.ReceiveAddress{}).
		Where("status = ?", domain.AddressAvailable).
		Count(&total).Error
	if err != nil {
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("count available failed: %v", err))
	}
	return total, nil
}
