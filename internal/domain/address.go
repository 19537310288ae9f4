package domain

import (
	"context"
	"time"
)

type AddressStatus uint8

// 收款地址状态枚举
const (
	AddressAvailable AddressStatus = iota // 空闲，可分配
	AddressAssigned                       // 已分配给某个用户
)

// ReceiveAddress 一次性收款地址
// 池子只在播种时增长，地址永不删除
type ReceiveAddress struct {
	Address    string        `gorm:"primaryKey;size:255"`
	Status     AddressStatus `gorm:"index;default:0"`
	AssignedTo int64         // 仅 Assigned 时有值
	AssignedAt *time.Time    // 仅 Assigned 时有值
	CreatedAt  time.Time
}

// AddressRepo 地址池操作
type AddressRepo interface {
	// SeedAddresses 批量导入地址 (冲突忽略)，返回实际新增条数
	SeedAddresses(ctx context.Context, addresses []string) (int64, error)
	// PickAvailable 随机取一个空闲地址，避免热点
	PickAvailable(ctx context.Context) (string, error)
	// AssignAddress 条件占用：只有地址当前空闲时才成功
	// 两个并发调用绝不能同时拿到 true
	AssignAddress(ctx context.Context, address string, userID int64) (bool, error)
	// ReleaseAddress 无条件释放，幂等 (释放空闲地址是 no-op)
	ReleaseAddress(ctx context.Context, address string) error
	// CountAvailable 空闲地址数量 (监控用)
	CountAvailable(ctx context.Context) (int64, error)
}
