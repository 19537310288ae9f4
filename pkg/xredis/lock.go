package xredis

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua 脚本：释放锁
// KEYS[1]: 锁的 key
// ARGV[1]: 锁的 value (token)，防止误删别人的锁
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// Lua 脚本：续期
// 只有还持有锁 (token 匹配) 才重置过期时间
const refreshScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`

// DistLock 分布式互斥锁
// 对账循环用它保证同一时刻只有一个 sweep 在跑：
// 上一轮没扫完、下一个 tick 又触发时，抢不到锁直接跳过本轮
type DistLock struct {
	client     *redis.Client
	key        string
	token      string        // 锁的唯一标识 (UUID)，谁加锁谁解锁
	expiration time.Duration // 锁的自动过期时间，持锁进程挂掉后自动释放
}

func NewDistLock(client *redis.Client, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.New().String(), // 每个锁实例生成唯一的 Token
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞，一次性）
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	// NX: 只有 Key 不存在时才设置
	// PX: 过期时间 (毫秒)
	success, err := l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 自旋锁，带简单重试
func (l *DistLock) Lock(ctx context.Context, retryTimes int, retryInterval time.Duration) (bool, error) {
	for i := 0; i < retryTimes; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return false, err
		}
		if success {
			return true, nil
		}

		// 没抢到锁，稍微睡一会儿再试 (随机抖动，防止共振)
		sleepTime := retryInterval + time.Duration(rand.Intn(10))*time.Millisecond

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(sleepTime):
			continue
		}
	}
	return false, nil // 重试次数用尽
}

// Refresh 给还在持有的锁续一个完整的过期周期
// 返回 false 表示锁已经不是自己的了 (过期被别人抢走)，
// 持锁方应当认为互斥已丢失
func (l *DistLock) Refresh(ctx context.Context) (bool, error) {
	res, err := l.client.Eval(ctx, refreshScript,
		[]string{l.key}, l.token, l.expiration.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	return res.(int64) == 1, nil
}

// Unlock 安全释放锁
func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	// 执行 Lua 脚本，确保原子性
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Result()
	if err != nil {
		return false, err
	}
	// redis 返回 1 表示删除成功，0 表示 Key 不存在或 Token 不匹配
	return res.(int64) == 1, nil
}
