package xredis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要本地 127.0.0.1:6379 的 Redis，连不上就跳过
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("本地没有 Redis，跳过: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestDistLock_MutualExclusion(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	key := "test:coinsub:lock:" + t.Name()
	defer rdb.Del(ctx, key)

	// 同一个 key 并发抢，每一时刻只有一个持有者
	const concurrency = 20
	var held, maxHeld int32
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := NewDistLock(rdb, key, 5*time.Second)
			got, err := lock.Lock(ctx, 50, 10*time.Millisecond)
			if err != nil || !got {
				return
			}
			cur := atomic.AddInt32(&held, 1)
			if cur > atomic.LoadInt32(&maxHeld) {
				atomic.StoreInt32(&maxHeld, cur)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&held, -1)
			_, _ = lock.Unlock(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxHeld), "同一时刻最多一个持有者")
}

func TestDistLock_TryLockNonBlocking(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	key := "test:coinsub:trylock:" + t.Name()
	defer rdb.Del(ctx, key)

	first := NewDistLock(rdb, key, 5*time.Second)
	got, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, got)

	// 第二个实例抢不到，立即返回
	second := NewDistLock(rdb, key, 5*time.Second)
	got, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	// 只有持有者能解锁
	ok, err := second.Unlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "Token 不匹配不能解别人的锁")

	ok, err = first.Unlock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// 解锁后可以再抢
	got, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, got)
	_, _ = second.Unlock(ctx)
}

func TestDistLock_Refresh(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	key := "test:coinsub:lock:" + t.Name()
	defer rdb.Del(ctx, key)

	t.Run("持有者续期会重置过期时间", func(t *testing.T) {
		lock := NewDistLock(rdb, key, 2*time.Second)
		got, err := lock.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, got)
		defer lock.Unlock(ctx)

		time.Sleep(time.Second)
		ok, err := lock.Refresh(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		ttl, err := rdb.PTTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 1500*time.Millisecond, "续期后 TTL 应该回到完整周期")
	})

	t.Run("锁不是自己的时续期失败", func(t *testing.T) {
		lock := NewDistLock(rdb, key, 2*time.Second)
		got, err := lock.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, got)
		defer lock.Unlock(ctx)

		other := NewDistLock(rdb, key, 2*time.Second)
		ok, err := other.Refresh(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "token 不匹配不能续别人的锁")
	})
}
