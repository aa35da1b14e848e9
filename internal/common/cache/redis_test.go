// Package cache Redis 缓存模块单元测试
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis 创建 miniredis 测试实例与客户端
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		s.Close()
	})
	return s, client
}

// ==================== Init 函数测试 ====================

func TestInit_Success(t *testing.T) {
	s, _ := setupMiniRedis(t)

	cfg := &config.RedisConfig{
		Host:         s.Host(),
		Port:         s.Server().Addr().Port,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5,
		ReadTimeout:  3,
		WriteTimeout: 3,
	}

	client, err := Init(cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, client, GetClient())
	assert.NoError(t, Close())
}

func TestInit_ConnectionFailed(t *testing.T) {
	cfg := &config.RedisConfig{
		Host:        "invalid-host",
		Port:        9999,
		DialTimeout: 1,
	}

	client, err := Init(cfg)
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect redis")
}

// ==================== Store 测试 ====================

type reportRow struct {
	Region string `json:"region"`
	Count  int64  `json:"count"`
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s, client := setupMiniRedis(t)
	store := NewStore(client)

	t.Run("写入后读取", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "report:a", []reportRow{{Region: "浙江省", Count: 3}}, time.Minute))

		var got []reportRow
		require.NoError(t, store.Get(ctx, "report:a", &got))
		assert.Equal(t, []reportRow{{Region: "浙江省", Count: 3}}, got)
	})

	t.Run("未命中", func(t *testing.T) {
		var got []reportRow
		assert.ErrorIs(t, store.Get(ctx, "report:missing", &got), ErrCacheMiss)
	})

	t.Run("过期后未命中", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "report:ttl", reportRow{Count: 1}, time.Second))
		s.FastForward(2 * time.Second)

		var got reportRow
		assert.ErrorIs(t, store.Get(ctx, "report:ttl", &got), ErrCacheMiss)
	})

	t.Run("按前缀删除", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "report:x:1", 1, time.Minute))
		require.NoError(t, store.Set(ctx, "report:x:2", 2, time.Minute))
		require.NoError(t, store.Set(ctx, "other:1", 3, time.Minute))

		require.NoError(t, store.DeleteByPrefix(ctx, "report:x:"))
		assert.False(t, s.Exists("report:x:1"))
		assert.False(t, s.Exists("report:x:2"))
		assert.True(t, s.Exists("other:1"))
	})
}

func TestStore_Disabled(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	assert.False(t, store.Enabled())
	assert.NoError(t, store.Set(ctx, "k", 1, time.Minute))
	var v int
	assert.ErrorIs(t, store.Get(ctx, "k", &v), ErrCacheMiss)
	assert.NoError(t, store.DeleteByPrefix(ctx, "k"))
}

// ==================== Locker 测试 ====================

func TestLocker_TryLock(t *testing.T) {
	ctx := context.Background()
	s, client := setupMiniRedis(t)
	locker := NewLocker(client)

	lock, ok, err := locker.TryLock(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("已被占用", func(t *testing.T) {
		other, ok, err := locker.TryLock(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, other)
	})

	t.Run("释放后可再次获取", func(t *testing.T) {
		require.NoError(t, lock.Release(ctx))
		assert.False(t, s.Exists("lock:test"))

		again, ok, err := locker.TryLock(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("不会释放他人持有的锁", func(t *testing.T) {
		stale, ok, err := locker.TryLock(ctx, "lock:stale", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		s.FastForward(2 * time.Second)
		fresh, ok, err := locker.TryLock(ctx, "lock:stale", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, stale.Release(ctx))
		assert.True(t, s.Exists("lock:stale"))
		require.NoError(t, fresh.Release(ctx))
	})
}

func TestLocker_LockWait(t *testing.T) {
	ctx := context.Background()
	_, client := setupMiniRedis(t)
	locker := NewLocker(client)

	held, err := locker.Lock(ctx, "lock:wait", time.Minute, time.Second)
	require.NoError(t, err)

	t.Run("等待超时", func(t *testing.T) {
		_, err := locker.Lock(ctx, "lock:wait", time.Minute, 50*time.Millisecond)
		assert.Error(t, err)
	})

	t.Run("持有者释放后获取成功", func(t *testing.T) {
		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = held.Release(ctx)
		}()
		lock, err := locker.Lock(ctx, "lock:wait", time.Minute, time.Second)
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))
	})
}

func TestLocker_NilClient(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(nil)

	lock, ok, err := locker.TryLock(ctx, "lock:any", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, lock.Release(ctx))
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "report:1:province", BuildKey(KeyPrefixReport, "1", "province"))
	assert.Equal(t, "lock:settlement", BuildKey(KeyPrefixLock, "settlement"))
}
