// Package cache 提供 Redis 缓存与分布式锁
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var rdb *redis.Client

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Init 初始化 Redis 连接
func Init(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return rdb, nil
}

// GetClient 获取 Redis 客户端
func GetClient() *redis.Client {
	return rdb
}

// Close 关闭 Redis 连接
func Close() error {
	if rdb != nil {
		return rdb.Close()
	}
	return nil
}

// Store JSON 缓存，客户端为 nil 时所有操作退化为未命中
type Store struct {
	client *redis.Client
}

// NewStore 创建缓存
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Enabled 是否可用
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// Set 设置缓存
func (s *Store) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.client.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存，未命中返回 ErrCacheMiss
func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	if !s.Enabled() {
		return ErrCacheMiss
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// DeleteByPrefix 按前缀删除缓存
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	if !s.Enabled() {
		return nil
	}
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// releaseScript 仅当锁仍归当前持有者时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SETNX 的分布式锁
type Locker struct {
	client *redis.Client
}

// NewLocker 创建分布式锁，客户端为 nil 时加锁总是成功
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock 已获取的锁
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// TryLock 尝试加锁，锁被占用时返回 (nil, false, nil)
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if l == nil || l.client == nil {
		return &Lock{key: key}, true, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{locker: l, key: key, token: token}, true, nil
}

// Lock 在超时前反复尝试加锁
func (l *Locker) Lock(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		lock, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire lock %s: timeout after %s", key, wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Release 释放锁
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.locker == nil || lk.locker.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Err()
}

// 缓存键前缀
const (
	KeyPrefixLock   = "lock:"
	KeyPrefixReport = "report:"
)

// BuildKey 构建缓存键
func BuildKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += part + ":"
	}
	return key[:len(key)-1]
}
