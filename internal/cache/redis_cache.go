package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheKeyPrefix 问答缓存在Redis中的键前缀
// 任务队列可能共用同一个Redis实例，清空缓存时只能删除带此前缀的键
const cacheKeyPrefix = "pdfqa:cache:"

// RedisCache 基于Redis实现的缓存
// 多实例部署时共享问答缓存用
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisCache 创建一个新的Redis缓存
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// 测试连接
	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
		ctx:    ctx,
	}, nil
}

// Get 获取缓存内容
func (r *RedisCache) Get(key string) (string, bool, error) {
	value, err := r.client.Get(r.ctx, cacheKeyPrefix+key).Result()
	if err == redis.Nil {
		// 键不存在
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// Set 设置缓存内容
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	return r.client.Set(r.ctx, cacheKeyPrefix+key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	return r.client.Del(r.ctx, cacheKeyPrefix+key).Err()
}

// Clear 清空所有问答缓存
// 用SCAN遍历前缀键删除，不影响同库中的其他数据
func (r *RedisCache) Clear() error {
	iter := r.client.Scan(r.ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// 在包初始化时注册Redis缓存
func init() {
	RegisterCache("redis", NewRedisCache)
}
