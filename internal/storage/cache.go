package storage

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/LJTian/onconews/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix  = "onconews:"
	defaultCacheTTL = 5 * time.Minute
)

// CachedReader 在 Reader 前加一层 Redis 缓存。这里不做主动失效，完全依赖短 TTL 自然过期。
type CachedReader struct {
	Reader
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedReader 在 rdb 为 nil 时也可用，此时直接读底层存储
func NewCachedReader(r Reader, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedReader {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedReader{Reader: r, rdb: rdb, ttl: ttl, logger: logging.OrNop(logger).Named("storage.cache")}
}

// NewRedisClient 连接 Redis；Ping 失败只记录告警，读路径会回落到数据库
func NewRedisClient(addr string, logger *zap.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logging.OrNop(logger).Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
	}
	return rdb
}

func (c *CachedReader) Statistics(ctx context.Context) (Statistics, error) {
	return cached(ctx, c, "stats", c.Reader.Statistics)
}

func (c *CachedReader) ListNews(ctx context.Context, q Query) (Page, error) {
	q = q.normalized()
	key := "list:" + listCacheKey(q)
	return cached(ctx, c, key, func(ctx context.Context) (Page, error) {
		return c.Reader.ListNews(ctx, q)
	})
}

// listCacheKey 用 url 编码拼接查询条件，避免搜索词中的分隔符造成键冲突
func listCacheKey(q Query) string {
	v := url.Values{}
	v.Set("search", q.Search)
	v.Set("source", q.Source)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("size", strconv.Itoa(q.PageSize))
	return v.Encode()
}

func (c *CachedReader) Sources(ctx context.Context) ([]string, error) {
	return cached(ctx, c, "sources", c.Reader.Sources)
}

func cached[T any](ctx context.Context, c *CachedReader, key string, load func(context.Context) (T, error)) (T, error) {
	key = cacheKeyPrefix + key
	if c.rdb != nil {
		if bs, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			var v T
			if err := json.Unmarshal(bs, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if c.rdb != nil {
		if bs, err := json.Marshal(v); err == nil {
			if err := c.rdb.Set(ctx, key, bs, c.ttl).Err(); err != nil {
				c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return v, nil
}
