package geodata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "urbanmesh:"

// Cache は取得結果を Redis に一時保存します。外部APIへの問い合わせを減らすための
// ベストエフォートなキャッシュで、失敗してもフェッチ処理には影響しません。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache は Cache を作成します。
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はキャッシュ済みの取得結果を返します。ヒットしなかった場合は false です。
func (c *Cache) Get(ctx context.Context, bbox BoundingBox) (*UrbanData, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, cacheKey(bbox)).Bytes()
	if err != nil {
		return nil, false
	}
	var cached UrbanData
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

// Set は取得結果をキャッシュします。失敗は黙って無視します。
func (c *Cache) Set(ctx context.Context, bbox BoundingBox, data *UrbanData) {
	if c == nil || c.rdb == nil || data == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, cacheKey(bbox), payload, c.ttl).Err()
}

func cacheKey(bbox BoundingBox) string {
	return cacheKeyPrefix + bbox.String()
}
