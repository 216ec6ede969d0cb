package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores msgpack-encoded values under a key prefix.
// msgpack keeps NaN, which JSON cannot carry.
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get decodes a cached value into dest; found is false on a miss
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := Decode(data, dest); err != nil {
		return false, fmt.Errorf("cache decode failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := Encode(value)
	if err != nil {
		return fmt.Errorf("cache encode failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

// Encode is the cache codec
func Encode(value interface{}) ([]byte, error) {
	return msgpack.Marshal(value)
}

// Decode is the inverse of Encode
func Decode(data []byte, dest interface{}) error {
	return msgpack.Unmarshal(data, dest)
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute  // 실행 결과
	TTLMedium = 10 * time.Minute // 계산기 목록
	TTLLong   = 1 * time.Hour    // 종목 정보
	TTLDaily  = 24 * time.Hour   // 일별 시세
)

// HistoryKey identifies a price/volume history by its ticker set (order and duplicates ignored)
func HistoryKey(tickers []string) string {
	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		set[t] = struct{}{}
	}
	unique := make([]string, 0, len(set))
	for t := range set {
		unique = append(unique, t)
	}
	sort.Strings(unique)

	sum := sha256.Sum256([]byte(strings.Join(unique, ",")))
	return "history:" + hex.EncodeToString(sum[:])
}
