package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Áreas do cache de leitura do story-api. O pool-worker apaga por área quando
// um evento torna os dados obsoletos.
const (
	AreaStories     = "stories"
	AreaChapters    = "chapters"
	AreaCompendium  = "compendium"
	AreaLeaderboard = "leaderboard"
	AreaNFTs        = "nfts"
)

const readPrefix = "read:"

// ReadKey monta "read:<area>:<parte>:<parte>..."
func ReadKey(area string, parts ...string) string {
	return readPrefix + area + ":" + strings.Join(parts, ":")
}

// ReadCache guarda respostas JSON do story-api com TTL
type ReadCache struct {
	R   *redis.Client
	TTL time.Duration
}

func NewReadCache(r *redis.Client, ttl time.Duration) *ReadCache {
	return &ReadCache{R: r, TTL: ttl}
}

func (c *ReadCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *ReadCache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key, b, c.TTL).Err()
}

// DeleteArea remove todas as chaves de uma área e devolve quantas foram removidas
func (c *ReadCache) DeleteArea(ctx context.Context, area string) (int, error) {
	iter := c.R.Scan(ctx, 0, readPrefix+area+":*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.R.Unlink(ctx, keys...).Result()
	return int(n), err
}
