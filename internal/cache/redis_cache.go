package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ribit-api/internal/models"
)

// RedisCache keeps two things warm: the assembled read model per token
// (short TTL, absorbs 30s polling herds across viewers of the same link)
// and the last known coordinate per session (used by the consumer to drop
// duplicate samples).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, ttl time.Duration) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c, ttl: ttl}
}

// NewRedisCacheWithClient wraps an existing client; tests pass miniredis.
func NewRedisCacheWithClient(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: c, ttl: ttl}
}

func viewKey(token string) string     { return "tracking:view:" + token }
func lastKey(sessionID string) string { return "tracking:last:" + sessionID }

func (c *RedisCache) GetReadModel(ctx context.Context, token string) (*models.TrackingReadModel, bool) {
	b, err := c.client.Get(ctx, viewKey(token)).Bytes()
	if err != nil {
		return nil, false
	}
	var rm models.TrackingReadModel
	if err := json.Unmarshal(b, &rm); err != nil {
		return nil, false
	}
	return &rm, true
}

func (c *RedisCache) SetReadModel(ctx context.Context, token string, rm *models.TrackingReadModel) {
	b, err := json.Marshal(rm)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, viewKey(token), b, c.ttl).Err()
}

func (c *RedisCache) SetLastCoordinate(ctx context.Context, sessionID string, s models.CoordinateSample) error {
	return c.client.HSet(ctx, lastKey(sessionID), map[string]interface{}{
		"latitude":  strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		"longitude": strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		"timestamp": s.Timestamp.Format(time.RFC3339Nano),
	}).Err()
}

func (c *RedisCache) LastCoordinate(ctx context.Context, sessionID string) (models.CoordinateSample, bool) {
	m, err := c.client.HGetAll(ctx, lastKey(sessionID)).Result()
	if err != nil || len(m) == 0 {
		return models.CoordinateSample{}, false
	}
	var s models.CoordinateSample
	if v, ok := m["latitude"]; ok {
		s.Latitude, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["longitude"]; ok {
		s.Longitude, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["timestamp"]; ok {
		s.Timestamp, _ = time.Parse(time.RFC3339Nano, v)
	}
	return s, true
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
