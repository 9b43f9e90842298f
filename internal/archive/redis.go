package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "e4square:archive:"
	redisIndexKey  = "e4square:archive:index"
)

var ErrNotFound = errors.New("archived game not found")

// RedisSink keeps finished games as JSON with a TTL plus a time-ordered index.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSink(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSink, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis archive")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisSink) Save(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisKeyPrefix+rec.ID, raw, s.ttl)
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(rec.EndedAt.Unix()), Member: rec.ID})
		if s.ttl > 0 {
			cutoff := time.Now().Add(-s.ttl).Unix()
			p.ZRemRangeByScore(ctx, redisIndexKey, "-inf", fmt.Sprintf("(%d", cutoff))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis archive %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisSink) Get(ctx context.Context, id string) (Record, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Recent returns up to n ids, newest first.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.rdb.ZRevRange(ctx, redisIndexKey, 0, n-1).Result()
}

// RedisReader returns the Redis sink inside s, the only sink that serves reads.
func RedisReader(s Sink) (*RedisSink, bool) {
	switch v := s.(type) {
	case *RedisSink:
		return v, v != nil
	case Multi:
		for _, inner := range v {
			if rs, ok := RedisReader(inner); ok {
				return rs, true
			}
		}
	}
	return nil, false
}

func (s *RedisSink) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
