package history

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	lastTTL    = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient, now: time.Now}
}

func (s *RedisStore) Record(ctx context.Context, r *Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	t := r.CreatedAt.UTC()
	key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

	pipe := s.redis.Pipeline()
	if r.Status == StatusSuccess {
		pipe.HIncrBy(ctx, key, "transcriptions", 1)
		pipe.HIncrBy(ctx, key, "audio_ms", r.AudioMs)
		pipe.HIncrBy(ctx, key, "total_latency_ms", r.LatencyMs)
		pipe.HIncrBy(ctx, key, "latency_count", 1)
	} else {
		pipe.HIncrBy(ctx, key, "failures", 1)
	}
	pipe.Expire(ctx, key, metricsTTL)
	pipe.Set(ctx, r.LastRedisKey(), data, lastTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetLast(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, (&Record{SessionID: sessionID}).LastRedisKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	now := s.now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		m := &Metrics{
			Date: t.Format("2006-01-02"),
			Hour: t.Hour(),
		}
		m.Transcriptions, _ = strconv.ParseInt(data["transcriptions"], 10, 64)
		m.Failures, _ = strconv.ParseInt(data["failures"], 10, 64)
		m.AudioMs, _ = strconv.ParseInt(data["audio_ms"], 10, 64)

		totalLatency, _ := strconv.ParseInt(data["total_latency_ms"], 10, 64)
		latencyCount, _ := strconv.ParseInt(data["latency_count"], 10, 64)
		if latencyCount > 0 {
			m.AvgLatencyMs = totalLatency / latencyCount
		}

		metrics = append(metrics, m)
	}

	return metrics, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
