package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

type RedisSink struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSink(rdb redis.Cmdable, ttl time.Duration) *RedisSink {
	return &RedisSink{rdb: rdb, ttl: ttl}
}

func (s *RedisSink) trailKey(runID string) string {
	return fmt.Sprintf("audit:run:%s:decisions", runID)
}

func (s *RedisSink) Append(ctx context.Context, runID string, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key := s.trailKey(runID)

	rows := make([]any, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			logx.Error().Err(err).Str("run_id", runID).Msg("failed to marshal audit entry")
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		rows = append(rows, b)
	}

	if err := s.rdb.RPush(ctx, key, rows...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push audit trail to redis")
		return errx.WrapRedis(err)
	}
	if s.ttl > 0 {
		if ok, err := s.rdb.Expire(ctx, key, s.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", s.ttl).Msg("failed to set TTL on audit trail key")
		}
	}
	return nil
}

var _ Sink = (*RedisSink)(nil)
