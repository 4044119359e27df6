package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend runs batches as MULTI/EXEC transactions, so a whole batch is
// one round trip and one atomic unit on the server.
type RedisBackend struct {
	rdb goredis.UniversalClient
	log *logger.Logger
}

func NewRedisBackend(ctx context.Context, log *logger.Logger, opts RedisOptions) (*RedisBackend, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBackendFromClient(rdb, log), nil
}

func NewRedisBackendFromClient(rdb goredis.UniversalClient, log *logger.Logger) *RedisBackend {
	return &RedisBackend{rdb: rdb, log: log.With("service", "RedisCacheBackend")}
}

// Client exposes the underlying connection so the realtime bus can share it.
func (b *RedisBackend) Client() goredis.UniversalClient { return b.rdb }

func (b *RedisBackend) Exec(ctx context.Context, cmds []Command) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis cache not initialized")
	}
	if len(cmds) == 0 {
		return nil
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return queue(ctx, pipe, cmds)
	})
	if err != nil {
		return fmt.Errorf("redis exec batch (%d cmds): %w", len(cmds), err)
	}
	return nil
}

// maxWatchRetries bounds optimistic retries when a watched key changes
// between the version read and EXEC.
const maxWatchRetries = 16

// ExecIfNotNewer watches key, reads its version and queues the batch in the
// same MULTI/EXEC. A concurrent write to key aborts EXEC and the check reruns.
func (b *RedisBackend) ExecIfNotNewer(ctx context.Context, key string, version int64, cmds []Command) (bool, error) {
	if b == nil || b.rdb == nil {
		return false, fmt.Errorf("redis cache not initialized")
	}
	var applied bool
	txf := func(tx *goredis.Tx) error {
		applied = false
		raw, err := tx.HGet(ctx, key, VersionField).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if err == nil {
			if cached, perr := strconv.ParseInt(raw, 10, 64); perr == nil && cached > version {
				return nil
			}
		}
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return queue(ctx, pipe, cmds)
		}); err != nil {
			return err
		}
		applied = true
		return nil
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := b.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("redis versioned exec %s: %w", key, err)
		}
		return applied, nil
	}
	return false, fmt.Errorf("redis versioned exec %s: key kept changing after %d attempts", key, maxWatchRetries)
}

func queue(ctx context.Context, pipe goredis.Pipeliner, cmds []Command) error {
	for _, c := range cmds {
		switch c.Op {
		case OpHSet:
			if len(c.Fields) == 0 {
				continue
			}
			vals := make(map[string]interface{}, len(c.Fields))
			for k, v := range c.Fields {
				vals[k] = v
			}
			pipe.HSet(ctx, c.Key, vals)
		case OpDel:
			pipe.Del(ctx, c.Key)
		case OpSAdd:
			if len(c.Members) == 0 {
				continue
			}
			pipe.SAdd(ctx, c.Key, toArgs(c.Members)...)
		case OpSRem:
			if len(c.Members) == 0 {
				continue
			}
			pipe.SRem(ctx, c.Key, toArgs(c.Members)...)
		default:
			return fmt.Errorf("redis cache: unsupported op %q", c.Op)
		}
	}
	return nil
}

func (b *RedisBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.rdb.HGetAll(ctx, key).Result()
}

func (b *RedisBackend) HGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*goredis.MapStringStringCmd, len(keys))
	_, err := b.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis hgetall pipeline: %w", err)
	}
	out := make([]map[string]string, len(keys))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

func (b *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return b.rdb.SMembers(ctx, key).Result()
}

func (b *RedisBackend) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return b.rdb.SIsMember(ctx, key, member).Result()
}

// Ping is used by the health check.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func toArgs(members []string) []interface{} {
	out := make([]interface{}, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}
