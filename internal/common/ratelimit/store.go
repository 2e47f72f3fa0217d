// internal/common/ratelimit/store.go
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a fixed-window counter in Redis. A window starts at the first
// increment of a key and lasts for the configured duration.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	window time.Duration
}

type Decision struct {
	Allowed   bool  `json:"allowed"`
	Count     int64 `json:"count"`
	Remaining int64 `json:"remaining"`
}

func NewStore(rdb redis.Cmdable, prefix string, window time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, window: window}
}

func (s *Store) key(scope, member string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, member)
}

// CheckAndIncrement records one use of member within scope and reports whether
// the use is within limit. A limit of zero or less never denies.
func (s *Store) CheckAndIncrement(ctx context.Context, scope, member string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	key := s.key(scope, member)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", key, err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	return decide(n, limit), nil
}

// AdmitAll increments every member in two pipelined round trips and returns one
// decision per member, in order.
func (s *Store) AdmitAll(ctx context.Context, scope string, members []string, limit int) ([]Decision, error) {
	out := make([]Decision, len(members))
	if len(members) == 0 {
		return out, nil
	}
	if limit <= 0 {
		for i := range out {
			out[i] = Decision{Allowed: true, Remaining: -1}
		}
		return out, nil
	}

	cmds := make([]*redis.IntCmd, len(members))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = pipe.Incr(ctx, s.key(scope, m))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipelined incr: %w", err)
	}

	var fresh []string
	for i, cmd := range cmds {
		n := cmd.Val()
		if n == 1 {
			fresh = append(fresh, s.key(scope, members[i]))
		}
		out[i] = decide(n, limit)
	}

	if len(fresh) > 0 {
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range fresh {
				pipe.Expire(ctx, k, s.window)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("pipelined expire: %w", err)
		}
	}

	return out, nil
}

// Counts returns the current window count of each member without incrementing.
// Members with no live window count as zero.
func (s *Store) Counts(ctx context.Context, scope string, members []string) ([]int64, error) {
	out := make([]int64, len(members))
	if len(members) == 0 {
		return out, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.key(scope, m)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse count %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

func decide(n int64, limit int) Decision {
	remaining := int64(limit) - n
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   n <= int64(limit),
		Count:     n,
		Remaining: remaining,
	}
}
