// README: Directory backed by Redis sets, one set per role plus a role key per actor.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

const (
	roleKeyPrefix  = "carpool:%s:role:%s"
	actorKeyPrefix = "carpool:%s:actor:%s"
)

// RedisStore namespaces every key so several simulations can share one
// Redis instance.
type RedisStore struct {
	redis     *redis.Client
	namespace string
}

func NewRedisStore(redis *redis.Client, namespace string) *RedisStore {
	return &RedisStore{redis: redis, namespace: namespace}
}

func (s *RedisStore) Register(ctx context.Context, id types.ID, role types.Role) error {
	prev, err := s.redis.Get(ctx, s.actorKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("register %s: %w", id, err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" && types.Role(prev) != role {
			pipe.SRem(ctx, s.roleKey(types.Role(prev)), string(id))
		}
		pipe.Set(ctx, s.actorKey(id), string(role), 0)
		pipe.SAdd(ctx, s.roleKey(role), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Deregister(ctx context.Context, id types.ID) error {
	role, err := s.redis.Get(ctx, s.actorKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("deregister %s: %w", id, ErrNotRegistered)
	}
	if err != nil {
		return fmt.Errorf("deregister %s: %w", id, err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.roleKey(types.Role(role)), string(id))
		pipe.Del(ctx, s.actorKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("deregister %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, role types.Role) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, s.roleKey(role)).Result()
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", role, err)
	}
	sort.Strings(members)
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

// Purge removes every key of the namespace. Used when a simulation ends.
func (s *RedisStore) Purge(ctx context.Context) error {
	var keys []string
	iter := s.redis.Scan(ctx, 0, fmt.Sprintf("carpool:%s:*", s.namespace), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("purge %s: %w", s.namespace, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.redis.Del(ctx, keys...).Err()
}

func (s *RedisStore) roleKey(role types.Role) string {
	return fmt.Sprintf(roleKeyPrefix, s.namespace, role)
}

func (s *RedisStore) actorKey(id types.ID) string {
	return fmt.Sprintf(actorKeyPrefix, s.namespace, id)
}
