package push

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "courier:push:"

type RedisState struct {
	client *redis.Client
}

func NewRedisState(client *redis.Client) *RedisState {
	return &RedisState{client: client}
}

func (r *RedisState) Permission(ctx context.Context, installation string) (Permission, error) {
	v, err := r.client.Get(ctx, keyPrefix+installation+":permission").Result()
	if errors.Is(err, redis.Nil) {
		return PermissionDefault, nil
	}
	if err != nil {
		return PermissionDefault, err
	}
	return Permission(v), nil
}

func (r *RedisState) SetPermission(ctx context.Context, installation string, p Permission) error {
	return r.client.Set(ctx, keyPrefix+installation+":permission", string(p), 0).Err()
}

func (r *RedisState) IssueToken(ctx context.Context, installation string) (string, error) {
	key := keyPrefix + installation + ":token"
	// first writer wins; everyone reads back the same token
	if err := r.client.SetNX(ctx, key, uuid.NewString(), 0).Err(); err != nil {
		return "", err
	}
	return r.client.Get(ctx, key).Result()
}
