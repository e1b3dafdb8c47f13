package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/tweetchat-server/internal/core"
)

// Redis keeps the online set in Redis, outside the server process.
//
// Keys:
//
//	{prefix}presence:online  SET of user ids
//	{prefix}presence:names   HASH user id -> display name
type Redis struct {
	client    redis.UniversalClient
	onlineKey string
	namesKey  string
}

// NewRedis returns a tracker whose keys start with prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{
		client:    client,
		onlineKey: prefix + "presence:online",
		namesKey:  prefix + "presence:names",
	}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// RecordIdentity stores the display name in the names hash. Empty names are ignored.
func (r *Redis) RecordIdentity(ctx context.Context, userID, name string) error {
	if name == "" {
		return nil
	}
	return r.client.HSet(ctx, r.namesKey, userID, name).Err()
}

// SetOnline adds userID to the online set; SADD reports whether it was new.
func (r *Redis) SetOnline(ctx context.Context, userID string) (bool, error) {
	added, err := r.client.SAdd(ctx, r.onlineKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("sadd: %w", err)
	}
	return added > 0, nil
}

// SetOffline removes userID from the online set; SREM reports whether it was there.
func (r *Redis) SetOffline(ctx context.Context, userID string) (bool, error) {
	removed, err := r.client.SRem(ctx, r.onlineKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("srem: %w", err)
	}
	return removed > 0, nil
}

// ListOnline returns the online set ordered by id with names from the hash.
func (r *Redis) ListOnline(ctx context.Context) ([]core.Presence, error) {
	ids, err := r.client.SMembers(ctx, r.onlineKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	names, err := r.client.HMGet(ctx, r.namesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget: %w", err)
	}

	list := make([]core.Presence, 0, len(ids))
	for i, id := range ids {
		p := core.Presence{UserID: id, Status: core.StatusOnline}
		if name, ok := names[i].(string); ok {
			p.Name = name
		}
		list = append(list, p)
	}
	return sortByUserID(list), nil
}
