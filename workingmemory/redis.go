package workingmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnemo-ai/mnemo"
)

// Redis key layout.
const (
	DefaultRedisKeyPrefix = "mnemo:wm:"
	redisIndexSuffix      = "index"
)

// RedisStore persists working memory as JSON blobs in Redis, one key per
// session, with TTL handled by Redis expiry. The optimistic version check
// runs inside a WATCH/MULTI transaction.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ Store = &RedisStore{}

// NewRedisStore creates a store on an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, keyPrefix: DefaultRedisKeyPrefix}
}

func (s *RedisStore) key(namespace, sessionID string) string {
	return s.keyPrefix + namespace + "\x00" + sessionID
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + redisIndexSuffix
}

func (s *RedisStore) Get(ctx context.Context, namespace, sessionID string) (*mnemo.WorkingMemory, error) {
	data, err := s.client.Get(ctx, s.key(namespace, sessionID)).Result()
	if err == redis.Nil {
		return nil, mnemo.WrapError(mnemo.KindNotFound, mnemo.ErrNotFound)
	}
	if err != nil {
		return nil, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("fetching session %s: %w", sessionID, err))
	}
	var wm mnemo.WorkingMemory
	if err := json.Unmarshal([]byte(data), &wm); err != nil {
		return nil, mnemo.WrapError(mnemo.KindFatal, fmt.Errorf("corrupt session %s: %w", sessionID, err))
	}
	return &wm, nil
}

func (s *RedisStore) Put(ctx context.Context, wm *mnemo.WorkingMemory) (*mnemo.WorkingMemory, error) {
	key := s.key(wm.Namespace, wm.SessionID)
	var stored *mnemo.WorkingMemory

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var storedVersion int64
		data, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			return mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("reading session %s: %w", wm.SessionID, err))
		default:
			var current mnemo.WorkingMemory
			if err := json.Unmarshal([]byte(data), &current); err != nil {
				return mnemo.WrapError(mnemo.KindFatal, fmt.Errorf("corrupt session %s: %w", wm.SessionID, err))
			}
			storedVersion = current.Version
		}
		if wm.Version != 0 && wm.Version != storedVersion {
			return mnemo.Errorf(mnemo.KindConflict,
				"session %s version %d is stale (stored %d): %w",
				wm.SessionID, wm.Version, storedVersion, mnemo.ErrConflict)
		}

		stored = wm.Copy()
		stored.Version = storedVersion + 1
		payload, err := json.Marshal(stored)
		if err != nil {
			return mnemo.WrapError(mnemo.KindFatal, fmt.Errorf("marshaling session %s: %w", wm.SessionID, err))
		}
		ttl := time.Duration(0)
		if wm.TTLSeconds > 0 {
			ttl = time.Duration(wm.TTLSeconds) * time.Second
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Member: wm.Namespace + "\x00" + wm.SessionID})
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Someone else wrote between our read and commit.
		return nil, mnemo.Errorf(mnemo.KindConflict,
			"session %s modified concurrently: %w", wm.SessionID, mnemo.ErrConflict)
	}
	if err != nil {
		if _, tagged := mnemo.KindOf(err); tagged {
			return nil, err
		}
		return nil, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("writing session %s: %w", wm.SessionID, err))
	}
	return stored, nil
}

func (s *RedisStore) Delete(ctx context.Context, namespace, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(namespace, sessionID))
		pipe.ZRem(ctx, s.indexKey(), namespace+"\x00"+sessionID)
		return nil
	})
	if err != nil {
		return mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("deleting session %s: %w", sessionID, err))
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, namespace string, limit, offset int) ([]string, int, error) {
	min, max := "-", "+"
	if namespace != "" {
		// Members sort as namespace \x00 session_id, so \x01 bounds the
		// namespace prefix.
		min = "[" + namespace + "\x00"
		max = "(" + namespace + "\x01"
	}

	total, err := s.client.ZLexCount(ctx, s.indexKey(), min, max).Result()
	if err != nil {
		return nil, 0, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("counting sessions: %w", err))
	}

	members, err := s.client.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
		Min:    min,
		Max:    max,
		Offset: int64(offset),
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, 0, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("listing sessions: %w", err))
	}

	ids := make([]string, 0, len(members))
	for _, member := range members {
		if _, id, ok := strings.Cut(member, "\x00"); ok {
			ids = append(ids, id)
		}
	}
	return ids, int(total), nil
}
