// Redis-backed Store/Queue, the pluggable persistence backend spec.md
// §4.5 calls for ("Pluggable storage and queue backends"). Grounded on
// github.com/redis/go-redis/v9 usage in streamspace-dev-streamspace's API
// and agent services.
package fluxcapacitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// RedisStore persists tasks as JSON values under "fluxrag:task:<id>" and
// tracks parent/child linkage in a "fluxrag:children:<id>" Redis list.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	Ctx    context.Context
}

// NewRedisStore wraps an existing client; prefix defaults to "fluxrag" if
// empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fluxrag"
	}
	return &RedisStore{Client: client, Prefix: prefix, Ctx: context.Background()}
}

func (s *RedisStore) taskKey(id string) string     { return s.Prefix + ":task:" + id }
func (s *RedisStore) childrenKey(id string) string  { return s.Prefix + ":children:" + id }

func (s *RedisStore) CreateTask(t *Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fluxerrors.NewBackendFailure("redis-store", err)
	}
	if err := s.Client.Set(s.Ctx, s.taskKey(t.ID), b, 0).Err(); err != nil {
		return fluxerrors.NewBackendFailure("redis-store", err)
	}
	if t.ParentID != "" {
		if err := s.Client.RPush(s.Ctx, s.childrenKey(t.ParentID), t.ID).Err(); err != nil {
			return fluxerrors.NewBackendFailure("redis-store", err)
		}
	}
	return nil
}

func (s *RedisStore) GetTask(id string) (*Task, error) {
	b, err := s.Client.Get(s.Ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	return &t, nil
}

func (s *RedisStore) update(id string, mutate func(*Task)) error {
	t, err := s.GetTask(id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	mutate(t)
	return s.CreateTask(t)
}

func (s *RedisStore) MarkDone(id string) error {
	return s.update(id, func(t *Task) {
		now := time.Now().UTC()
		t.FinishedAt = &now
		t.Error = nil
	})
}

func (s *RedisStore) MarkError(id, message string) error {
	return s.update(id, func(t *Task) {
		now := time.Now().UTC()
		t.FinishedAt = &now
		t.Error = &message
	})
}

func (s *RedisStore) ChildrenOf(id string) ([]string, error) {
	vals, err := s.Client.LRange(s.Ctx, s.childrenKey(id), 0, -1).Result()
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	return vals, nil
}

// RedisQueue is a Redis list used as a FIFO task queue.
type RedisQueue struct {
	Client *redis.Client
	Key    string
	Ctx    context.Context
}

// NewRedisQueue wraps an existing client; key defaults to
// "fluxrag:queue" if empty.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "fluxrag:queue"
	}
	return &RedisQueue{Client: client, Key: key, Ctx: context.Background()}
}

func (q *RedisQueue) Push(taskID string) error {
	if err := q.Client.RPush(q.Ctx, q.Key, taskID).Err(); err != nil {
		return fluxerrors.NewBackendFailure("redis-queue", err)
	}
	return nil
}

func (q *RedisQueue) Pop() (string, bool, error) {
	val, err := q.Client.LPop(q.Ctx, q.Key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fluxerrors.NewBackendFailure("redis-queue", err)
	}
	return val, true, nil
}
