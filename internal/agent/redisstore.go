// Redis-backed job Store, grounded on github.com/redis/go-redis/v9 usage
// across streamspace-dev-streamspace's services.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// RedisStore persists jobs as JSON values under "fluxrag:job:<id>" and
// tracks parent/child linkage in a "fluxrag:job-children:<id>" list.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	Ctx    context.Context
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fluxrag"
	}
	return &RedisStore{Client: client, Prefix: prefix, Ctx: context.Background()}
}

func (s *RedisStore) jobKey(id string) string      { return s.Prefix + ":job:" + id }
func (s *RedisStore) childrenKey(id string) string { return s.Prefix + ":job-children:" + id }

func (s *RedisStore) persist(job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fluxerrors.NewBackendFailure("redis-store", err)
	}
	return s.Client.Set(s.Ctx, s.jobKey(job.JobID), b, 0).Err()
}

func (s *RedisStore) CreateJob(spec JobSpec) (*Job, error) {
	job := BuildJob(spec)
	if err := s.persist(job); err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	if job.ParentJobID != "" {
		if err := s.Client.RPush(s.Ctx, s.childrenKey(job.ParentJobID), job.JobID).Err(); err != nil {
			return nil, fluxerrors.NewBackendFailure("redis-store", err)
		}
	}
	return job, nil
}

func (s *RedisStore) GetJob(jobID string) (*Job, error) {
	b, err := s.Client.Get(s.Ctx, s.jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	return &j, nil
}

func (s *RedisStore) MarkStatus(jobID string, status Status, errMessage string) error {
	job, err := s.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	job.Status = status
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	if errMessage != "" {
		job.Metadata["error"] = errMessage
	}
	job.Metadata["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	return s.persist(job)
}

func (s *RedisStore) ChildrenOf(jobID string) ([]string, error) {
	vals, err := s.Client.LRange(s.Ctx, s.childrenKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("redis-store", err)
	}
	return vals, nil
}
