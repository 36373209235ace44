package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix   = "job:"
	ownerKeyPrefix = "jobs:owner:"
	maxTxRetries   = 10
)

// RedisStore はジョブ記録を Redis に保存します。
// 所有者ごとのソート済みセットで一覧を引けるようにしています。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl が0の場合は期限なしで保存します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Create はジョブを保存し、所有者インデックスに登録します。
func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ownerKey := ownerKey(job.OwnerID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), payload, s.ttl)
		pipe.ZAdd(ctx, ownerKey, redis.Z{
			Score:  float64(job.CreatedAt.UnixNano()),
			Member: job.ID,
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, ownerKey, s.ttl)
		}
		return nil
	})
	return err
}

// Finalize は終了状態を保存します。既に終了状態なら ErrTerminal を返します。
func (s *RedisStore) Finalize(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	return s.updatePartial(ctx, job.ID, func(record *Job) error {
		if record.Status.Terminal() {
			return ErrTerminal
		}
		record.Status = job.Status
		record.OutputPaths = job.OutputPaths
		record.Error = job.Error
		record.CompletedAt = job.CompletedAt
		record.ProcessingTime = job.ProcessingTime
		return nil
	})
}

// Get はジョブ情報を取得します。所有者が異なる場合は nil を返します。
func (s *RedisStore) Get(ctx context.Context, jobID, ownerID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Job
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, nil
	}
	return &record, nil
}

// List は所有者のジョブを新しい順に返します。期限切れの記録は飛ばします。
func (s *RedisStore) List(ctx context.Context, ownerID string, limit int) ([]*Job, error) {
	ids, err := s.rdb.ZRevRange(ctx, ownerKey(ownerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Job, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var record Job
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, err
		}
		out = append(out, &record)
	}
	return out, nil
}

func (s *RedisStore) updatePartial(ctx context.Context, jobID string, mutate func(*Job) error) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("job not found: %s", jobID)
			}
			return err
		}
		var record Job
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := mutate(&record); err != nil {
			return err
		}
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("job update conflicted too many times: %s", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func ownerKey(ownerID string) string {
	return ownerKeyPrefix + ownerID
}
