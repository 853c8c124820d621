// internal/store/redis.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/config"
)

const (
	defaultKeyPrefix = "formrunner:"
	listPageSize     = 100
)

// RedisStore keeps each job as a JSON string under its own key, plus a sorted
// set of job ids scored by creation time. Finished jobs get the result TTL set
// on their key; the index is pruned by DeleteExpired.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	pageSize  int64
	log       *zap.Logger
}

var _ JobStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, ttl, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		pageSize:  listPageSize,
		log:       logger.Named("store"),
	}
}

func (s *RedisStore) jobKey(id string) string { return s.keyPrefix + "job:" + id }
func (s *RedisStore) indexKey() string        { return s.keyPrefix + "jobs" }

// expiration is the key TTL for a job in its current state.
func (s *RedisStore) expiration(job *schemas.Job) time.Duration {
	if job.Status.Terminal() && s.ttl > 0 {
		return s.ttl
	}
	return 0
}

func (s *RedisStore) Create(ctx context.Context, job *schemas.Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), data, s.expiration(job)).Result()
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	if !ok {
		return ErrJobExists
	}
	err = s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*schemas.Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return decodeJob(data)
}

func (s *RedisStore) Update(ctx context.Context, job *schemas.Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	args := redis.SetArgs{Mode: "XX"}
	if exp := s.expiration(job); exp > 0 {
		args.TTL = exp
	} else {
		args.KeepTTL = true
	}
	err = s.client.SetArgs(ctx, s.jobKey(job.ID), data, args).Err()
	if errors.Is(err, redis.Nil) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.jobKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List walks the index newest first, one page at a time, until limit
// matching jobs have been collected.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]*schemas.Job, error) {
	limit := filter.limit()
	var jobs []*schemas.Job
	for start := int64(0); len(jobs) < limit; start += s.pageSize {
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, start+s.pageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read job index: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.jobKey(id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load jobs: %w", err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Key expired; the index entry is pruned by DeleteExpired.
				continue
			}
			job, err := decodeJob([]byte(raw))
			if err != nil {
				s.log.Warn("Skipping undecodable job record.", zap.Error(err))
				continue
			}
			if !filter.matches(job) {
				continue
			}
			jobs = append(jobs, job)
			if len(jobs) == limit {
				break
			}
		}
		if int64(len(ids)) < s.pageSize {
			break
		}
	}
	return jobs, nil
}

// DeleteExpired removes index entries whose job keys Redis has already
// expired. It reports the number of entries pruned.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int64, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read job index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, s.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to check job keys: %w", err)
	}

	var stale []interface{}
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := s.client.ZRem(ctx, s.indexKey(), stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune job index: %w", err)
	}
	s.log.Debug("Pruned expired jobs from index.", zap.Int64("count", n))
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
