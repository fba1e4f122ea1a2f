// Package workflowstore persists registered workflows.
package workflowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStore implements output.WorkflowStore. Each workflow is a JSON string under
// "<prefix>workflow:<id>" and the IDs are kept in the set "<prefix>workflows".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ output.WorkflowStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "geoflow:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &domain.StorageError{Operation: "connect", Key: cfg.Address, Err: fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)}
	}
	return &RedisStore{rdb: rdb, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + "workflow:" + id }
func (s *RedisStore) index() string      { return s.prefix + "workflows" }

// Save stores or replaces a workflow.
func (s *RedisStore) Save(ctx context.Context, record output.WorkflowRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.ID), data, 0)
		pipe.SAdd(ctx, s.index(), record.ID)
		return nil
	})
	if err != nil {
		return &domain.StorageError{Operation: "save", Key: record.ID, Err: err}
	}
	return nil
}

// Load returns a stored workflow.
func (s *RedisStore) Load(ctx context.Context, id string) (*output.WorkflowRecord, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Operation: "load", Key: id, Err: err}
	}

	var record output.WorkflowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &domain.StorageError{Operation: "load", Key: id, Err: err}
	}
	return &record, nil
}

// Delete removes a workflow.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.index(), id)
		return nil
	})
	if err != nil {
		return &domain.StorageError{Operation: "delete", Key: id, Err: err}
	}
	return nil
}

// List returns all stored workflows ordered by ID. Index entries without a record are skipped.
func (s *RedisStore) List(ctx context.Context) ([]output.WorkflowRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.index()).Result()
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: s.index(), Err: err}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: s.index(), Err: err}
	}

	records := make([]output.WorkflowRecord, 0, len(values))
	for i, v := range values {
		text, ok := v.(string)
		if !ok {
			continue
		}
		var record output.WorkflowRecord
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return nil, &domain.StorageError{Operation: "list", Key: ids[i], Err: err}
		}
		records = append(records, record)
	}
	return records, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
