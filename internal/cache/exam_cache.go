// Package cache holds read-through caches for immutable exam content.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/assessor/internal/model"
)

// DefaultTTL is how long a cached exam lives when no TTL is configured.
const DefaultTTL = 10 * time.Minute

// ExamCache stores hydrated exams by id. Exams never change after creation,
// so entries only expire. Get returns nil, nil on a miss.
type ExamCache interface {
	Get(ctx context.Context, examID int64) (*model.Exam, error)
	Set(ctx context.Context, exam *model.Exam) error
}

type redisExamCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisExamCache creates an exam cache backed by Redis.
func NewRedisExamCache(client *redis.Client, ttl time.Duration) ExamCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisExamCache{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func examKey(examID int64) string {
	return fmt.Sprintf("exam:%d", examID)
}

func (c *redisExamCache) Get(ctx context.Context, examID int64) (*model.Exam, error) {
	data, err := c.client.Get(ctx, examKey(examID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var exam model.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

func (c *redisExamCache) Set(ctx context.Context, exam *model.Exam) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, examKey(exam.ID), data, c.ttl).Err()
}

// Noop is an ExamCache that never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, int64) (*model.Exam, error) { return nil, nil }
func (Noop) Set(context.Context, *model.Exam) error          { return nil }
