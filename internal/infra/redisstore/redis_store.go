// Package redisstore provides a Redis-backed progress repository for
// deployments that run without a writable local disk.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vip-ladder/tierbot/internal/domain"
)

// DefaultPrefix namespaces progress hashes.
const DefaultPrefix = "tierbot:progress:"

const (
	fieldCount   = "activity_count"
	fieldAck     = "acknowledged_tier"
	fieldUpdated = "updated_at"
)

var _ domain.ProgressRepository = (*Store)(nil)

// Store keeps one hash per user.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to redisURL and verifies the connection.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, prefix: DefaultPrefix}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: DefaultPrefix}
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

// LoadProgress scans every progress hash.
func (s *Store) LoadProgress(ctx context.Context) ([]domain.UserProgress, error) {
	var out []domain.UserProgress
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID := key[len(s.prefix):]
		p, err := s.get(ctx, key, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	return out, nil
}

// GetProgress returns one record, or the default record when absent.
func (s *Store) GetProgress(ctx context.Context, userID string) (domain.UserProgress, error) {
	return s.get(ctx, s.key(userID), userID)
}

func (s *Store) get(ctx context.Context, key, userID string) (domain.UserProgress, error) {
	p := domain.NewUserProgress(userID)
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return p, fmt.Errorf("read progress %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return p, nil
	}
	if p.ActivityCount, err = strconv.ParseInt(vals[fieldCount], 10, 64); err != nil {
		return p, fmt.Errorf("decode %s %s: %w", userID, fieldCount, err)
	}
	if p.AcknowledgedTier, err = strconv.Atoi(vals[fieldAck]); err != nil {
		return p, fmt.Errorf("decode %s %s: %w", userID, fieldAck, err)
	}
	if ts, err := strconv.ParseInt(vals[fieldUpdated], 10, 64); err == nil {
		p.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return p, nil
}

// SaveProgress writes the batch inside MULTI/EXEC, so each hash is replaced
// whole and readers never observe a half-written record.
func (s *Store) SaveProgress(ctx context.Context, batch []domain.UserProgress) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range batch {
			updated := p.UpdatedAt
			if updated.IsZero() {
				updated = time.Now()
			}
			pipe.HSet(ctx, s.key(p.UserID),
				fieldCount, p.ActivityCount,
				fieldAck, p.AcknowledgedTier,
				fieldUpdated, updated.Unix(),
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
