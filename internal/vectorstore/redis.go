package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces vector records in Redis.
const DefaultKeyPrefix = "docfoundry:vec:"

// RedisStore persists records as JSON strings under prefixed keys.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisOption configures the RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// NewRedisStore creates a Redis-backed vector store on an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(documentID string) string {
	return s.keyPrefix + documentID
}

// Upsert stores records, replacing any existing keys.
func (s *RedisStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s; %w", rec.DocumentID, err)
		}
		pipe.Set(ctx, s.key(rec.DocumentID), data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert records; %w", err)
	}
	return nil
}

// Get returns the record stored under a composite document id.
func (s *RedisStore) Get(ctx context.Context, documentID string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(documentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record %s; %w", documentID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s; %w", documentID, err)
	}
	return &rec, nil
}

// SearchSimilar linearly scans all records under the prefix.
func (s *RedisStore) SearchSimilar(ctx context.Context, query []float32, topK int, threshold float64) ([]SearchResult, error) {
	records, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return rankRecords(records, query, topK, threshold), nil
}

// Count returns the number of stored records.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector keys; %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (s *RedisStore) loadAll(ctx context.Context) ([]Record, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load vector records; %w", err)
	}

	records := make([]Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record at %s; %w", keys[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}
