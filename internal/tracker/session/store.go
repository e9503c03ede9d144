package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blob is the serialized session handed to a Store. The expiry travels as
// an RFC 3339 timestamp in JSON.
type Blob struct {
	Cookies   map[string]string `json:"cookies"`
	Expiry    time.Time         `json:"expiry"`
	UserAgent string            `json:"user_agent,omitempty"`
}

// Store persists a session blob between restarts, keyed by account.
// Both operations are best-effort from the caller's perspective: a failed
// Load just forces a fresh login, a failed Save is logged and forgotten.
type Store interface {
	// Load returns the stored blob, or (nil, nil) when none exists.
	Load(ctx context.Context) (*Blob, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, blob *Blob) error
}

// FileStore keeps the blob in a mode-0600 JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (*Blob, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session blob: %w", err)
	}

	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		// A corrupt blob is as good as no blob.
		return nil, nil
	}
	return &blob, nil
}

func (s *FileStore) Save(_ context.Context, blob *Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to marshal session blob: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session blob: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// RedisStore keeps the blob in redis with a TTL matching the session
// validity, so stale cookies age out on their own.
type RedisStore struct {
	client  *redis.Client
	account string
	ttl     time.Duration
}

// NewRedisStore creates a RedisStore for the given account.
func NewRedisStore(client *redis.Client, account string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		account: account,
		ttl:     ttl,
	}
}

func (s *RedisStore) key() string {
	return fmt.Sprintf("fleetlink:session:%s", s.account)
}

func (s *RedisStore) Load(ctx context.Context) (*Blob, error) {
	data, err := s.client.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session blob: %w", err)
	}

	var blob Blob
	if err := json.Unmarshal([]byte(data), &blob); err != nil {
		return nil, nil
	}
	return &blob, nil
}

func (s *RedisStore) Save(ctx context.Context, blob *Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to marshal session blob: %w", err)
	}
	return s.client.Set(ctx, s.key(), data, s.ttl).Err()
}
