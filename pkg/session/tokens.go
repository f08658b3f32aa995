package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

// TokenName is the fixed name the bearer token is persisted under
const TokenName = "backoffice.token"

// ErrNoToken is returned by TokenStore.Load when nothing is persisted
var ErrNoToken = errors.New("no persisted token")

// TokenStore persists the bearer token between process restarts or
// gateway session evictions
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the token in memory
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *MemoryTokenStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// FileTokenStore keeps the token in <dir>/backoffice.token, readable only
// by the owner
type FileTokenStore struct {
	path string
}

// NewFileTokenStore stores the token under dir
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{path: filepath.Join(dir, TokenName)}
}

// DefaultTokenDir is the per-user config directory used by the CLI
func DefaultTokenDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, "backoffice"), nil
}

// Path returns the token file location
func (f *FileTokenStore) Path() string {
	return f.path
}

func (f *FileTokenStore) Load(context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (f *FileTokenStore) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace token: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// RedisTokenStore keeps one gateway session's token in Redis under
// backoffice:token:<session id>
type RedisTokenStore struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewRedisTokenStore creates a store for sessionID. A zero ttl keeps the
// key until cleared. metrics may be nil.
func NewRedisTokenStore(client *redis.Client, sessionID string, ttl time.Duration, metrics *observability.Metrics) *RedisTokenStore {
	return &RedisTokenStore{
		client:  client,
		key:     RedisKey(sessionID),
		ttl:     ttl,
		metrics: metrics,
	}
}

// RedisKey is the key holding the token of sessionID
func RedisKey(sessionID string) string {
	return "backoffice:token:" + sessionID
}

func (r *RedisTokenStore) observe(command string, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "error"
	}
	r.metrics.RedisCommandsTotal.WithLabelValues(command, status).Inc()
}

func (r *RedisTokenStore) Load(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	r.observe("get", err)
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

func (r *RedisTokenStore) Save(ctx context.Context, token string) error {
	err := r.client.Set(ctx, r.key, token, r.ttl).Err()
	r.observe("set", err)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Touch extends the key's TTL
func (r *RedisTokenStore) Touch(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}
	err := r.client.Expire(ctx, r.key, r.ttl).Err()
	r.observe("expire", err)
	if err != nil {
		return fmt.Errorf("failed to refresh token ttl: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) Clear(ctx context.Context) error {
	err := r.client.Del(ctx, r.key).Err()
	r.observe("del", err)
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
