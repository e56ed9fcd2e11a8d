package gmail

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"transitdocs/internal/config"
)

// Registry records which OAuth state tokens have completed the external
// authorization flow. The analysis backend redirects the popup to our
// callback route, which marks the state; the bridge polls for that mark.
type Registry interface {
	MarkComplete(ctx context.Context, state string) error
	IsComplete(ctx context.Context, state string) (bool, error)
}

// stateTTL bounds how long a completion mark is retained. Well past the
// bridge's wait ceiling, so a slow import never races an expiring key.
const stateTTL = 15 * time.Minute

// RedisRegistry stores completion marks in Redis so the mark survives across
// instances behind a load balancer.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry connects to Redis and verifies connectivity.
func NewRedisRegistry(cfg config.GmailConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisRegistry{client: client}, nil
}

var _ Registry = (*RedisRegistry)(nil)

func (r *RedisRegistry) key(state string) string {
	return "gmail:oauth:" + state
}

func (r *RedisRegistry) MarkComplete(ctx context.Context, state string) error {
	return r.client.Set(ctx, r.key(state), "1", stateTTL).Err()
}

func (r *RedisRegistry) IsComplete(ctx context.Context, state string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(state)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRegistry is a process-local Registry for single-instance deployments
// and tests.
type MemoryRegistry struct {
	mu   sync.RWMutex
	done map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{done: make(map[string]struct{})}
}

var _ Registry = (*MemoryRegistry)(nil)

func (m *MemoryRegistry) MarkComplete(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[state] = struct{}{}
	return nil
}

func (m *MemoryRegistry) IsComplete(_ context.Context, state string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.done[state]
	return ok, nil
}
