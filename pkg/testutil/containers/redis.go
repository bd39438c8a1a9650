//go:build integration

// Package containers provides a process-wide Redis testcontainer shared
// by every integration suite in one test binary. `go test` builds one
// binary per package, so each package starts its own container once.
package containers

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer wraps a testcontainers Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	Addr      string
	Client    *redis.Client
}

// FlushAll removes all keys, used between tests to keep them isolated.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}

// Manager lazily starts one Redis container for the lifetime of the test
// binary. Ryuk (testcontainers' reaper) terminates it when the process
// exits; suites never call Terminate themselves.
type Manager struct {
	once  sync.Once
	redis *RedisContainer
	err   error
}

var manager = &Manager{}

// GetManager returns the process-wide container manager singleton.
func GetManager() *Manager {
	return manager
}

// GetRedis returns the shared Redis container, starting it on first call.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()

	m.once.Do(func() {
		ctx := context.Background()

		container, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			m.err = err
			return
		}

		addr, err := container.ConnectionString(ctx)
		if err != nil {
			_ = container.Terminate(ctx)
			m.err = err
			return
		}

		opts, err := redis.ParseURL(addr)
		if err != nil {
			_ = container.Terminate(ctx)
			m.err = err
			return
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = container.Terminate(ctx)
			m.err = err
			return
		}

		m.redis = &RedisContainer{Container: container, Addr: addr, Client: client}
	})

	if m.err != nil {
		t.Fatalf("starting shared redis container: %v", m.err)
	}
	return m.redis
}
