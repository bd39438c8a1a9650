package store

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const saltLength = 10
const saltAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Store is the thin Redis handle every NAAS component is built on.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing go-redis client. NAAS never needs a dedicated
// connection pool per component — C3, C4, C5 and the salt all share one.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client exposes the underlying go-redis client for components that need
// Redis primitives this package doesn't wrap directly (pipelines, sorted
// sets, hashes).
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// Health pings Redis, used by the healthcheck endpoint.
func (s *Store) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Salt returns the process-lifetime credential salt, creating it with a
// set-if-not-exists write on first use so that every API pod and worker
// converges on the same value even though none of them coordinate startup
// order (spec.md §3, §9 "Global salt").
func (s *Store) Salt(ctx context.Context) (string, error) {
	val, err := s.rdb.Get(ctx, SaltKey).Result()
	if err == nil {
		return val, nil
	}
	if err != redis.Nil {
		return "", fmt.Errorf("reading credential salt: %w", err)
	}

	fresh, err := randomSalt()
	if err != nil {
		return "", fmt.Errorf("generating credential salt: %w", err)
	}

	// SetNX loses the race gracefully: whichever process wins, every
	// subsequent reader (including this one) reads the winner's value back.
	ok, err := s.rdb.SetNX(ctx, SaltKey, fresh, 0).Result()
	if err != nil {
		return "", fmt.Errorf("storing credential salt: %w", err)
	}
	if ok {
		return fresh, nil
	}

	val, err = s.rdb.Get(ctx, SaltKey).Result()
	if err != nil {
		return "", fmt.Errorf("reading credential salt after SetNX race: %w", err)
	}
	return val, nil
}

func randomSalt() (string, error) {
	buf := make([]byte, saltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, saltLength)
	for i, b := range buf {
		out[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(out), nil
}
