//go:build integration

package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"naas/internal/breaker"
	"naas/pkg/testutil/containers"
)

type BreakerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestBreakerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *BreakerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *BreakerSuite) TestOpensAfterFailMax() {
	b := breaker.New(s.redis.Client, breaker.WithFailMax(3))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s.Require().NoError(b.RecordFailure(ctx, "192.0.2.1"))
		status, err := b.Allow(ctx, "192.0.2.1")
		s.Require().NoError(err)
		s.Require().Equal(breaker.StateClosed, status.State)
	}

	s.Require().NoError(b.RecordFailure(ctx, "192.0.2.1"))
	_, err := b.Allow(ctx, "192.0.2.1")
	s.Require().ErrorIs(err, breaker.ErrOpen)
}

func (s *BreakerSuite) TestHalfOpenAfterResetTimeout() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := breaker.New(s.redis.Client,
		breaker.WithFailMax(1),
		breaker.WithResetTimeout(5*time.Minute),
		breaker.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	s.Require().NoError(b.RecordFailure(ctx, "192.0.2.1"))
	_, err := b.Allow(ctx, "192.0.2.1")
	s.Require().ErrorIs(err, breaker.ErrOpen)

	now = now.Add(6 * time.Minute)
	status, err := b.Allow(ctx, "192.0.2.1")
	s.Require().NoError(err)
	s.Require().Equal(breaker.StateHalfOpen, status.State)
}

func (s *BreakerSuite) TestHalfOpenSuccessCloses() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := breaker.New(s.redis.Client,
		breaker.WithFailMax(1),
		breaker.WithResetTimeout(time.Minute),
		breaker.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	s.Require().NoError(b.RecordFailure(ctx, "192.0.2.1"))
	now = now.Add(2 * time.Minute)
	_, err := b.Allow(ctx, "192.0.2.1")
	s.Require().NoError(err)

	s.Require().NoError(b.RecordSuccess(ctx, "192.0.2.1"))
	status, err := b.Allow(ctx, "192.0.2.1")
	s.Require().NoError(err)
	s.Require().Equal(breaker.StateClosed, status.State)
}

func (s *BreakerSuite) TestHalfOpenFailureReopens() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := breaker.New(s.redis.Client,
		breaker.WithFailMax(1),
		breaker.WithResetTimeout(time.Minute),
		breaker.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	s.Require().NoError(b.RecordFailure(ctx, "192.0.2.1"))
	now = now.Add(2 * time.Minute)
	_, err := b.Allow(ctx, "192.0.2.1")
	s.Require().NoError(err)

	s.Require().NoError(b.RecordFailure(ctx, "192.0.2.1"))
	_, err = b.Allow(ctx, "192.0.2.1")
	s.Require().True(errors.Is(err, breaker.ErrOpen))
}

func (s *BreakerSuite) TestAuthFailuresNeverRouteHere() {
	// Regression guard for spec.md §4.3/§9: the breaker package exposes no
	// API that records a failure without the caller explicitly choosing to;
	// an authentication failure path must call lockout, not RecordFailure.
	b := breaker.New(s.redis.Client, breaker.WithFailMax(1))
	ctx := context.Background()

	status, err := b.Allow(ctx, "192.0.2.2")
	s.Require().NoError(err)
	s.Require().Equal(breaker.StateClosed, status.State)
	s.Require().Zero(status.Counter)
}
