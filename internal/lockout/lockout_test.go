//go:build integration

package lockout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"naas/internal/lockout"
	"naas/pkg/testutil/containers"
)

type LockoutSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestLockoutSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LockoutSuite))
}

func (s *LockoutSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *LockoutSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *LockoutSuite) TestLocksAfterThreshold() {
	svc := lockout.NewDeviceLockout(s.redis.Client, lockout.WithThreshold(3))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := svc.Check(ctx, "192.0.2.1", true)
		s.Require().NoError(err)
		s.Require().False(locked)
	}

	locked, err := svc.Check(ctx, "192.0.2.1", true)
	s.Require().NoError(err)
	s.Require().True(locked)
}

func (s *LockoutSuite) TestCheckOnlyDoesNotRecord() {
	svc := lockout.NewDeviceLockout(s.redis.Client, lockout.WithThreshold(1))
	ctx := context.Background()

	locked, err := svc.Check(ctx, "192.0.2.1", false)
	s.Require().NoError(err)
	s.Require().False(locked)

	count, err := svc.Count(ctx, "192.0.2.1")
	s.Require().NoError(err)
	s.Require().Zero(count)
}

func (s *LockoutSuite) TestPrunesExpiredMembers() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	svc := lockout.NewDeviceLockout(s.redis.Client,
		lockout.WithThreshold(2),
		lockout.WithWindow(10*time.Minute),
		lockout.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	locked, err := svc.Check(ctx, "192.0.2.1", true)
	s.Require().NoError(err)
	s.Require().False(locked)

	now = base.Add(11 * time.Minute)
	locked, err = svc.Check(ctx, "192.0.2.1", true)
	s.Require().NoError(err)
	s.Require().False(locked, "the first failure should have aged out of the window")
}

func (s *LockoutSuite) TestStaysLockedWhileRecordingMoreFailures() {
	svc := lockout.NewDeviceLockout(s.redis.Client, lockout.WithThreshold(2))
	ctx := context.Background()

	_, err := svc.Check(ctx, "192.0.2.1", true)
	s.Require().NoError(err)
	locked, err := svc.Check(ctx, "192.0.2.1", true)
	s.Require().NoError(err)
	s.Require().True(locked)

	locked, err = svc.Check(ctx, "192.0.2.1", true)
	s.Require().NoError(err)
	s.Require().True(locked, "recording while locked keeps the lockout active")
}

func (s *LockoutSuite) TestUserAndDeviceAxesAreIndependent() {
	users := lockout.NewUserLockout(s.redis.Client, lockout.WithThreshold(1))
	devices := lockout.NewDeviceLockout(s.redis.Client, lockout.WithThreshold(1))
	ctx := context.Background()

	locked, err := users.Check(ctx, "admin", true)
	s.Require().NoError(err)
	s.Require().True(locked)

	locked, err = devices.Check(ctx, "admin", false)
	s.Require().NoError(err)
	s.Require().False(locked, "same subject string on a different axis must not be locked")
}
