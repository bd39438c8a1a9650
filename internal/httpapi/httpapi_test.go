//go:build integration

package httpapi_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"naas/internal/breaker"
	"naas/internal/httpapi"
	"naas/internal/lockout"
	"naas/internal/queue"
	"naas/internal/store"
	"naas/pkg/testutil"
	"naas/pkg/testutil/containers"
)

// fakeWorkers is the minimal httpapi.WorkerCensus double for the
// healthcheck test — no worker.Pool is started in this suite.
type fakeWorkers struct{ active int }

func (f fakeWorkers) ActiveCount() int { return f.active }

type HTTPAPISuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	kv      *store.Store
	q       *queue.Queue
	cb      *breaker.Breaker
	users   *lockout.Service
	devices *lockout.Service
	router  http.Handler
}

func TestHTTPAPISuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(HTTPAPISuite))
}

func (s *HTTPAPISuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *HTTPAPISuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.T().Context()))
	s.kv = store.New(s.redis.Client)
	s.q = queue.New(s.redis.Client)
	s.cb = breaker.New(s.redis.Client, breaker.WithFailMax(2))
	s.users = lockout.NewUserLockout(s.redis.Client, lockout.WithThreshold(2))
	s.devices = lockout.NewDeviceLockout(s.redis.Client, lockout.WithThreshold(2))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := httpapi.New(s.kv, s.q, s.cb, s.users, s.devices, fakeWorkers{active: 1}, 4, logger, nil)
	s.router = httpapi.Router(h, logger, nil)
}

func (s *HTTPAPISuite) TestSubmitCommandAccepted() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", map[string]any{
		"ip":       "192.0.2.20",
		"platform": "cisco_ios",
		"commands": []string{"show version"},
	})
	req.SetBasicAuth("netops", "hunter2")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	s.Require().NotEmpty(rr.Header().Get("X-Request-ID"))

	resp := testutil.UnmarshalResponse[struct {
		JobID string `json:"job_id"`
	}](s.T(), rr)
	s.Require().NotEmpty(resp.JobID)

	exists, err := s.q.Exists(s.T().Context(), resp.JobID)
	s.Require().NoError(err)
	s.Require().True(exists)
}

func (s *HTTPAPISuite) TestSubmitRequiresBasicAuth() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", map[string]any{
		"ip":       "192.0.2.21",
		"platform": "cisco_ios",
		"commands": []string{"show version"},
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HTTPAPISuite) TestSubmitRejectsUnregisteredPlatform() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", map[string]any{
		"ip":       "192.0.2.22",
		"platform": "not_a_real_platform",
		"commands": []string{"show version"},
	})
	req.SetBasicAuth("netops", "hunter2")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
}

func (s *HTTPAPISuite) TestUserLockoutTakesPrecedenceOverPayloadValidation() {
	// spec.md §4.5 orders user lockout (step 2) ahead of payload validation
	// (step 3): a locked-out user submitting a malformed body must still see
	// LockedOut (403), not UnprocessableEntity (422).
	ctx := s.T().Context()
	for i := 0; i < 2; i++ {
		_, err := s.users.Check(ctx, "lockedout", true)
		s.Require().NoError(err)
	}

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", map[string]any{
		"ip":       "192.0.2.30",
		"platform": "not_a_real_platform",
		"commands": []string{},
	})
	req.SetBasicAuth("lockedout", "hunter2")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
}

func (s *HTTPAPISuite) TestDuplicateRequestIDRejected() {
	body := map[string]any{
		"ip":       "192.0.2.23",
		"platform": "cisco_ios",
		"commands": []string{"show version"},
	}

	first := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", body)
	first.SetBasicAuth("netops", "hunter2")
	first.Header.Set("X-Request-ID", "11111111-1111-4111-8111-111111111111")
	rr1 := testutil.DoRequest(s.router, first)
	testutil.AssertStatus(s.T(), rr1, http.StatusAccepted)

	second := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", body)
	second.SetBasicAuth("netops", "hunter2")
	second.Header.Set("X-Request-ID", "11111111-1111-4111-8111-111111111111")
	rr2 := testutil.DoRequest(s.router, second)
	testutil.AssertStatus(s.T(), rr2, http.StatusBadRequest)
}

func (s *HTTPAPISuite) TestGetJobOwnershipIsolation() {
	submit := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", map[string]any{
		"ip":       "192.0.2.24",
		"platform": "cisco_ios",
		"commands": []string{"show version"},
	})
	submit.SetBasicAuth("alice", "alicepw")
	rr := testutil.DoRequest(s.router, submit)
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	jobID := rr.Header().Get("X-Request-ID")

	ownerGet := httptest.NewRequest(http.MethodGet, "/v1/send_command/"+jobID, nil)
	ownerGet.SetBasicAuth("alice", "alicepw")
	ownerRR := testutil.DoRequest(s.router, ownerGet)
	testutil.AssertStatus(s.T(), ownerRR, http.StatusOK)

	strangerGet := httptest.NewRequest(http.MethodGet, "/v1/send_command/"+jobID, nil)
	strangerGet.SetBasicAuth("mallory", "malloryspw")
	strangerRR := testutil.DoRequest(s.router, strangerGet)
	testutil.AssertStatus(s.T(), strangerRR, http.StatusForbidden)
}

func (s *HTTPAPISuite) TestGetJobNotFound() {
	req := httptest.NewRequest(http.MethodGet, "/v1/send_command/00000000-0000-4000-8000-000000000000", nil)
	req.SetBasicAuth("netops", "hunter2")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}

func (s *HTTPAPISuite) TestCancelJobThenConflictOnSecondCancel() {
	submit := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/send_command", map[string]any{
		"ip":       "192.0.2.25",
		"platform": "cisco_ios",
		"commands": []string{"show version"},
	})
	submit.SetBasicAuth("netops", "hunter2")
	rr := testutil.DoRequest(s.router, submit)
	jobID := rr.Header().Get("X-Request-ID")

	del := httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+jobID, nil)
	del.SetBasicAuth("netops", "hunter2")
	delRR := testutil.DoRequest(s.router, del)
	testutil.AssertStatus(s.T(), delRR, http.StatusNoContent)

	del2 := httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+jobID, nil)
	del2.SetBasicAuth("netops", "hunter2")
	del2RR := testutil.DoRequest(s.router, del2)
	testutil.AssertStatus(s.T(), del2RR, http.StatusConflict)
}

func (s *HTTPAPISuite) TestLegacyAliasCarriesDeprecationHeaders() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/send_command", map[string]any{
		"ip":       "192.0.2.26",
		"platform": "cisco_ios",
		"commands": []string{"show version"},
	})
	req.SetBasicAuth("netops", "hunter2")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	s.Require().Equal("true", rr.Header().Get("X-API-Deprecated"))
	s.Require().NotEmpty(rr.Header().Get("X-API-Sunset"))
}

func (s *HTTPAPISuite) TestHealthcheckReportsOK() {
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")
}
