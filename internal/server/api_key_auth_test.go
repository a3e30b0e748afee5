package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apikeydomain "github.com/smallbiznis/sentinel/internal/apikey/domain"
	"github.com/smallbiznis/sentinel/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRequiredRejectsMissingHeader(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/reference/boroughs", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", decodeError(t, resp).Type)
	assert.Empty(t, ts.apiKeys.rawKeys, "no credential should reach the service")
}

func TestAPIKeyRequiredRejectsNonBearerScheme(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/reference/boroughs", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0")
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, ts.apiKeys.rawKeys)
}

func TestAPIKeyRequiredRejectsUnknownKey(t *testing.T) {
	ts := newTestServer(t)
	ts.apiKeys.authErr = apikeydomain.ErrInvalidKey

	resp := ts.do(http.MethodGet, "/v1/reference/boroughs", "")

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", decodeError(t, resp).Code)
}

func TestAPIKeyRequiredPassesRawBearerToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/v1/reference/boroughs", "")

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, ts.apiKeys.rawKeys, 1)
	assert.Equal(t, "sk_live_key_test_secret", ts.apiKeys.rawKeys[0])
}

func TestAdminRoutesForbidReadOnlyKeys(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/v1/admin/runs", "")

	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "forbidden", decodeError(t, resp).Type)
	assert.Empty(t, ts.risk.listReqs, "handler should not run without admin scope")
}

func TestAdminRoutesAllowAdminKeys(t *testing.T) {
	ts := newTestServer(t)
	ts.adminIdentity()

	resp := ts.do(http.MethodGet, "/v1/admin/runs", "")

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, ts.risk.listReqs, 1)
}

func TestRateLimitSkippedWhenLimiterDisabled(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.limiter = &fakeLimiter{enabled: false}

	resp := ts.do(http.MethodGet, "/v1/reference/boroughs", "")

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRateLimitDeniesOverKeyBudget(t *testing.T) {
	ts := newTestServer(t)
	limiter := &fakeLimiter{
		enabled: true,
		keyResult: &ratelimit.RateLimitResult{
			Allowed:    false,
			Limit:      10,
			Remaining:  0,
			ResetTime:  time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC),
			RetryAfter: 30 * time.Second,
		},
	}
	ts.srv.limiter = limiter

	resp := ts.do(http.MethodGet, "/v1/reference/boroughs", "")

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "rate_limited", decodeError(t, resp).Code)
	assert.Equal(t, "30", resp.Header().Get("Retry-After"))
	assert.Equal(t, rateLimitReasonKeyRate, resp.Header().Get("X-Rate-Limited-Reason"))
	assert.Equal(t, "10", resp.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, []string{"key_TEST"}, limiter.keyIDs)
	assert.Empty(t, limiter.endpoints, "endpoint budget is not consulted after a key denial")
}

func TestRateLimitDeniesOverEndpointBudget(t *testing.T) {
	ts := newTestServer(t)
	limiter := &fakeLimiter{
		enabled:   true,
		keyResult: &ratelimit.RateLimitResult{Allowed: true, Limit: 10, Remaining: 9},
		endResult: &ratelimit.RateLimitResult{Allowed: false, Limit: 100, RetryAfter: time.Second},
	}
	ts.srv.limiter = limiter

	resp := ts.do(http.MethodGet, "/v1/rankings", "")

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, rateLimitReasonEndpointRate, resp.Header().Get("X-Rate-Limited-Reason"))
	assert.Equal(t, []string{"/v1/rankings"}, limiter.endpoints, "budget key must be the route pattern")
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.limiter = &fakeLimiter{enabled: true, allowedByDef: true}

	resp := ts.do(http.MethodGet, "/v1/reference/boroughs", "")

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRateLimitFailsClosedOnLimiterError(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.limiter = &fakeLimiter{enabled: true, keyErr: assert.AnError}

	resp := ts.do(http.MethodGet, "/v1/reference/boroughs", "")

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "service_unavailable", decodeError(t, resp).Type)
}
