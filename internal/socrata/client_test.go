package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	cfg := config.Config{
		Socrata: config.SocrataConfig{
			BaseURL:        baseURL,
			AppToken:       "test-token",
			WindowDays:     90,
			PageLimit:      2,
			TimeoutSeconds: 5,
			CacheTTLSecs:   60,
			BreakerTrips:   2,
			BreakerResetS:  60,
		},
	}
	client := NewClient(cfg, nil, nil, zap.NewNop())
	client.baseWait = time.Millisecond
	client.maxWait = time.Millisecond
	return client
}

func recordsPage(n int, start int) []Record {
	page := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, Record{
			"bbl":            fmt.Sprintf("30123400%02d", start+i),
			"inspectiondate": "2025-01-02T00:00:00.000",
		})
	}
	return page
}

func TestFetchWindowPaginates(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "test-token", r.Header.Get("X-App-Token"))
		assert.Contains(t, r.URL.Path, DatasetHPDViolations.ID)
		assert.Contains(t, r.URL.Query().Get("$where"), "inspectiondate >=")

		switch r.URL.Query().Get("$offset") {
		case "":
			_ = json.NewEncoder(w).Encode(recordsPage(2, 0))
		case "2":
			_ = json.NewEncoder(w).Encode(recordsPage(1, 2))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("$offset"))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	records, err := client.FetchWindow(context.Background(), DatasetHPDViolations, since)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, "3012340000", records[0].Field("bbl"))
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(recordsPage(1, 0))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	records, err := client.FetchProperty(context.Background(), DatasetHPDViolations, "3012340000", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.FetchProperty(context.Background(), DatasetDOBViolations, "3012340000", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchMapsUpstreamThrottling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.FetchProperty(context.Background(), Dataset311Complaints, "3012340000", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	// Two full fetch calls trip the breaker (BreakerTrips: 2 means two
	// exhausted retry sequences).
	_, err := client.FetchProperty(ctx, DatasetHPDViolations, "3012340001", nil)
	require.Error(t, err)
	_, err = client.FetchProperty(ctx, DatasetHPDViolations, "3012340002", nil)
	require.Error(t, err)

	before := requests.Load()
	_, err = client.FetchProperty(ctx, DatasetHPDViolations, "3012340003", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, before, requests.Load(), "open breaker must not reach upstream")
}

func TestFetchServesFromMemoryCache(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_ = json.NewEncoder(w).Encode(recordsPage(1, 0))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	first, err := client.FetchProperty(ctx, DatasetHPDViolations, "3012340000", nil)
	require.NoError(t, err)
	second, err := client.FetchProperty(ctx, DatasetHPDViolations, "3012340000", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), requests.Load(), "second fetch must come from cache")
}

func TestRecordFieldHandlesMissingAndNonScalar(t *testing.T) {
	record := Record{
		"bbl":      " 3012340056 ",
		"location": map[string]any{"latitude": "40.7"},
	}
	assert.Equal(t, "3012340056", record.Field("bbl"))
	assert.Equal(t, "", record.Field("location"))
	assert.Equal(t, "", record.Field("absent"))
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	br := newBreaker(2, time.Minute)
	now := time.Now()

	assert.True(t, br.allow(now))
	assert.False(t, br.failure(now))
	assert.True(t, br.failure(now), "second failure trips the breaker")
	assert.False(t, br.allow(now))

	// After the cooldown one probe goes through; a probe failure reopens
	// immediately, a probe success closes.
	later := now.Add(2 * time.Minute)
	assert.True(t, br.allow(later))
	assert.True(t, br.failure(later), "probe failure reopens")
	assert.False(t, br.allow(later))

	afterReopen := later.Add(2 * time.Minute)
	assert.True(t, br.allow(afterReopen))
	br.success()
	assert.True(t, br.allow(afterReopen))
}

func TestPaceWithoutBucketIsNoop(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	err := client.pace(context.Background(), DatasetHPDViolations.ID)
	assert.NoError(t, err)
}

func TestQueryValues(t *testing.T) {
	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	values := NewQuery().
		BBL("bbl", "3012340056").
		Since("created_date", since).
		Order("created_date DESC").
		Limit(100).
		Offset(200).
		Values()

	assert.Equal(t, "bbl = '3012340056' AND created_date >= '2025-05-01T00:00:00'", values.Get("$where"))
	assert.Equal(t, "created_date DESC", values.Get("$order"))
	assert.Equal(t, "100", values.Get("$limit"))
	assert.Equal(t, "200", values.Get("$offset"))
}

func TestQuerySanitizesLiterals(t *testing.T) {
	values := NewQuery().BBL("bbl", "30123'; DROP--").Values()
	assert.Equal(t, "bbl = '30123 DROP--'", values.Get("$where"))
}

func TestSourceErrorsAreDistinguishable(t *testing.T) {
	wrapped := fmt.Errorf("%w: circuit open for x", ErrSourceUnavailable)
	assert.True(t, errors.Is(wrapped, ErrSourceUnavailable))
	assert.False(t, errors.Is(wrapped, ErrRateLimited))
}
