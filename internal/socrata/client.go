package socrata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/sentinel/internal/cache"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	appTokenHeader = "X-App-Token"
	maxAttempts    = 3
	retryBaseWait  = time.Second
	retryMaxWait   = 10 * time.Second
	redisCacheTTL  = time.Hour
	paceKeyPrefix  = "socrata:dataset:%s"
)

var (
	fetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_socrata_requests_total",
		Help: "Upstream SODA requests by dataset and outcome.",
	}, []string{"dataset", "status"})
	fetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_socrata_request_duration_seconds",
		Help:    "Upstream SODA request latency by dataset.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"dataset"})
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_socrata_cache_hits_total",
		Help: "SODA response cache hits by layer.",
	}, []string{"layer"})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_socrata_cache_misses_total",
		Help: "SODA response cache misses across all layers.",
	})
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinel_socrata_breaker_open",
		Help: "Circuit breaker state per dataset (1 = open).",
	}, []string{"dataset"})
)

// breaker opens after a run of consecutive failures and lets one probe
// through after the cooldown.
type breaker struct {
	mu        sync.Mutex
	failures  int
	trips     int
	reset     time.Duration
	openUntil time.Time
}

func newBreaker(trips int, reset time.Duration) *breaker {
	if trips <= 0 {
		trips = 5
	}
	if reset <= 0 {
		reset = time.Minute
	}
	return &breaker{trips: trips, reset: reset}
}

func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return true
	}
	if now.Before(b.openUntil) {
		return false
	}
	// Half-open: admit one probe, stay primed to reopen on failure.
	b.openUntil = time.Time{}
	b.failures = b.trips - 1
	return true
}

func (b *breaker) success() {
	b.mu.Lock()
	b.failures = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()
}

func (b *breaker) failure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.trips {
		b.openUntil = now.Add(b.reset)
		return true
	}
	return false
}

// Client fetches NYC Open Data resources with pacing, retries, a circuit
// breaker per dataset and a two-layer response cache. The Redis layer
// holds responses longer than the in-memory layer so a source outage can
// be bridged with slightly stale data.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appToken   string
	pageLimit  int
	windowDays int

	ratePerSec float64
	rateBurst  int
	bucket     *ratelimit.TokenBucket
	redis      *redis.Client
	memory     cache.Cache[string, []Record]
	memoryTTL  time.Duration

	mu       sync.Mutex
	breakers map[string]*breaker
	trips    int
	reset    time.Duration

	baseWait time.Duration
	maxWait  time.Duration

	log *zap.Logger
}

func NewClient(cfg config.Config, bucket *ratelimit.TokenBucket, redisClient *redis.Client, log *zap.Logger) *Client {
	sc := cfg.Socrata
	timeout := time.Duration(sc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	memoryTTL := time.Duration(sc.CacheTTLSecs) * time.Second
	if memoryTTL <= 0 {
		memoryTTL = 5 * time.Minute
	}
	pageLimit := sc.PageLimit
	if pageLimit <= 0 {
		pageLimit = 1000
	}
	windowDays := sc.WindowDays
	if windowDays <= 0 {
		windowDays = 90
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(sc.BaseURL, "/"),
		appToken:   sc.AppToken,
		pageLimit:  pageLimit,
		windowDays: windowDays,
		ratePerSec: float64(sc.RatePerMinute) / 60,
		rateBurst:  int(sc.RateBurst),
		bucket:     bucket,
		redis:      redisClient,
		memory:     cache.NewTTLCache[string, []Record](),
		memoryTTL:  memoryTTL,
		breakers:   map[string]*breaker{},
		trips:      sc.BreakerTrips,
		reset:      time.Duration(sc.BreakerResetS) * time.Second,
		baseWait:   retryBaseWait,
		maxWait:    retryMaxWait,
		log:        log.Named("socrata"),
	}
}

// WindowDays reports the configured history window for full fetches.
func (c *Client) WindowDays() int {
	return c.windowDays
}

// FetchWindow pages through one dataset restricted to records at or
// after since, ordered oldest first so pagination is stable while the
// feed grows.
func (c *Client) FetchWindow(ctx context.Context, ds Dataset, since time.Time) ([]Record, error) {
	var all []Record
	offset := 0
	for {
		query := NewQuery().
			Since(ds.DateField, since).
			Order(ds.DateField + " ASC").
			Limit(c.pageLimit).
			Offset(offset)

		page, err := c.fetch(ctx, ds, query, offset == 0)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.pageLimit {
			return all, nil
		}
		offset += c.pageLimit
	}
}

// FetchProperty returns one property's records from a dataset, newest
// first, optionally restricted to a window.
func (c *Client) FetchProperty(ctx context.Context, ds Dataset, bbl string, since *time.Time) ([]Record, error) {
	query := NewQuery().
		BBL(ds.BBLField, bbl).
		Order(ds.DateField + " DESC").
		Limit(c.pageLimit)
	if since != nil {
		query = query.Since(ds.DateField, *since)
	}
	return c.fetch(ctx, ds, query, true)
}

func (c *Client) fetch(ctx context.Context, ds Dataset, query *Query, useCache bool) ([]Record, error) {
	params := query.Values()
	key := cacheKey(ds.ID, params)

	if useCache {
		if records, ok := c.fromCache(ctx, key); ok {
			return records, nil
		}
	}

	records, err := c.request(ctx, ds, params)
	if err != nil {
		return nil, err
	}

	if useCache {
		c.toCache(ctx, key, records)
	}
	return records, nil
}

func (c *Client) request(ctx context.Context, ds Dataset, params url.Values) ([]Record, error) {
	br := c.breakerFor(ds.ID)
	if !br.allow(time.Now()) {
		breakerState.WithLabelValues(ds.ID).Set(1)
		fetchRequests.WithLabelValues(ds.ID, "breaker_open").Inc()
		return nil, fmt.Errorf("%w: circuit open for %s", ErrSourceUnavailable, ds.ID)
	}

	if err := c.pace(ctx, ds.ID); err != nil {
		fetchRequests.WithLabelValues(ds.ID, "rate_limited").Inc()
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/resource/%s.json?%s", c.baseURL, ds.ID, params.Encode())

	var lastErr error
	wait := c.baseWait
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		records, retryable, err := c.do(ctx, ds, endpoint)
		if err == nil {
			br.success()
			breakerState.WithLabelValues(ds.ID).Set(0)
			return records, nil
		}
		lastErr = err
		if !retryable || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > c.maxWait {
			wait = c.maxWait
		}
	}

	if br.failure(time.Now()) {
		breakerState.WithLabelValues(ds.ID).Set(1)
		c.log.Warn("circuit opened",
			zap.String("dataset", ds.ID),
			zap.Error(lastErr),
		)
	}
	if errors.Is(lastErr, ErrRateLimited) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, lastErr)
}

// do performs a single HTTP attempt. The bool reports retryability.
func (c *Client) do(ctx context.Context, ds Dataset, endpoint string) ([]Record, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set(appTokenHeader, c.appToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	fetchLatency.WithLabelValues(ds.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		fetchRequests.WithLabelValues(ds.ID, "transport_error").Inc()
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var records []Record
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			fetchRequests.WithLabelValues(ds.ID, "decode_error").Inc()
			return nil, false, fmt.Errorf("decode %s response: %w", ds.ID, err)
		}
		fetchRequests.WithLabelValues(ds.ID, "success").Inc()
		return records, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		fetchRequests.WithLabelValues(ds.ID, "throttled").Inc()
		return nil, true, fmt.Errorf("%w: upstream 429 for %s", ErrRateLimited, ds.ID)
	case resp.StatusCode >= http.StatusInternalServerError:
		fetchRequests.WithLabelValues(ds.ID, "server_error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, true, fmt.Errorf("upstream %d for %s: %s", resp.StatusCode, ds.ID, string(body))
	default:
		fetchRequests.WithLabelValues(ds.ID, "client_error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, false, fmt.Errorf("upstream %d for %s: %s", resp.StatusCode, ds.ID, string(body))
	}
}

// pace admits one outbound call through the shared token bucket. Without
// Redis the client runs unpaced; upstream 429 handling still applies.
func (c *Client) pace(ctx context.Context, datasetID string) error {
	if c.bucket == nil || c.ratePerSec <= 0 || c.rateBurst <= 0 {
		return nil
	}
	result, err := c.bucket.Allow(ctx, fmt.Sprintf(paceKeyPrefix, datasetID), c.ratePerSec, c.rateBurst)
	if err != nil {
		c.log.Warn("pacing check failed, proceeding", zap.Error(err))
		return nil
	}
	if !result.Allowed {
		return fmt.Errorf("%w: local pacing for %s, retry in %s", ErrRateLimited, datasetID, result.RetryAfter)
	}
	return nil
}

func (c *Client) breakerFor(datasetID string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[datasetID]
	if !ok {
		br = newBreaker(c.trips, c.reset)
		c.breakers[datasetID] = br
	}
	return br
}

func (c *Client) fromCache(ctx context.Context, key string) ([]Record, bool) {
	if records, ok := c.memory.Get(key); ok {
		cacheHits.WithLabelValues("memory").Inc()
		return records, true
	}

	if c.redis != nil {
		payload, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var records []Record
			if err := json.Unmarshal(payload, &records); err == nil {
				cacheHits.WithLabelValues("redis").Inc()
				c.memory.Set(key, records, c.memoryTTL)
				return records, true
			}
		} else if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache read failed", zap.Error(err))
		}
	}

	cacheMisses.Inc()
	return nil, false
}

func (c *Client) toCache(ctx context.Context, key string, records []Record) {
	c.memory.Set(key, records, c.memoryTTL)

	if c.redis != nil {
		payload, err := json.Marshal(records)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, key, payload, redisCacheTTL).Err(); err != nil {
			c.log.Warn("redis cache write failed", zap.Error(err))
		}
	}
}

func cacheKey(datasetID string, params url.Values) string {
	sum := sha256.Sum256([]byte(datasetID + ":" + params.Encode()))
	return "socrata:response:" + hex.EncodeToString(sum[:])
}
