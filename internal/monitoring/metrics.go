package monitoring

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// responseSamples is how many recent request durations feed the percentiles
const responseSamples = 1000

// Metrics is the process-wide counter set shown on /metrics. All methods are
// safe for concurrent use.
type Metrics struct {
	startTime atomic.Int64 // unix nanoseconds

	// HTTP
	requests  atomic.Int64
	errors    atomic.Int64
	avgNanos  atomic.Int64
	byStatus  labelCounter[int]
	durations sampleRing

	// leaderboard cache
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	// JIRA
	jiraCalls   atomic.Int64
	apiRequests labelCounter[string]
	apiErrors   labelCounter[string]

	// ranking pipeline
	rankingRuns      atomic.Int64
	rankingFailures  atomic.Int64
	developersRanked atomic.Int64 // size of the latest ranking
	scoringFallbacks atomic.Int64
	extractionRuns   atomic.Int64
	extractionErrors atomic.Int64
	issuesExtracted  atomic.Int64
	lastRanking      atomic.Int64 // unix nanoseconds, 0 before the first success

	// rate limiting
	ipBlocks       atomic.Int64
	redisErrors    atomic.Int64
	fallbackCount  atomic.Int64
	endpointBlocks labelCounter[string]
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.startTime.Store(time.Now().UnixNano())
	return m
}

// labelCounter counts events per label
type labelCounter[K comparable] struct {
	mu     sync.RWMutex
	counts map[K]int64
}

func (c *labelCounter[K]) inc(label K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[K]int64)
	}
	c.counts[label]++
}

func (c *labelCounter[K]) get(label K) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[label]
}

func (c *labelCounter[K]) snapshot() map[K]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[K]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *labelCounter[K]) reset() {
	c.mu.Lock()
	c.counts = nil
	c.mu.Unlock()
}

// sampleRing keeps the most recent responseSamples durations
type sampleRing struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
}

func (r *sampleRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) < responseSamples {
		r.samples = append(r.samples, d)
		return
	}
	r.samples[r.next] = d
	r.next = (r.next + 1) % responseSamples
}

func (r *sampleRing) percentile(p float64) time.Duration {
	r.mu.RLock()
	sorted := slices.Clone(r.samples)
	r.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	idx := min(int(float64(len(sorted)-1)*p/100.0), len(sorted)-1)
	return sorted[idx]
}

func (r *sampleRing) reset() {
	r.mu.Lock()
	r.samples = nil
	r.next = 0
	r.mu.Unlock()
}

func (m *Metrics) IncrementRequest()   { m.requests.Add(1) }
func (m *Metrics) IncrementError()     { m.errors.Add(1) }
func (m *Metrics) IncrementCacheHit()  { m.cacheHits.Add(1) }
func (m *Metrics) IncrementCacheMiss() { m.cacheMisses.Add(1) }
func (m *Metrics) IncrementJiraCalls() { m.jiraCalls.Add(1) }

// IncrementScoringFallback counts a developer whose score fell back to zero
func (m *Metrics) IncrementScoringFallback() { m.scoringFallbacks.Add(1) }

// RecordRankingRun records a finished ranking run
func (m *Metrics) RecordRankingRun(developers int, err error) {
	m.rankingRuns.Add(1)
	if err != nil {
		m.rankingFailures.Add(1)
		return
	}
	m.developersRanked.Store(int64(developers))
	m.lastRanking.Store(time.Now().UnixNano())
}

// RecordExtraction records an extraction run
func (m *Metrics) RecordExtraction(issues, failedProjects int) {
	m.extractionRuns.Add(1)
	m.issuesExtracted.Add(int64(issues))
	m.extractionErrors.Add(int64(failedProjects))
}

// LastRankingTime returns when the last successful ranking finished
func (m *Metrics) LastRankingTime() (time.Time, bool) {
	ns := m.lastRanking.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// RecordResponseTime feeds the running average and the percentile samples
func (m *Metrics) RecordResponseTime(d time.Duration) {
	// exponential average with weight 1/2, matching what the dashboard has always shown
	for {
		cur := m.avgNanos.Load()
		next := d.Nanoseconds()
		if cur != 0 {
			next = (cur + next) / 2
		}
		if m.avgNanos.CompareAndSwap(cur, next) {
			break
		}
	}
	m.durations.add(d)
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.byStatus.inc(statusCode)
}

// RecordExternalAPIRequest records one call to an external API
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.apiRequests.inc(apiName)
	if !success {
		m.apiErrors.inc(apiName)
	}
}

// GetPercentileResponseTime returns the p-th percentile of recent response times
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	return m.durations.percentile(percentile)
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	return m.byStatus.snapshot()
}

// GetExternalAPIStats returns per-API request and error counts
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	stats := make(map[string]interface{})
	for api, requests := range m.apiRequests.snapshot() {
		failed := m.apiErrors.get(api)
		stats[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     failed,
			"error_rate": percent(failed, requests),
		}
	}
	return stats
}

func (m *Metrics) IncrementRateLimitIPBlock()    { m.ipBlocks.Add(1) }
func (m *Metrics) IncrementRateLimitRedisError() { m.redisErrors.Add(1) }
func (m *Metrics) IncrementRateLimitFallback()   { m.fallbackCount.Add(1) }
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.endpointBlocks.inc(endpoint)
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"ip_blocks":       m.ipBlocks.Load(),
		"redis_errors":    m.redisErrors.Load(),
		"fallback_count":  m.fallbackCount.Load(),
		"endpoint_blocks": m.endpointBlocks.snapshot(),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := m.requests.Load()
	failed := m.errors.Load()
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	started := time.Unix(0, m.startTime.Load())

	stats := map[string]interface{}{
		"uptime_seconds":         time.Since(started).Seconds(),
		"start_time":             started.Format(time.RFC3339),
		"total_requests":         requests,
		"error_count":            failed,
		"error_rate_percent":     percent(failed, requests),
		"cache_hits":             hits,
		"cache_misses":           misses,
		"cache_hit_rate_percent": percent(hits, hits+misses),
		"jira_api_calls":         m.jiraCalls.Load(),

		"avg_response_time_ms":     millis(time.Duration(m.avgNanos.Load())),
		"p50_response_time_ms":     millis(m.GetPercentileResponseTime(50)),
		"p95_response_time_ms":     millis(m.GetPercentileResponseTime(95)),
		"p99_response_time_ms":     millis(m.GetPercentileResponseTime(99)),
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),

		"ranking_runs":      m.rankingRuns.Load(),
		"ranking_failures":  m.rankingFailures.Load(),
		"developers_ranked": m.developersRanked.Load(),
		"scoring_fallbacks": m.scoringFallbacks.Load(),
		"extraction_runs":   m.extractionRuns.Load(),
		"extraction_errors": m.extractionErrors.Load(),
		"issues_extracted":  m.issuesExtracted.Load(),

		"rate_limit": m.GetRateLimitStats(),
	}
	if last, ok := m.LastRankingTime(); ok {
		stats["last_ranking_at"] = last.Format(time.RFC3339)
	}
	return stats
}

// Reset zeroes every counter and restarts the uptime clock
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.requests, &m.errors, &m.avgNanos,
		&m.cacheHits, &m.cacheMisses, &m.jiraCalls,
		&m.rankingRuns, &m.rankingFailures, &m.developersRanked, &m.scoringFallbacks,
		&m.extractionRuns, &m.extractionErrors, &m.issuesExtracted, &m.lastRanking,
		&m.ipBlocks, &m.redisErrors, &m.fallbackCount,
	} {
		c.Store(0)
	}
	m.byStatus.reset()
	m.apiRequests.reset()
	m.apiErrors.reset()
	m.endpointBlocks.reset()
	m.durations.reset()
	m.startTime.Store(time.Now().UnixNano())
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
