package leaderboard

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/cache"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
)

const (
	keyPrefix = "leaderboard:"
	keyLatest = keyPrefix + "latest"
)

// LeaderboardCache caches decoded dashboard snapshots
type LeaderboardCache struct {
	cache   *cache.Cache
	metrics *monitoring.Metrics
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(ttl time.Duration, metrics *monitoring.Metrics) *LeaderboardCache {
	return &LeaderboardCache{
		cache:   cache.NewCache(ttl),
		metrics: metrics,
	}
}

// GetSnapshot retrieves the cached latest snapshot
func (lc *LeaderboardCache) GetSnapshot() (*Snapshot, bool) {
	data, found := lc.cache.Get(keyLatest)
	if !found {
		lc.miss()
		return nil, false
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		slog.Error("Failed to unmarshal cached snapshot", "error", err, "key", keyLatest)
		lc.cache.Delete(keyLatest)
		lc.miss()
		return nil, false
	}

	lc.hit()
	slog.Debug("Leaderboard cache hit", "run_id", snapshot.RunID)
	return &snapshot, true
}

// SetSnapshot caches the latest snapshot
func (lc *LeaderboardCache) SetSnapshot(snapshot *Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal snapshot for cache", "error", err, "run_id", snapshot.RunID)
		return
	}

	lc.cache.Set(keyLatest, data)
	slog.Debug("Leaderboard cached", "run_id", snapshot.RunID, "rows", len(snapshot.Rows))
}

// InvalidateAll drops every leaderboard entry
func (lc *LeaderboardCache) InvalidateAll() {
	removed := lc.cache.DeletePrefix(keyPrefix)
	slog.Info("Leaderboard cache invalidated", "removed", removed)
}

// GetStats returns cache statistics
func (lc *LeaderboardCache) GetStats() map[string]interface{} {
	return lc.cache.Stats()
}

// Close stops the cache cleanup loop
func (lc *LeaderboardCache) Close() {
	lc.cache.Stop()
}

func (lc *LeaderboardCache) hit() {
	if lc.metrics != nil {
		lc.metrics.IncrementCacheHit()
	}
}

func (lc *LeaderboardCache) miss() {
	if lc.metrics != nil {
		lc.metrics.IncrementCacheMiss()
	}
}
