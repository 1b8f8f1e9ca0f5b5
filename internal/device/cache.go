package device

import (
	"sync"
	"time"

	"github.com/printforge/printctl/internal/protocol"
)

// CacheInfo is the freshness metadata returned with a cached status read.
type CacheInfo struct {
	HasData  bool
	MergedAt time.Time
	Age      time.Duration
}

// statusCache holds the merged device status. Single writer (the session
// merge loop); readers always receive deep copies.
type statusCache struct {
	mu       sync.RWMutex
	status   protocol.Status
	mergedAt time.Time
	has      bool
}

func newStatusCache() *statusCache {
	return &statusCache{}
}

func (c *statusCache) merge(in protocol.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Merge(in)
	c.mergedAt = time.Now()
	c.has = true
}

func (c *statusCache) snapshot() (protocol.Status, CacheInfo) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := CacheInfo{HasData: c.has, MergedAt: c.mergedAt}
	if c.has {
		info.Age = time.Since(c.mergedAt)
	}
	return c.status.Clone(), info
}

// clear drops all cached state. Done on disconnect and on reconnect: a
// restored transport says nothing about how stale the old view is.
func (c *statusCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = protocol.Status{}
	c.mergedAt = time.Time{}
	c.has = false
}
