package pd

import (
	"net"
	"sync"
	"time"
)

// ifCache caches network interface index-to-name mappings so the receive
// path doesn't pay for a net.InterfaceByIndex syscall on every datagram.
type ifCache struct {
	mu        sync.RWMutex
	byIndex   map[int]string
	updatedAt time.Time
	ttl       time.Duration
}

func newIfCache(ttl time.Duration) *ifCache {
	return &ifCache{ttl: ttl}
}

var defaultIfCache = newIfCache(30 * time.Second)

func (c *ifCache) refresh() {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}
	byIndex := make(map[int]string, len(ifaces))
	for _, ifi := range ifaces {
		byIndex[ifi.Index] = ifi.Name
	}
	c.mu.Lock()
	c.byIndex = byIndex
	c.updatedAt = time.Now()
	c.mu.Unlock()
}

func (c *ifCache) maybeRefresh() {
	c.mu.RLock()
	stale := time.Since(c.updatedAt) > c.ttl
	c.mu.RUnlock()
	if stale {
		c.refresh()
	}
}

// NameByIndex returns the interface name for idx, forcing a refresh on
// a cache miss in case a new interface appeared since the last refresh.
func (c *ifCache) NameByIndex(idx int) string {
	c.maybeRefresh()
	c.mu.RLock()
	name, ok := c.byIndex[idx]
	c.mu.RUnlock()
	if ok {
		return name
	}
	c.refresh()
	c.mu.RLock()
	name = c.byIndex[idx]
	c.mu.RUnlock()
	return name
}
