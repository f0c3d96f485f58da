// Package cache holds short-lived, shop-scoped response data.
//
// Keys are built with Key so that every entry of a shop shares the
// "<shopID>:" prefix and can be dropped at once with DeletePrefix.
package cache

import (
	"log/slog"
	"strings"
	"time"
)

// Cache is the shop-scoped response cache used by the services.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// DeletePrefix removes every key starting with prefix and returns how many were dropped.
	DeletePrefix(prefix string) int
	// Generation and SetIfGeneration let a slow computation skip storing its
	// result when the prefix was cleared while it ran.
	Generation(prefix string) uint64
	SetIfGeneration(key string, data T, prefix string, gen uint64) bool
	Size() int
}

// Key joins a shop ID and key parts into a cache key.
func Key(shopID string, parts ...string) string {
	return ShopPrefix(shopID) + strings.Join(parts, ":")
}

// ShopPrefix returns the prefix shared by all keys of a shop.
func ShopPrefix(shopID string) string {
	return shopID + ":"
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic cleanup of registered caches.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register must be called before StartCleanup.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := 0
			for _, c := range m.caches {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				slog.Debug("Cache cleanup", "removed", cleaned)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop ends the cleanup goroutine and waits for it.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	close(m.stopCleanup)
	<-m.cleanupDone
	m.started = false
}
