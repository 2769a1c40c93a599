package remote

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPermitsPerHost bounds simultaneous connections to any single
// remote server, independent of job-level concurrency ceilings.
const DefaultPermitsPerHost = 2

// HostLimiter hands out per-hostname semaphores with a fixed permit
// count. The same limiter instance is shared by every adapter call so
// that one slow server cannot be hammered from multiple jobs at once.
type HostLimiter struct {
	mu      sync.Mutex
	permits int64
	hosts   map[string]*semaphore.Weighted
}

// NewHostLimiter creates a limiter granting permits concurrent holds
// per hostname.
func NewHostLimiter(permits int64) *HostLimiter {
	if permits < 1 {
		permits = DefaultPermitsPerHost
	}
	return &HostLimiter{
		permits: permits,
		hosts:   make(map[string]*semaphore.Weighted),
	}
}

// Acquire blocks until a permit for host is available or ctx is done.
// The returned release function must be called exactly once. An empty
// host acquires nothing and returns a no-op release.
func (l *HostLimiter) Acquire(ctx context.Context, host string) (func(), error) {
	key := strings.ToLower(strings.TrimSpace(host))
	if key == "" {
		return func() {}, nil
	}

	l.mu.Lock()
	sem, ok := l.hosts[key]
	if !ok {
		sem = semaphore.NewWeighted(l.permits)
		l.hosts[key] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
