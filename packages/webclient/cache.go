package webclient

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type cacheKey struct {
	host string
	port int
}

type idleQueue struct {
	mu      sync.Mutex
	sockets []Socket
}

func (q *idleQueue) pop() Socket {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.sockets) == 0 {
		return nil
	}
	s := q.sockets[0]
	q.sockets[0] = nil
	q.sockets = q.sockets[1:]
	return s
}

// ConnectionCache keeps idle keep-alive sockets per (host, port). Expired or
// dead sockets are only evicted when Acquire walks past them, or by an
// explicit Prune.
type ConnectionCache struct {
	queues         sync.Map // cacheKey -> *idleQueue
	maxIdlePerHost int
	logger         *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	releases  atomic.Int64
	evictions atomic.Int64
}

// CacheStats is a snapshot of the cache counters
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Releases  int64 `json:"releases"`
	Evictions int64 `json:"evictions"`
	Idle      int   `json:"idle"`
}

// NewConnectionCache creates an empty cache. maxIdlePerHost <= 0 leaves the
// per-key queue depth unbounded.
func NewConnectionCache(maxIdlePerHost int, logger *zap.Logger) *ConnectionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionCache{maxIdlePerHost: maxIdlePerHost, logger: logger}
}

func (c *ConnectionCache) queue(key cacheKey, create bool) *idleQueue {
	if q, ok := c.queues.Load(key); ok {
		return q.(*idleQueue)
	}
	if !create {
		return nil
	}
	q, _ := c.queues.LoadOrStore(key, &idleQueue{})
	return q.(*idleQueue)
}

// Acquire hands out an idle socket for host:port, or nil when none is usable.
// Candidates that expired, lost their connection or have unread bytes are
// closed on the way.
func (c *ConnectionCache) Acquire(host string, port int, timeout time.Duration) Socket {
	if q := c.queue(cacheKey{host, port}, false); q != nil {
		for s := q.pop(); s != nil; s = q.pop() {
			if !s.KeepAliveExpired() && s.Connected() && s.Available() == 0 {
				s.ResetKeepAlive()
				s.SetTimeout(timeout)
				c.hits.Add(1)
				return s
			}
			c.evict(s, "stale idle connection")
		}
	}
	c.misses.Add(1)
	return nil
}

// Release queues a connected socket for reuse and closes anything else.
func (c *ConnectionCache) Release(s Socket) {
	if !s.Connected() {
		_ = s.Close()
		return
	}

	q := c.queue(cacheKey{s.Hostname(), s.Port()}, true)

	var overflow Socket
	q.mu.Lock()
	q.sockets = append(q.sockets, s)
	if c.maxIdlePerHost > 0 && len(q.sockets) > c.maxIdlePerHost {
		overflow = q.sockets[0]
		q.sockets[0] = nil
		q.sockets = q.sockets[1:]
	}
	q.mu.Unlock()

	c.releases.Add(1)
	c.logger.Debug("connection released to cache",
		zap.String("host", s.Hostname()), zap.Int("port", s.Port()))

	if overflow != nil {
		c.evict(overflow, "idle queue full")
	}
}

// Prune closes every idle socket whose keep-alive expired or whose peer went
// away, and returns how many were closed.
func (c *ConnectionCache) Prune() int {
	pruned := 0
	c.queues.Range(func(_, v any) bool {
		q := v.(*idleQueue)

		var dead []Socket
		q.mu.Lock()
		live := q.sockets[:0]
		for _, s := range q.sockets {
			if s.KeepAliveExpired() || !s.Connected() {
				dead = append(dead, s)
			} else {
				live = append(live, s)
			}
		}
		for i := len(live); i < len(q.sockets); i++ {
			q.sockets[i] = nil
		}
		q.sockets = live
		q.mu.Unlock()

		for _, s := range dead {
			c.evict(s, "pruned")
		}
		pruned += len(dead)
		return true
	})
	return pruned
}

// CloseIdle closes and forgets every idle socket
func (c *ConnectionCache) CloseIdle() {
	c.queues.Range(func(_, v any) bool {
		q := v.(*idleQueue)
		q.mu.Lock()
		sockets := q.sockets
		q.sockets = nil
		q.mu.Unlock()
		for _, s := range sockets {
			_ = s.Close()
		}
		return true
	})
}

// Len returns the number of idle sockets queued for host:port
func (c *ConnectionCache) Len(host string, port int) int {
	q := c.queue(cacheKey{host, port}, false)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sockets)
}

// Stats returns the cache counters and the total idle socket count
func (c *ConnectionCache) Stats() CacheStats {
	idle := 0
	c.queues.Range(func(_, v any) bool {
		q := v.(*idleQueue)
		q.mu.Lock()
		idle += len(q.sockets)
		q.mu.Unlock()
		return true
	})
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Releases:  c.releases.Load(),
		Evictions: c.evictions.Load(),
		Idle:      idle,
	}
}

func (c *ConnectionCache) evict(s Socket, reason string) {
	c.evictions.Add(1)
	c.logger.Debug("closing cached connection",
		zap.String("host", s.Hostname()), zap.Int("port", s.Port()), zap.String("reason", reason))
	_ = s.Close()
}
