package authapi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginLimiter keeps one token bucket per client key.
type LoginLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLoginLimiter builds a limiter allowing perMinute attempts with the given burst.
// Call Start to run the idle eviction loop and Stop to end it.
func NewLoginLimiter(perMinute float64, burst int, idleTTL time.Duration) *LoginLimiter {
	return &LoginLimiter{
		limit:   rate.Limit(perMinute / 60.0),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}
}

// Allow consumes one token for key. When denied it returns the suggested wait.
func (l *LoginLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = now
	allowed := cl.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if allowed {
		return true, 0
	}
	return false, l.retryAfter()
}

// Len reports the number of tracked clients.
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Start runs eviction every idleTTL until Stop is called.
func (l *LoginLimiter) Start() {
	go func() {
		ticker := time.NewTicker(l.idleTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.evictIdle()
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop ends the eviction loop. Safe to call more than once.
func (l *LoginLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *LoginLimiter) evictIdle() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, cl := range l.clients {
		if now.Sub(cl.lastAccess) > l.idleTTL {
			delete(l.clients, key)
		}
	}
}

// retryAfter is the time to refill one token, at least one second.
func (l *LoginLimiter) retryAfter() time.Duration {
	secs := math.Ceil(1.0 / float64(l.limit))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	WriteError(w, http.StatusTooManyRequests, KindRateLimited, nil)
}
