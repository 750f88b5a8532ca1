package dashboard

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter applies a token bucket per client host and evicts idle hosts
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byHost map[string]*bucket
	hits   uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil, which allows everything, when rps or burst
// is not positive.
func newClientLimiter(rps float64, burst int, idleTTL time.Duration) *clientLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &clientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byHost:  make(map[string]*bucket),
	}
}

// Allow consumes one token for host at now
func (l *clientLimiter) Allow(host string, now time.Time) bool {
	if l == nil {
		return true
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byHost[host]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byHost[host] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%256 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byHost {
			if v.lastSeen.Before(cutoff) {
				delete(l.byHost, k)
			}
		}
	}
	return allowed
}
