package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per key.
type limiterPool struct {
	mu     sync.Mutex
	m      map[string]*rate.Limiter
	perMin int
	burst  int
}

func newLimiterPool(perMinute, burst int) *limiterPool {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 3
	}
	return &limiterPool{
		m:      make(map[string]*rate.Limiter),
		perMin: perMinute,
		burst:  burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(float64(p.perMin)/60), p.burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
