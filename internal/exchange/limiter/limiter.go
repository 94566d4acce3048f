// Package limiter governs REST request admission per exchange. Exchanges
// report authoritative used-weight per rolling window, so the bucket is
// re-anchored from response headers instead of being purely simulated;
// otherwise local accounting drifts from the server and ends in bans.
package limiter

import (
	"net/http"
	"time"
)

// BufferPct is the safety margin held back from the configured limit.
const BufferPct = 0.03

// EffectiveLimit reduces a configured request-weight limit by the safety
// buffer.
func EffectiveLimit(limit int) int {
	return int(float64(limit) * (1 - BufferPct))
}

// RateLimiter admits REST requests for one exchange.
type RateLimiter interface {
	// PrepareRequest reserves weight and returns how long the caller must
	// wait before issuing the request. Zero means proceed immediately.
	PrepareRequest(weight int) time.Duration
	// UpdateFromResponse reconciles local accounting against the server's
	// authoritative usage report.
	UpdateFromResponse(resp *http.Response, weight int)
	// ShouldExitOnResponse reports a hard stop (429/418) that requires
	// backoff beyond normal bucket semantics.
	ShouldExitOnResponse(resp *http.Response) bool
}

// DynamicBucket is a token bucket over a rolling refill window whose usage
// can be overwritten with server-reported weight.
type DynamicBucket struct {
	capacity    int
	refill      time.Duration
	used        int
	windowStart time.Time
	now         func() time.Time
}

func NewDynamicBucket(capacity int, refill time.Duration) *DynamicBucket {
	return &DynamicBucket{capacity: capacity, refill: refill, now: time.Now}
}

// PrepareRequest reserves weight against the current window. When the request
// would exceed capacity it returns the time left until the window refills and
// reserves nothing.
func (b *DynamicBucket) PrepareRequest(weight int) time.Duration {
	b.rotate()
	if b.used+weight > b.capacity {
		return b.refill - b.now().Sub(b.windowStart)
	}
	b.used += weight
	return 0
}

// UpdateUsed overwrites local accounting with the server-reported used
// weight.
func (b *DynamicBucket) UpdateUsed(serverUsed int) {
	b.rotate()
	if serverUsed < 0 {
		serverUsed = 0
	}
	b.used = serverUsed
}

func (b *DynamicBucket) rotate() {
	now := b.now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.refill {
		b.windowStart = now
		b.used = 0
	}
}
