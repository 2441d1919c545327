package signal

import (
	"fmt"
	"sync"
	"time"

	"github.com/sharecast/relay/internal/config"
)

// Bucket is an independent rate-limit class. Each connection gets its own
// counters per bucket.
type Bucket string

const (
	BucketChat      Bucket = "chat"
	BucketSignaling Bucket = "signaling"
	BucketDefault   Bucket = "default"
)

// BucketFor classifies an inbound event on the room endpoint. The second
// return is false for event types the governor does not apply to at all.
func BucketFor(msgType string) (Bucket, bool) {
	switch msgType {
	case TypeChat:
		return BucketChat, true
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return BucketSignaling, true
	case TypeContentUpdate, TypeCursorUpdate:
		return BucketDefault, true
	default:
		return BucketDefault, false
	}
}

// DocBucketFor classifies an inbound event on the document endpoint, which
// routes a smaller set of types. A type the endpoint drops as unknown is
// never admitted against a budget.
func DocBucketFor(msgType string) (Bucket, bool) {
	switch msgType {
	case TypeContentUpdate, TypeCursorUpdate:
		return BucketDefault, true
	default:
		return BucketDefault, false
	}
}

type bucketCounters struct {
	stamps     []time.Time
	burstStart time.Time
	burstCount int
}

// Governor admits or rejects messages per connection and bucket. Two
// windows are composed: a sliding window over the configured horizon and an
// independent burst window on top. A message is admitted only when both
// have remaining capacity, and admitting consumes one unit from both.
// Counters die with the connection; there is no cross-session memory.
type Governor struct {
	mu     sync.Mutex
	limits map[Bucket]config.BucketLimits
	conns  map[string]map[Bucket]*bucketCounters
}

func NewGovernor(limits config.RateLimits) *Governor {
	return &Governor{
		limits: map[Bucket]config.BucketLimits{
			BucketChat:      limits.Chat,
			BucketSignaling: limits.Signaling,
			BucketDefault:   limits.Default,
		},
		conns: make(map[string]map[Bucket]*bucketCounters),
	}
}

// Admit returns false with a human-readable reason when either window is
// exhausted. The rejected message is dropped by the caller, never queued.
func (g *Governor) Admit(connID string, bucket Bucket) (bool, string) {
	return g.admitAt(connID, bucket, time.Now())
}

func (g *Governor) admitAt(connID string, bucket Bucket, now time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim := g.limits[bucket]
	buckets, ok := g.conns[connID]
	if !ok {
		buckets = make(map[Bucket]*bucketCounters)
		g.conns[connID] = buckets
	}
	c, ok := buckets[bucket]
	if !ok {
		c = &bucketCounters{burstStart: now}
		buckets[bucket] = c
	}

	windowStart := now.Add(-lim.Window)
	fresh := c.stamps[:0]
	for _, ts := range c.stamps {
		if ts.After(windowStart) {
			fresh = append(fresh, ts)
		}
	}
	c.stamps = fresh

	if len(c.stamps) >= lim.Limit {
		return false, fmt.Sprintf("Rate limit exceeded: max %d messages per %s", lim.Limit, lim.Window)
	}

	if now.Sub(c.burstStart) > lim.BurstWindow {
		c.burstStart = now
		c.burstCount = 0
	}
	if c.burstCount >= lim.BurstLimit {
		return false, fmt.Sprintf("Too many messages: max %d messages per %s", lim.BurstLimit, lim.BurstWindow)
	}

	c.stamps = append(c.stamps, now)
	c.burstCount++
	return true, ""
}

// Forget discards every counter for a connection. Called on disconnect.
func (g *Governor) Forget(connID string) {
	g.mu.Lock()
	delete(g.conns, connID)
	g.mu.Unlock()
}
