// Package suppress gates alert candidates behind a per-key cooldown and an
// hourly delivery budget so noisy signals do not flood the channels.
package suppress

import (
	"sync"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
)

const hourBucketLayout = "2006-01-02-15"

// Config holds the suppression limits.
type Config struct {
	CooldownMinutes  int
	MaxAlertsPerHour int
}

// Tracker is the one piece of shared mutable state in the pipeline: the
// last-sent time per alert key and the delivered count per wall-clock hour.
// All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	maxHour  int
	lastSent map[string]time.Time
	hourly   map[string]int
	inflight map[string]struct{}

	now func() time.Time
}

// New creates a tracker. Zero config fields fall back to a 30 minute
// cooldown and 10 alerts per hour.
func New(cfg Config) *Tracker {
	if cfg.CooldownMinutes <= 0 {
		cfg.CooldownMinutes = 30
	}
	if cfg.MaxAlertsPerHour <= 0 {
		cfg.MaxAlertsPerHour = 10
	}
	return &Tracker{
		cooldown: time.Duration(cfg.CooldownMinutes) * time.Minute,
		maxHour:  cfg.MaxAlertsPerHour,
		lastSent: make(map[string]time.Time),
		hourly:   make(map[string]int),
		inflight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// ShouldSend reports whether the candidate passes the cooldown and hourly
// rate limit right now. It never mutates tracker state; only Record (after a
// confirmed delivery) consumes budget.
func (t *Tracker) ShouldSend(a model.Alert) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldSendLocked(a.Key(), t.now())
}

// Record marks the candidate as delivered now: it stamps the last-sent time
// for its key and increments the current hour bucket.
func (t *Tracker) Record(a model.Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(a.Key(), t.now())
}

// Begin atomically runs the ShouldSend check and reserves the alert key for
// dispatch. While a key is reserved, Begin for the same key returns false,
// so two concurrent candidates can never both pass the gate. Every
// successful Begin must be paired with End.
func (t *Tracker) Begin(a model.Alert) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := a.Key()
	if _, busy := t.inflight[key]; busy {
		return false
	}
	if !t.shouldSendLocked(key, t.now()) {
		return false
	}
	t.inflight[key] = struct{}{}
	return true
}

// End releases the reservation taken by Begin. Only a delivered outcome
// consumes cooldown and rate-limit budget; failed sends leave the key
// immediately eligible again.
func (t *Tracker) End(a model.Alert, delivered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := a.Key()
	delete(t.inflight, key)
	if delivered {
		t.recordLocked(key, t.now())
	}
}

func (t *Tracker) shouldSendLocked(key string, now time.Time) bool {
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	if t.hourly[now.Format(hourBucketLayout)] >= t.maxHour {
		return false
	}
	return true
}

func (t *Tracker) recordLocked(key string, now time.Time) {
	t.lastSent[key] = now
	bucket := now.Format(hourBucketLayout)
	t.hourly[bucket]++

	// Stale buckets can never be consulted again.
	for k := range t.hourly {
		if k != bucket {
			delete(t.hourly, k)
		}
	}
}
