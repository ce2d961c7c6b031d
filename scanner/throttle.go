package scanner

import (
	"context"
	"math"
	"sync"
	"time"
)

// Throttle is an adaptive rate gate shared by every worker of one
// scan. It enforces a minimum spacing between outbound recognition
// calls, freezes all calls for a cooldown when the service signals
// overload, and slowly relaxes back to the base spacing after
// sustained success. All methods are safe for concurrent use; no
// method sleeps while holding the lock.
type Throttle struct {
	mu                  sync.Mutex
	nextAllowed         time.Time
	freezeUntil         time.Time
	baseInterval        time.Duration
	minInterval         time.Duration
	rateLimitHits       int
	successesSinceLimit int

	now func() time.Time
}

// NewThrottle builds a throttle with the given base interval between
// calls. The interval is clamped to [0, 60s].
func NewThrottle(baseInterval time.Duration) *Throttle {
	if baseInterval < 0 {
		baseInterval = 0
	}
	if baseInterval > 60*time.Second {
		baseInterval = 60 * time.Second
	}
	return &Throttle{
		baseInterval: baseInterval,
		minInterval:  baseInterval,
		now:          time.Now,
	}
}

func (t *Throttle) remainingWait() time.Duration {
	now := t.now()
	wait := t.freezeUntil.Sub(now)
	if w := t.nextAllowed.Sub(now); w > wait {
		wait = w
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// PeekWaitSeconds reports the wait a caller would face right now,
// rounded up to whole seconds. It does not reserve a slot.
func (t *Throttle) PeekWaitSeconds() int {
	t.mu.Lock()
	wait := t.remainingWait()
	t.mu.Unlock()
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

// WaitForSlot blocks until the caller may issue a recognition call and
// atomically reserves the next slot: no two callers can claim the same
// instant. Sleeps happen in bounded ticks with the lock released, so a
// frozen throttle stays responsive to cancellation.
func (t *Throttle) WaitForSlot(ctx context.Context) error {
	for {
		t.mu.Lock()
		wait := t.remainingWait()
		if wait <= 0 {
			t.nextAllowed = t.now().Add(t.minInterval)
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		if wait > time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// NoteRateLimited records an overload signal from the service. The
// freeze duration is retryAfterS when the service provided one,
// otherwise exponential from 5s doubling per consecutive hit, capped
// at 300s. The minimum spacing doubles (cap 60s, floor base). Returns
// the resulting wait estimate in whole seconds.
func (t *Throttle) NoteRateLimited(retryAfterS int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rateLimitHits++
	t.successesSinceLimit = 0

	freeze := time.Duration(retryAfterS) * time.Second
	if retryAfterS <= 0 {
		hits := t.rateLimitHits
		if hits > 6 {
			hits = 6
		}
		freeze = 5 * time.Second * (1 << hits)
		if freeze > 300*time.Second {
			freeze = 300 * time.Second
		}
	}
	if until := now.Add(freeze); until.After(t.freezeUntil) {
		t.freezeUntil = until
	}

	doubled := t.minInterval * 2
	if doubled < t.baseInterval {
		doubled = t.baseInterval
	}
	if doubled > 60*time.Second {
		doubled = 60 * time.Second
	}
	t.minInterval = doubled

	wait := t.remainingWait()
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

// NoteNearLimit records a soft overload signal (a request that
// succeeded only after retries). It arms the hit counter and restores
// at least the base spacing, without freezing.
func (t *Throttle) NoteNearLimit() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rateLimitHits == 0 {
		t.rateLimitHits = 1
	}
	t.successesSinceLimit = 0
	if t.minInterval < t.baseInterval {
		t.minInterval = t.baseInterval
	}
	if t.minInterval > 60*time.Second {
		t.minInterval = 60 * time.Second
	}
}

// NoteSuccess records a clean call. After 10 consecutive successes
// since the last limit hit, the spacing decays by 20% toward the base
// interval, never below it.
func (t *Throttle) NoteSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rateLimitHits == 0 {
		return
	}
	t.successesSinceLimit++
	if t.successesSinceLimit < 10 {
		return
	}
	t.successesSinceLimit = 0

	decayed := time.Duration(float64(t.minInterval) * 0.8)
	if decayed < t.baseInterval {
		decayed = t.baseInterval
	}
	t.minInterval = decayed
}
