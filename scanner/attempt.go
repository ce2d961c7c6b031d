package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"song-scanner/shazam"
)

// Recognizer identifies a track from an encoded WAV clip. The real
// implementation is the shazam client; tests substitute fakes.
type Recognizer interface {
	Recognize(ctx context.Context, wavBytes []byte) (shazam.Result, error)
}

// Outcome classifies what happened to one sample.
type Outcome int

const (
	OutcomeMatch Outcome = iota
	OutcomeNoMatch
	OutcomeError
	OutcomeStopped
	OutcomeEOF
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "match"
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeError:
		return "error"
	case OutcomeStopped:
		return "stopped"
	case OutcomeEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// SampleResult is the terminal state of processing one sample offset.
type SampleResult struct {
	OffsetS    int
	Outcome    Outcome
	Text       string
	Err        error
	RateLimits int
}

const maxTransientAttempts = 6

// attempt drives one recognition call to a terminal outcome, retrying
// through rate limits and transient failures. 429 responses retry
// without limit since the throttle freeze already paces them; other
// transient failures give up after maxTransientAttempts.
func attempt(ctx context.Context, rec Recognizer, throttle *Throttle, emitter *Emitter, wavBytes []byte, offsetS int, timeout time.Duration) SampleResult {
	result := SampleResult{OffsetS: offsetS}
	transientTries := 0

	for {
		if err := ctx.Err(); err != nil {
			result.Outcome = OutcomeStopped
			return result
		}

		if wait := throttle.PeekWaitSeconds(); wait >= 5 {
			emitter.Emit(Event{
				Kind:    EventStatus,
				OffsetS: offsetS,
				Text:    fmt.Sprintf("rate limited, waiting %ds before next request", wait),
			})
		}
		if err := throttle.WaitForSlot(ctx); err != nil {
			result.Outcome = OutcomeStopped
			return result
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := rec.Recognize(callCtx, wavBytes)
		cancel()

		if err == nil {
			throttle.NoteSuccess()
			if res.Matched {
				result.Outcome = OutcomeMatch
				result.Text = res.Display()
			} else {
				result.Outcome = OutcomeNoMatch
			}
			return result
		}

		var rateErr *shazam.RateLimitError
		if errors.As(err, &rateErr) {
			result.RateLimits++
			throttle.NoteRateLimited(rateErr.RetryAfterS)
			continue
		}

		var transientErr *shazam.TransientError
		if errors.As(err, &transientErr) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				result.Outcome = OutcomeStopped
				return result
			}
			throttle.NoteNearLimit()
			transientTries++
			if transientTries >= maxTransientAttempts {
				result.Outcome = OutcomeError
				result.Err = fmt.Errorf("recognition failed after %d attempts: %v", transientTries, err)
				return result
			}
			if !attemptSleep(ctx, backoffDelay(transientTries)) {
				result.Outcome = OutcomeStopped
				return result
			}
			continue
		}

		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
}

// backoffDelay is 2^n seconds capped at one minute.
func backoffDelay(try int) time.Duration {
	d := time.Duration(1<<uint(try)) * time.Second
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}

// attemptSleep pauses between transient retries; swapped in tests.
var attemptSleep = sleepCtx

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
