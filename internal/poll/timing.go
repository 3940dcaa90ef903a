package poll

import "time"

// Phase is the polling state of a device.
type Phase int

const (
	// PhaseIdle: outside a burst window, last poll is fresh enough.
	PhaseIdle Phase = iota
	// PhaseBurst: inside the post-command window, polling at the short interval.
	PhaseBurst
	// PhaseDue: outside a burst window and the normal interval has elapsed.
	PhaseDue
	// PhaseSuspended: no activity for longer than the idle timeout, no polling.
	PhaseSuspended
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBurst:
		return "active_burst"
	case PhaseDue:
		return "due"
	case PhaseSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Policy holds the polling cadence.
type Policy struct {
	NormalInterval time.Duration
	BurstInterval  time.Duration
	BurstDuration  time.Duration
	IdleTimeout    time.Duration
}

// DefaultPolicy returns the standard cadence: 30s normal, 5s during a 30s
// burst, suspended after 5 minutes without activity.
func DefaultPolicy() Policy {
	return Policy{
		NormalInterval: 30 * time.Second,
		BurstInterval:  5 * time.Second,
		BurstDuration:  30 * time.Second,
		IdleTimeout:    5 * time.Minute,
	}
}

// Timing is the per-device polling state. Zero times mean "none".
type Timing struct {
	LastUpdate      time.Time
	LastActivity    time.Time
	FastUpdateUntil time.Time

	// lastAttempt is the last failed poll; it defers the retry to the next cycle.
	lastAttempt time.Time
	// armedAt is when the current burst window was armed.
	armedAt time.Time
}

// NewTiming creates timing state with activity recorded at now.
func NewTiming(now time.Time) Timing {
	return Timing{LastActivity: now}
}

// Phase evaluates the state at now. It does not mutate t.
func (t Timing) Phase(now time.Time, p Policy) Phase {
	if t.suspended(now, p) {
		return PhaseSuspended
	}
	if t.inBurst(now) {
		return PhaseBurst
	}
	if t.IsPollDue(now, p) {
		return PhaseDue
	}
	return PhaseIdle
}

// IsPollDue reports whether a poll should run at now. It does not mutate t.
func (t Timing) IsPollDue(now time.Time, p Policy) bool {
	if t.suspended(now, p) {
		return false
	}

	ref := t.reference()
	if t.inBurst(now) {
		// The first poll after a command runs right away
		if ref.IsZero() || !ref.After(t.armedAt) {
			return true
		}
		return now.Sub(ref) >= p.BurstInterval
	}

	if ref.IsZero() {
		return true
	}
	return now.Sub(ref) > p.NormalInterval
}

// Touch records activity (a command or an explicit state query).
func (t *Timing) Touch(now time.Time) {
	t.LastActivity = now
}

// Arm records activity and opens the burst window.
func (t *Timing) Arm(now time.Time, p Policy) {
	t.LastActivity = now
	t.armedAt = now
	t.FastUpdateUntil = now.Add(p.BurstDuration)
}

// RecordPoll marks a completed poll.
func (t *Timing) RecordPoll(now time.Time) {
	t.LastUpdate = now
	t.lastAttempt = time.Time{}
	t.Expire(now)
}

// RecordFailure marks a failed poll so the retry waits for the next cycle.
func (t *Timing) RecordFailure(now time.Time) {
	t.lastAttempt = now
	t.Expire(now)
}

// Expire clears a burst window that has ended.
func (t *Timing) Expire(now time.Time) {
	if !t.FastUpdateUntil.IsZero() && !now.Before(t.FastUpdateUntil) {
		t.FastUpdateUntil = time.Time{}
		t.armedAt = time.Time{}
	}
}

func (t Timing) suspended(now time.Time, p Policy) bool {
	return now.Sub(t.LastActivity) > p.IdleTimeout
}

func (t Timing) inBurst(now time.Time) bool {
	return !t.FastUpdateUntil.IsZero() && now.Before(t.FastUpdateUntil)
}

func (t Timing) reference() time.Time {
	if t.lastAttempt.After(t.LastUpdate) {
		return t.lastAttempt
	}
	return t.LastUpdate
}
