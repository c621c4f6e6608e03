package tracking

import "time"

// AttentionState is the debounced looking/away verdict.
type AttentionState string

const (
	AttentionUnknown AttentionState = "unknown" // No verdict yet
	AttentionLooking AttentionState = "looking"
	AttentionAway    AttentionState = "away"
)

// Attention turns per-frame on-screen readings into a stable state. A
// reading has to persist for the matching delay before the state flips.
type Attention struct {
	lookingAfter time.Duration
	awayAfter    time.Duration

	state   AttentionState
	pending AttentionState
	since   time.Time
	changed time.Time
}

// NewAttention creates a tracker in the unknown state.
func NewAttention(lookingAfter, awayAfter time.Duration) *Attention {
	return &Attention{
		lookingAfter: lookingAfter,
		awayAfter:    awayAfter,
		state:        AttentionUnknown,
	}
}

// Update feeds one frame and returns the current state and whether it
// changed on this frame.
func (a *Attention) Update(onScreen, facePresent bool, now time.Time) (AttentionState, bool) {
	reading := AttentionAway
	if facePresent && onScreen {
		reading = AttentionLooking
	}

	if reading == a.state {
		a.pending = ""
		return a.state, false
	}
	if reading != a.pending {
		a.pending = reading
		a.since = now
	}

	delay := a.awayAfter
	if reading == AttentionLooking {
		delay = a.lookingAfter
	}
	if now.Sub(a.since) < delay {
		return a.state, false
	}

	a.state = reading
	a.pending = ""
	a.changed = now
	return a.state, true
}

// State returns the current state.
func (a *Attention) State() AttentionState {
	return a.state
}

// Since returns when the state last changed.
func (a *Attention) Since() time.Time {
	return a.changed
}

// Reset returns to unknown.
func (a *Attention) Reset() {
	a.state = AttentionUnknown
	a.pending = ""
	a.since = time.Time{}
	a.changed = time.Time{}
}
