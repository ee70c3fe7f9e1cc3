// Package guard suppresses inbound audio while the assistant's own speech is
// playing and for a short acoustic tail afterwards.
package guard

import "time"

// Reason explains why [Guard.Check] suppressed input.
type Reason int

const (
	// ReasonNone means input is allowed.
	ReasonNone Reason = iota
	// ReasonSpeaking means playback is in progress.
	ReasonSpeaking
	// ReasonCooldown means playback ended recently.
	ReasonCooldown
)

func (r Reason) String() string {
	switch r {
	case ReasonSpeaking:
		return "speaking"
	case ReasonCooldown:
		return "cooldown"
	default:
		return "none"
	}
}

// DefaultCooldown is the post-playback window used when none is configured.
const DefaultCooldown = 800 * time.Millisecond

// Guard holds the session's echo suppression windows. It is owned by the
// session goroutine and not safe for concurrent use.
type Guard struct {
	cooldown      time.Duration
	speaking      bool
	cooldownUntil time.Time
}

// New creates a Guard with the given post-playback cooldown. A non-positive
// cooldown selects [DefaultCooldown].
func New(cooldown time.Duration) *Guard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Guard{cooldown: cooldown}
}

// PlaybackStarted sets the speaking flag.
func (g *Guard) PlaybackStarted(time.Time) {
	g.speaking = true
}

// PlaybackEnded clears the speaking flag and arms the cooldown window. The
// cooldown deadline only ever moves forward.
func (g *Guard) PlaybackEnded(now time.Time) {
	g.speaking = false
	if until := now.Add(g.cooldown); until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
}

// Check reports whether input arriving at now must be dropped.
func (g *Guard) Check(now time.Time) Reason {
	if g.speaking {
		return ReasonSpeaking
	}
	if now.Before(g.cooldownUntil) {
		return ReasonCooldown
	}
	return ReasonNone
}

// Speaking reports whether playback is in progress.
func (g *Guard) Speaking() bool { return g.speaking }

// CooldownUntil returns the end of the current cooldown window.
func (g *Guard) CooldownUntil() time.Time { return g.cooldownUntil }
