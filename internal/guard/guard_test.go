package guard_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/guard"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCheck_Lifecycle(t *testing.T) {
	g := guard.New(500 * time.Millisecond)

	if r := g.Check(t0); r != guard.ReasonNone {
		t.Fatalf("initial = %v, want none", r)
	}

	g.PlaybackStarted(t0)
	if r := g.Check(t0.Add(time.Hour)); r != guard.ReasonSpeaking {
		t.Fatalf("while speaking = %v, want speaking", r)
	}

	end := t0.Add(2 * time.Second)
	g.PlaybackEnded(end)
	tests := []struct {
		at   time.Duration
		want guard.Reason
	}{
		{0, guard.ReasonCooldown},
		{499 * time.Millisecond, guard.ReasonCooldown},
		{500 * time.Millisecond, guard.ReasonNone},
		{time.Second, guard.ReasonNone},
	}
	for _, tt := range tests {
		if r := g.Check(end.Add(tt.at)); r != tt.want {
			t.Errorf("Check(end+%v) = %v, want %v", tt.at, r, tt.want)
		}
	}
}

func TestPlaybackEnded_NeverShortens(t *testing.T) {
	g := guard.New(time.Second)
	g.PlaybackEnded(t0.Add(5 * time.Second))
	want := g.CooldownUntil()

	// A stale end signal must not pull the deadline back.
	g.PlaybackEnded(t0)
	if got := g.CooldownUntil(); !got.Equal(want) {
		t.Errorf("CooldownUntil = %v, want %v", got, want)
	}
}

func TestSpeakingDominatesCooldown(t *testing.T) {
	g := guard.New(time.Second)
	g.PlaybackEnded(t0)
	g.PlaybackStarted(t0.Add(100 * time.Millisecond))
	if r := g.Check(t0.Add(200 * time.Millisecond)); r != guard.ReasonSpeaking {
		t.Errorf("Check = %v, want speaking", r)
	}
	if !g.Speaking() {
		t.Error("Speaking() = false")
	}
}

func TestNew_DefaultCooldown(t *testing.T) {
	g := guard.New(0)
	g.PlaybackEnded(t0)
	if got := g.CooldownUntil().Sub(t0); got != guard.DefaultCooldown {
		t.Errorf("cooldown = %v, want %v", got, guard.DefaultCooldown)
	}
}
