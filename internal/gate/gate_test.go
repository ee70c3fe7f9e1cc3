package gate_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/gate"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestAdmit_Sizes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		size int
		want gate.Verdict
	}{
		{"empty", 0, gate.DropEmpty},
		{"keepalive", 1, gate.KeepKeepalive},
		{"small dtx", 3, gate.DropSmall},
		{"at drop threshold", 12, gate.DropSmall},
		{"just above threshold", 13, gate.Keep},
		{"regular frame", 120, gate.Keep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := gate.New(gate.DefaultConfig())
			if got := g.Admit(tt.size, t0); got != tt.want {
				t.Errorf("Admit(%d) = %v, want %v", tt.size, got, tt.want)
			}
		})
	}
}

func TestAdmit_KeepaliveOncePerInterval(t *testing.T) {
	g := gate.New(gate.Config{KeepaliveInterval: time.Second})

	var kept int
	// 20 keepalives every 100ms span two full windows.
	for i := range 20 {
		if g.Admit(1, t0.Add(time.Duration(i)*100*time.Millisecond)) == gate.KeepKeepalive {
			kept++
		}
	}
	if kept != 2 {
		t.Errorf("kept %d keepalives, want 2", kept)
	}

	s := g.Stats()
	if s.KeepalivesKept != 2 || s.DroppedKeepalive != 18 {
		t.Errorf("stats = %+v", s)
	}
}

func TestAdmit_KeepaliveWindowIndependentOfAudio(t *testing.T) {
	g := gate.New(gate.DefaultConfig())
	g.Admit(1, t0)
	g.Admit(100, t0.Add(200*time.Millisecond))
	if v := g.Admit(1, t0.Add(500*time.Millisecond)); v != gate.DropKeepalive {
		t.Errorf("second keepalive within window = %v, want DropKeepalive", v)
	}
	if v := g.Admit(1, t0.Add(time.Second)); v != gate.KeepKeepalive {
		t.Errorf("keepalive at window end = %v, want KeepKeepalive", v)
	}
}

func TestStats_Dropped(t *testing.T) {
	g := gate.New(gate.DefaultConfig())
	for _, size := range []int{0, 5, 1, 1, 200} {
		g.Admit(size, t0)
	}
	s := g.Stats()
	if s.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", s.Dropped())
	}
	if s.Kept != 1 {
		t.Errorf("Kept = %d, want 1", s.Kept)
	}
}
