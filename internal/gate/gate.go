// Package gate implements the per-packet size filter that runs before any
// decoding. It is the only place where packets are dropped by size.
package gate

import (
	"fmt"
	"time"
)

// Verdict is the outcome of [Gate.Admit].
type Verdict int

const (
	// Keep admits a regular audio frame.
	Keep Verdict = iota
	// KeepKeepalive admits the first keepalive of an interval window. It
	// carries no audio and acts as a silence tick downstream.
	KeepKeepalive
	// DropEmpty rejects zero-length packets.
	DropEmpty
	// DropKeepalive rejects a keepalive seen again within the same window.
	DropKeepalive
	// DropSmall rejects DTX-sized packets above the keepalive size.
	DropSmall
)

// String returns the verdict name used in logs and metric attributes.
func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep"
	case KeepKeepalive:
		return "keepalive"
	case DropEmpty:
		return "empty"
	case DropKeepalive:
		return "keepalive_repeat"
	case DropSmall:
		return "dtx"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Config holds the gate thresholds.
type Config struct {
	// DropMaxBytes is the coarse threshold: packets of at most this size are
	// dropped. Default 12.
	DropMaxBytes int

	// KeepaliveMaxBytes is the stricter threshold for keepalives. Packets of
	// at most this size are admitted once per KeepaliveInterval. Default 1.
	KeepaliveMaxBytes int

	// KeepaliveInterval is the keepalive admission window. Default 1s.
	KeepaliveInterval time.Duration
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		DropMaxBytes:      12,
		KeepaliveMaxBytes: 1,
		KeepaliveInterval: time.Second,
	}
}

// Stats are diagnostic counters. They never influence decisions.
type Stats struct {
	Kept             uint64
	KeepalivesKept   uint64
	DroppedEmpty     uint64
	DroppedKeepalive uint64
	DroppedSmall     uint64
}

// Dropped is the sum of all drop counters.
func (s Stats) Dropped() uint64 {
	return s.DroppedEmpty + s.DroppedKeepalive + s.DroppedSmall
}

// Gate decides keep or drop for each raw packet of one session.
// It is not safe for concurrent use.
type Gate struct {
	cfg           Config
	lastKeepalive time.Time
	stats         Stats
}

// New creates a Gate. Zero-valued fields of cfg take their defaults.
func New(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.DropMaxBytes <= 0 {
		cfg.DropMaxBytes = def.DropMaxBytes
	}
	if cfg.KeepaliveMaxBytes <= 0 {
		cfg.KeepaliveMaxBytes = def.KeepaliveMaxBytes
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	return &Gate{cfg: cfg}
}

// Admit classifies a packet of size bytes that arrived at now.
func (g *Gate) Admit(size int, now time.Time) Verdict {
	v := g.classify(size, now)
	switch v {
	case Keep:
		g.stats.Kept++
	case KeepKeepalive:
		g.stats.KeepalivesKept++
	case DropEmpty:
		g.stats.DroppedEmpty++
	case DropKeepalive:
		g.stats.DroppedKeepalive++
	case DropSmall:
		g.stats.DroppedSmall++
	}
	return v
}

func (g *Gate) classify(size int, now time.Time) Verdict {
	switch {
	case size <= 0:
		return DropEmpty
	case size <= g.cfg.KeepaliveMaxBytes:
		if !g.lastKeepalive.IsZero() && now.Sub(g.lastKeepalive) < g.cfg.KeepaliveInterval {
			return DropKeepalive
		}
		g.lastKeepalive = now
		return KeepKeepalive
	case size <= g.cfg.DropMaxBytes:
		return DropSmall
	default:
		return Keep
	}
}

// Stats returns a snapshot of the diagnostic counters.
func (g *Gate) Stats() Stats { return g.stats }
