// Package segment implements the utterance state machine that turns a stream
// of per-frame speech decisions into complete utterances.
//
// The machine has three states. IDLE waits for the first voiced frame.
// VOICED accumulates frames until silence has lasted for the configured
// threshold. FINALIZING means the buffered utterance has been handed off and
// the caller has not yet reported the outcome through [Segmenter.Resolve].
//
// A separate in-flight flag survives the return to VOICED when the user
// starts speaking again before the handoff resolves: the next utterance keeps
// accumulating but its boundary is deferred until the first handoff is done,
// so at most one utterance per session is ever in flight.
package segment

import (
	"fmt"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// State is the segmenter state.
type State int

const (
	StateIdle State = iota
	StateVoiced
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVoiced:
		return "voiced"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Action is the side effect selected by a transition.
type Action int

const (
	// ActionIgnore drops the input without buffering it.
	ActionIgnore Action = iota
	// ActionStart begins a new utterance with the frame.
	ActionStart
	// ActionAppend appends a voiced frame and restarts the silence timer.
	ActionAppend
	// ActionHold appends a silent frame inside the wake guard window.
	ActionHold
	// ActionSilence appends a silent frame and extends the silence run.
	ActionSilence
	// ActionDefer appends a frame past the boundary while a previous
	// utterance is still in flight.
	ActionDefer
	// ActionFire hands the buffered frames off as an utterance.
	ActionFire
	// ActionDiscardRunt drops a buffer too short to be an utterance.
	ActionDiscardRunt
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionStart:
		return "start"
	case ActionAppend:
		return "append"
	case ActionHold:
		return "hold"
	case ActionSilence:
		return "silence"
	case ActionDefer:
		return "defer"
	case ActionFire:
		return "fire"
	case ActionDiscardRunt:
		return "discard_runt"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Defaults for [Config].
const (
	DefaultSilenceThreshold = 800 * time.Millisecond
	DefaultWakeGuard        = 300 * time.Millisecond
	DefaultMinFrames        = 5
	DefaultBufferDepth      = 100
)

// Config holds the segmenter timing and size limits.
type Config struct {
	// SilenceThreshold is how long after the last voiced frame the
	// utterance is closed.
	SilenceThreshold time.Duration

	// WakeGuard is the window after each voiced frame during which silence
	// does not advance the silence run.
	WakeGuard time.Duration

	// MinFrames is the shortest speech span, counted in frames from the
	// first voiced frame through the last voiced frame, that is handed off.
	// Trailing silence does not count. Shorter attempts are discarded as
	// runts.
	MinFrames int

	// BufferDepth bounds the frame buffer. Older frames age out.
	BufferDepth int
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold: DefaultSilenceThreshold,
		WakeGuard:        DefaultWakeGuard,
		MinFrames:        DefaultMinFrames,
		BufferDepth:      DefaultBufferDepth,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.WakeGuard < 0 {
		c.WakeGuard = 0
	}
	if c.MinFrames <= 0 {
		c.MinFrames = def.MinFrames
	}
	if c.BufferDepth <= 0 {
		c.BufferDepth = def.BufferDepth
	}
	return c
}

// Input is one event for the segmenter: either a classified frame or a tick
// that only advances time.
type Input struct {
	Frame  audio.Frame
	Speech bool
	Tick   bool
	At     time.Time
}

// Utterance is a completed spoken turn.
type Utterance struct {
	Seq    uint64
	Frames []audio.Frame
	Start  time.Time
	End    time.Time
}

// Step reports what a single [Segmenter.Observe] call did.
type Step struct {
	From, To State
	Action   Action

	// Utterance is set only when Action is ActionFire.
	Utterance *Utterance

	// Dropped is the number of frames discarded with a runt.
	Dropped int

	// Evicted is true when appending aged the oldest frame out.
	Evicted bool
}

// Counters are cumulative diagnostics.
type Counters struct {
	Utterances uint64
	Runts      uint64
	Deferred   uint64
	Evicted    uint64
}

// view is the part of the segmenter state a transition depends on.
type view struct {
	state     State
	inFlight  bool
	lastVoice time.Time
	span      int
}

// next is the transition function. It has no side effects.
func (c Config) next(v view, speech, tick bool, now time.Time) (State, Action) {
	if speech && !tick {
		switch v.state {
		case StateVoiced:
			return StateVoiced, ActionAppend
		default:
			return StateVoiced, ActionStart
		}
	}

	if v.state != StateVoiced {
		return v.state, ActionIgnore
	}

	elapsed := now.Sub(v.lastVoice)
	switch {
	case elapsed < c.WakeGuard:
		return StateVoiced, ActionHold
	case elapsed < c.SilenceThreshold:
		return StateVoiced, ActionSilence
	case v.inFlight:
		return StateVoiced, ActionDefer
	case v.span < c.MinFrames:
		return StateIdle, ActionDiscardRunt
	default:
		return StateFinalizing, ActionFire
	}
}

// Segmenter is the per-session utterance state machine. It is not safe for
// concurrent use; the owning session must serialise all calls.
type Segmenter struct {
	cfg        Config
	state      State
	inFlight   bool
	lastVoice  time.Time
	start      time.Time
	silenceRun int
	span       int
	buf        *FrameBuffer
	seq        uint64
	counters   Counters
}

// New creates a Segmenter in StateIdle.
func New(cfg Config) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{cfg: cfg, buf: NewFrameBuffer(cfg.BufferDepth)}
}

// Observe feeds one input into the machine.
func (s *Segmenter) Observe(in Input) Step {
	v := view{state: s.state, inFlight: s.inFlight, lastVoice: s.lastVoice, span: s.span}
	to, act := s.cfg.next(v, in.Speech, in.Tick, in.At)
	step := Step{From: s.state, To: to, Action: act}

	switch act {
	case ActionStart:
		s.start = in.At
		s.lastVoice = in.At
		s.silenceRun = 0
		step.Evicted = s.push(in.Frame)
		s.span = s.buf.Len()
	case ActionAppend:
		s.lastVoice = in.At
		s.silenceRun = 0
		step.Evicted = s.push(in.Frame)
		s.span = s.buf.Len()
	case ActionHold:
		if !in.Tick {
			step.Evicted = s.push(in.Frame)
		}
	case ActionSilence:
		if !in.Tick {
			s.silenceRun++
			step.Evicted = s.push(in.Frame)
		}
	case ActionDefer:
		s.counters.Deferred++
		if !in.Tick {
			step.Evicted = s.push(in.Frame)
		}
	case ActionDiscardRunt:
		s.counters.Runts++
		step.Dropped = s.buf.Len()
		s.buf.Reset()
		s.reset(in.At)
	case ActionFire:
		s.seq++
		s.counters.Utterances++
		s.inFlight = true
		step.Utterance = &Utterance{
			Seq:    s.seq,
			Frames: s.buf.Drain(),
			Start:  s.start,
			End:    s.lastVoice,
		}
		s.silenceRun = 0
		s.span = 0
	}

	s.state = to
	return step
}

// Resolve reports that the in-flight handoff finished, successfully or not.
// From FINALIZING the machine returns to IDLE with timestamps reset to now.
// From VOICED the frames of the next utterance are kept and will close out at
// its own boundary. Resolve reports false if nothing was in flight.
func (s *Segmenter) Resolve(now time.Time) bool {
	if !s.inFlight {
		return false
	}
	s.inFlight = false
	if s.state == StateFinalizing {
		s.buf.Reset()
		s.reset(now)
		s.state = StateIdle
	}
	return true
}

func (s *Segmenter) reset(now time.Time) {
	s.lastVoice = now
	s.start = now
	s.silenceRun = 0
	s.span = 0
}

func (s *Segmenter) push(f audio.Frame) bool {
	if s.buf.Push(f) {
		s.counters.Evicted++
		return true
	}
	return false
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// InFlight reports whether a handoff is awaiting Resolve.
func (s *Segmenter) InFlight() bool { return s.inFlight }

// Buffered returns the number of frames held for the pending utterance.
func (s *Segmenter) Buffered() int { return s.buf.Len() }

// SilenceRun returns the number of silent frames counted toward the boundary.
func (s *Segmenter) SilenceRun() int { return s.silenceRun }

// Counters returns the cumulative diagnostics.
func (s *Segmenter) Counters() Counters { return s.counters }

// Config returns the effective configuration.
func (s *Segmenter) Config() Config { return s.cfg }
