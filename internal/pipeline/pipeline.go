// Package pipeline owns the audio path of one device connection: echo guard,
// frame gate, decoding, voice detection, segmentation and the transcription
// handoff.
//
// All session state lives on a single goroutine. Frames, ticks, playback
// signals and handoff completions are posted to it as events, so frames are
// processed strictly in arrival order and the segmenter never observes two
// events at once. Transcription runs on its own goroutine; its completion is
// posted back as an event.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/guard"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/segment"
	"github.com/MrWong99/voxgate/internal/vad"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/audio/opus"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// Defaults for [Config].
const (
	DefaultTickInterval         = 250 * time.Millisecond
	DefaultLogEveryFrames       = 50
	DefaultListenLogEveryFrames = 100
	DefaultFrameDuration        = 60 * time.Millisecond

	eventQueue = 64
)

// Config holds the per-connection audio settings. It is immutable once the
// pipeline is created.
type Config struct {
	// Format is the device audio format.
	Format audio.Format

	// FrameDuration is the duration of one compressed frame.
	FrameDuration time.Duration

	// ContainerRate is the sample rate of the WAV handed to transcription.
	// Zero keeps the device rate.
	ContainerRate int

	Gate      gate.Config
	VAD       vad.Config
	Segmenter segment.Config

	// Cooldown is the post-playback suppression window.
	Cooldown time.Duration

	// TickInterval drives boundary checks while no frames arrive. Zero
	// disables the internal ticker; negative values select the default.
	TickInterval time.Duration

	LogEveryFrames       int
	ListenLogEveryFrames int

	// Language and Prompt are passed through to the transcriber.
	Language string
	Prompt   string
}

// DefaultConfig returns a 16 kHz mono configuration with the package
// defaults.
func DefaultConfig() Config {
	return Config{
		Format:               audio.Format{SampleRate: 16000, Channels: 1},
		FrameDuration:        DefaultFrameDuration,
		ContainerRate:        16000,
		Gate:                 gate.DefaultConfig(),
		VAD:                  vad.Config{RMSThreshold: vad.DefaultRMSThreshold, FallbackVoiceBytes: vad.DefaultFallbackVoiceBytes},
		Segmenter:            segment.DefaultConfig(),
		Cooldown:             guard.DefaultCooldown,
		TickInterval:         DefaultTickInterval,
		LogEveryFrames:       DefaultLogEveryFrames,
		ListenLogEveryFrames: DefaultListenLogEveryFrames,
	}
}

// Transcript is a recognised utterance.
type Transcript struct {
	Seq     uint64
	Text    string
	Audio   time.Duration
	Latency time.Duration
}

// TranscriptHandler receives non-empty transcripts. It runs on the handoff
// goroutine after the segmenter has been released, with a context that is
// cancelled when the pipeline closes.
type TranscriptHandler func(ctx context.Context, t Transcript)

// DecoderFactory creates the session decoder.
type DecoderFactory func(f audio.Format, frameDuration time.Duration) (audio.Decoder, error)

func opusDecoder(f audio.Format, d time.Duration) (audio.Decoder, error) {
	dec, err := opus.NewDecoder(f, d)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

// Option is a functional option for [New].
type Option func(*Pipeline)

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithDecoderFactory replaces the Opus decoder.
func WithDecoderFactory(f DecoderFactory) Option {
	return func(p *Pipeline) { p.newDecoder = f }
}

// WithTranscriptHandler sets the receiver of recognised text.
func WithTranscriptHandler(h TranscriptHandler) Option {
	return func(p *Pipeline) { p.onTranscript = h }
}

// WithTranscriberName labels provider metrics. Defaults to "stt".
func WithTranscriberName(name string) Option {
	return func(p *Pipeline) { p.sttName = name }
}

type eventKind int

const (
	evFrame eventKind = iota
	evTick
	evPlaybackStarted
	evPlaybackEnded
	evListenStarted
	evHandoffDone
	evSnapshot
)

type event struct {
	kind    eventKind
	at      time.Time
	payload []byte
	outcome outcome
	reply   chan Snapshot
}

type outcome int

const (
	outcomeTranscribed outcome = iota
	outcomeEmpty
	outcomeFailed
)

// Snapshot is a consistent view of the session state.
type Snapshot struct {
	State         segment.State
	InFlight      bool
	Buffered      int
	Speaking      bool
	CooldownUntil time.Time

	// Degraded is true when the session runs without a decoder and voice
	// detection falls back to payload size.
	Degraded bool

	Stats     Stats
	Gate      gate.Stats
	Segmenter segment.Counters
}

// Pipeline is the audio path of one connection. Its exported methods are safe
// for concurrent use; they only post events to the session goroutine.
type Pipeline struct {
	cfg          Config
	stt          stt.Provider
	sttName      string
	onTranscript TranscriptHandler
	now          func() time.Time
	metrics      *observe.Metrics
	log          *slog.Logger
	newDecoder   DecoderFactory

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}

	// Owned by the session goroutine.
	gate    *gate.Gate
	guard   *guard.Guard
	vad     *vad.Detector
	seg     *segment.Segmenter
	bridge  *audio.Bridge
	decoder audio.Decoder
	stats   counters
}

// New creates a pipeline and starts its session goroutine. The pipeline runs
// until ctx is cancelled or Close is called.
func New(ctx context.Context, cfg Config, transcriber stt.Provider, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:        cfg,
		stt:        transcriber,
		sttName:    "stt",
		now:        time.Now,
		log:        slog.Default(),
		newDecoder: opusDecoder,
		events:     make(chan event, eventQueue),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	p.gate = gate.New(cfg.Gate)
	p.guard = guard.New(cfg.Cooldown)
	p.vad = vad.New(cfg.VAD)
	p.seg = segment.New(cfg.Segmenter)
	p.bridge = audio.NewBridge(cfg.Format, cfg.ContainerRate, p.log)
	p.stats = counters{
		logEvery:       uint64(cfg.LogEveryFrames),
		listenLogEvery: uint64(cfg.ListenLogEveryFrames),
	}

	dec, err := p.newDecoder(cfg.Format, cfg.FrameDuration)
	if err != nil {
		p.log.Warn("pipeline: decoder unavailable, using size-based voice detection", "err", err)
	} else {
		p.decoder = dec
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	go p.run()
	return p
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Format.SampleRate <= 0 {
		c.Format.SampleRate = def.Format.SampleRate
	}
	if c.Format.Channels <= 0 {
		c.Format.Channels = def.Format.Channels
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = def.FrameDuration
	}
	if c.TickInterval < 0 {
		c.TickInterval = def.TickInterval
	}
	if c.LogEveryFrames < 0 {
		c.LogEveryFrames = def.LogEveryFrames
	}
	if c.ListenLogEveryFrames < 0 {
		c.ListenLogEveryFrames = def.ListenLogEveryFrames
	}
	return c
}

// ── Event entry points ──

// HandleFrame queues one compressed frame. The pipeline takes ownership of
// payload.
func (p *Pipeline) HandleFrame(payload []byte) {
	p.post(event{kind: evFrame, at: p.now(), payload: payload})
}

// Tick queues a boundary check without audio.
func (p *Pipeline) Tick() {
	p.post(event{kind: evTick, at: p.now()})
}

// PlaybackStarted reports that the assistant began emitting audio.
func (p *Pipeline) PlaybackStarted() {
	p.post(event{kind: evPlaybackStarted, at: p.now()})
}

// PlaybackEnded reports that playback finished or was aborted.
func (p *Pipeline) PlaybackEnded() {
	p.post(event{kind: evPlaybackEnded, at: p.now()})
}

// ListenStarted restarts the since-listen counters.
func (p *Pipeline) ListenStarted() {
	p.post(event{kind: evListenStarted, at: p.now()})
}

// Snapshot returns the session state after all previously posted events have
// been processed. A closed pipeline returns the zero Snapshot.
func (p *Pipeline) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !p.post(event{kind: evSnapshot, reply: reply}) {
		return Snapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-p.done:
		return Snapshot{}
	}
}

// Close stops the session goroutine. An in-flight transcription is
// cancelled but not awaited.
func (p *Pipeline) Close() {
	p.cancel()
	<-p.done
}

// Done is closed once the session goroutine has exited.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

func (p *Pipeline) post(ev event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// ── Session goroutine ──

func (p *Pipeline) run() {
	defer close(p.done)

	var tick <-chan time.Time
	if p.cfg.TickInterval > 0 {
		t := time.NewTicker(p.cfg.TickInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-p.ctx.Done():
			p.log.Debug("pipeline: stopped",
				"frames", p.stats.Frames,
				"in_flight", p.seg.InFlight())
			return
		case <-tick:
			p.onTick(p.now())
		case ev := <-p.events:
			p.handle(ev)
		}
	}
}

func (p *Pipeline) handle(ev event) {
	switch ev.kind {
	case evFrame:
		p.onFrame(ev.payload, ev.at)
	case evTick:
		p.onTick(ev.at)
	case evPlaybackStarted:
		p.guard.PlaybackStarted(ev.at)
		p.log.Debug("pipeline: playback started")
	case evPlaybackEnded:
		p.guard.PlaybackEnded(ev.at)
		p.log.Debug("pipeline: playback ended", "cooldown_until", p.guard.CooldownUntil())
	case evListenStarted:
		p.stats.listenStarted()
	case evHandoffDone:
		p.onHandoffDone(ev.outcome, ev.at)
	case evSnapshot:
		ev.reply <- p.snapshot()
	}
}

func (p *Pipeline) onFrame(payload []byte, at time.Time) {
	ctx := p.ctx
	p.stats.Received++
	p.stats.ReceivedBytes += uint64(len(payload))
	p.metrics.RecordFrame(ctx, len(payload))

	// The guard runs before the gate: playback tails can be louder than
	// any size threshold.
	if r := p.guard.Check(at); r != guard.ReasonNone {
		p.stats.Suppressed++
		p.metrics.RecordDrop(ctx, r.String())
		return
	}

	switch v := p.gate.Admit(len(payload), at); v {
	case gate.Keep:
	case gate.KeepKeepalive:
		p.observe(segment.Input{Tick: true, At: at})
		return
	default:
		p.metrics.RecordDrop(ctx, v.String())
		return
	}

	p.stats.admit(len(payload), p.log)

	frame := audio.Frame{Payload: payload, ReceivedAt: at}
	if p.decoder != nil {
		pcm, err := p.decoder.Decode(payload)
		if err != nil {
			p.stats.DecodeErrors++
			p.metrics.DecodeErrors.Add(ctx, 1)
			p.log.Debug("pipeline: decode failed", "bytes", len(payload), "err", err)
		} else {
			frame.PCM = pcm
		}
	}

	d := p.vad.Classify(len(payload), frame.PCM)
	p.stats.Classified++
	if d.Speech {
		p.stats.Voiced++
	}
	p.observe(segment.Input{Frame: frame, Speech: d.Speech, At: at})
}

func (p *Pipeline) onTick(now time.Time) {
	if p.guard.Check(now) != guard.ReasonNone {
		return
	}
	p.observe(segment.Input{Tick: true, At: now})
}

func (p *Pipeline) observe(in segment.Input) {
	step := p.seg.Observe(in)
	switch step.Action {
	case segment.ActionStart:
		if step.From == segment.StateIdle {
			p.log.Debug("pipeline: speech started")
		}
	case segment.ActionDiscardRunt:
		p.metrics.RecordUtterance(p.ctx, "runt")
		p.log.Debug("pipeline: discarded short utterance", "frames", step.Dropped)
	case segment.ActionFire:
		p.fire(step.Utterance, in.At)
	}
	if step.Evicted {
		p.log.Debug("pipeline: frame buffer full, oldest frame aged out")
	}
}

func (p *Pipeline) fire(u *segment.Utterance, at time.Time) {
	c, err := p.bridge.Assemble(u.Frames)
	if err != nil {
		p.stats.Undecodable++
		p.metrics.RecordUtterance(p.ctx, "undecodable")
		p.log.Warn("pipeline: discarding utterance",
			"seq", u.Seq,
			"frames", len(u.Frames),
			"err", err)
		p.seg.Resolve(at)
		return
	}

	p.metrics.RecordUtterance(p.ctx, "fired")
	p.metrics.UtteranceDuration.Record(p.ctx, c.Duration.Seconds())
	p.log.Info("pipeline: utterance complete",
		"seq", u.Seq,
		"frames", c.Frames,
		"skipped", c.Skipped,
		"duration", c.Duration)

	go p.handoff(u.Seq, c)
}

func (p *Pipeline) onHandoffDone(o outcome, at time.Time) {
	switch o {
	case outcomeTranscribed:
		p.stats.Transcribed++
	case outcomeEmpty:
		p.stats.Empty++
	case outcomeFailed:
		p.stats.Failed++
	}
	p.seg.Resolve(at)
}

func (p *Pipeline) snapshot() Snapshot {
	return Snapshot{
		State:         p.seg.State(),
		InFlight:      p.seg.InFlight(),
		Buffered:      p.seg.Buffered(),
		Speaking:      p.guard.Speaking(),
		CooldownUntil: p.guard.CooldownUntil(),
		Degraded:      p.decoder == nil,
		Stats:         p.stats.Stats,
		Gate:          p.gate.Stats(),
		Segmenter:     p.seg.Counters(),
	}
}

// ── Handoff goroutine ──

func (p *Pipeline) handoff(seq uint64, c *audio.Container) {
	ctx, span := observe.StartSpan(p.ctx, "pipeline.handoff",
		trace.WithAttributes(
			attribute.Int64("utterance.seq", int64(seq)),
			attribute.Int("utterance.frames", c.Frames),
			attribute.Float64("utterance.seconds", c.Duration.Seconds()),
		))
	defer span.End()
	log := observe.LoggerFrom(ctx, p.log).With("seq", seq)

	start := time.Now()
	text, err := p.stt.Transcribe(ctx, stt.Request{
		WAV:      c.WAV,
		Language: p.cfg.Language,
		Prompt:   p.cfg.Prompt,
	})
	latency := time.Since(start)
	text = strings.TrimSpace(text)
	p.metrics.STTDuration.Record(ctx, latency.Seconds(),
		metric.WithAttributes(attribute.String("provider", p.sttName)))

	var o outcome
	switch {
	case err != nil:
		o = outcomeFailed
		p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "error")
		p.metrics.RecordProviderError(ctx, p.sttName, "stt")
		observe.Fail(span, err, "transcription failed")
		if errors.Is(err, context.Canceled) {
			log.Debug("pipeline: transcription abandoned")
		} else {
			log.Warn("pipeline: no recognised text", "err", err, "latency", latency)
		}
	case text == "":
		o = outcomeEmpty
		p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "ok")
		log.Info("pipeline: no recognised text", "latency", latency)
	default:
		o = outcomeTranscribed
		p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "ok")
		log.Info("pipeline: transcribed", "text", text, "latency", latency)
	}

	// Release the segmenter before the reply is produced so the next
	// utterance can close out independently.
	if !p.post(event{kind: evHandoffDone, at: p.now(), outcome: o}) {
		return
	}
	if o == outcomeTranscribed && p.onTranscript != nil {
		p.onTranscript(ctx, Transcript{
			Seq:     seq,
			Text:    text,
			Audio:   c.Duration,
			Latency: latency,
		})
	}
}
