// Package dialogue turns recognised text into a spoken reply: a completion
// over a bounded chat history, a text message for the device display and
// Opus audio framed for the device, bracketed by playback signals so the
// echo guard suppresses the microphone while the reply plays.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxgate/internal/journal"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/pipeline"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/audio/opus"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// DefaultHistorySize is the number of chat messages kept per connection.
const DefaultHistorySize = 10

// Output is the device side of a connection.
type Output interface {
	// SendJSON writes one text message.
	SendJSON(ctx context.Context, v any) error

	// SendAudio writes one Opus packet. Framing for the negotiated protocol
	// version is the implementation's concern.
	SendAudio(ctx context.Context, packet []byte) error
}

// Playback receives the start and end of every reply. [*pipeline.Pipeline]
// implements it.
type Playback interface {
	PlaybackStarted()
	PlaybackEnded()
}

var _ Playback = (*pipeline.Pipeline)(nil)

// TextMessage is the JSON sent for every reply.
type TextMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Config holds the responder settings.
type Config struct {
	SystemPrompt string
	HistorySize  int
	Voice        string

	// Format and FrameDuration describe the audio the device plays.
	Format        audio.Format
	FrameDuration time.Duration
}

// Option is a functional option for [New].
type Option func(*Responder)

// WithJournal records every completed turn.
func WithJournal(r journal.Recorder) Option {
	return func(rs *Responder) { rs.journal = r }
}

// WithIdentity sets the device and session the turns are recorded under.
func WithIdentity(deviceID, sessionID string) Option {
	return func(rs *Responder) {
		rs.deviceID = deviceID
		rs.sessionID = sessionID
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(rs *Responder) { rs.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rs *Responder) { rs.log = l }
}

// WithProviderNames labels provider metrics.
func WithProviderNames(llmName, ttsName string) Option {
	return func(rs *Responder) {
		rs.llmName = llmName
		rs.ttsName = ttsName
	}
}

// Responder produces replies for one connection. Replies are serialised:
// a second transcript waits until the previous reply has finished playing.
type Responder struct {
	cfg      Config
	llm      llm.Provider
	tts      tts.Provider
	out      Output
	playback Playback
	conv     audio.FormatConverter

	journal   journal.Recorder
	deviceID  string
	sessionID string
	metrics   *observe.Metrics
	log       *slog.Logger
	llmName   string
	ttsName   string

	mu      sync.Mutex // serialises replies; guards history and enc
	history []llm.Message
	enc     *opus.Encoder

	abortMu sync.Mutex
	abort   context.CancelFunc
}

// New creates a Responder. It fails only if the Opus encoder cannot be
// created for cfg.Format.
func New(cfg Config, l llm.Provider, t tts.Provider, out Output, pb Playback, opts ...Option) (*Responder, error) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Format.SampleRate <= 0 {
		cfg.Format = audio.Format{SampleRate: 16000, Channels: 1}
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 60 * time.Millisecond
	}
	enc, err := opus.NewEncoder(cfg.Format, cfg.FrameDuration)
	if err != nil {
		return nil, fmt.Errorf("dialogue: %w", err)
	}
	r := &Responder{
		cfg:      cfg,
		llm:      l,
		tts:      t,
		out:      out,
		playback: pb,
		conv:     audio.FormatConverter{Target: cfg.Format},
		enc:      enc,
		log:      slog.Default(),
		llmName:  "llm",
		ttsName:  "tts",
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// HandleTranscript is a [pipeline.TranscriptHandler]. Errors are logged.
func (r *Responder) HandleTranscript(ctx context.Context, t pipeline.Transcript) {
	if err := r.respond(ctx, t.Seq, t.Text, t.Audio); err != nil && !errors.Is(err, context.Canceled) {
		observe.LoggerFrom(ctx, r.log).Warn("dialogue: reply failed", "seq", t.Seq, "err", err)
	}
}

// Respond answers text typed or sent directly by the device.
func (r *Responder) Respond(ctx context.Context, text string) error {
	return r.respond(ctx, 0, text, 0)
}

// Abort stops the reply in progress, if any. A reply aborted before its
// audio starts sends nothing further to the device.
func (r *Responder) Abort() {
	r.abortMu.Lock()
	defer r.abortMu.Unlock()
	if r.abort != nil {
		r.abort()
		r.abort = nil
	}
}

// History returns a copy of the chat history, oldest first.
func (r *Responder) History() []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]llm.Message, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Responder) respond(ctx context.Context, seq uint64, text string, utterance time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "dialogue.respond")
	defer span.End()

	replyCtx, cancel := context.WithCancel(ctx)
	r.setAbort(cancel)
	defer func() {
		r.setAbort(nil)
		cancel()
	}()

	err := r.reply(replyCtx, seq, text, utterance)
	if err != nil && replyCtx.Err() != nil && ctx.Err() == nil {
		observe.LoggerFrom(ctx, r.log).Info("dialogue: reply aborted", "seq", seq)
		return nil
	}
	observe.Fail(span, err, "reply failed")
	return err
}

func (r *Responder) setAbort(cancel context.CancelFunc) {
	r.abortMu.Lock()
	r.abort = cancel
	r.abortMu.Unlock()
}

// reply runs one turn. Must hold r.mu.
func (r *Responder) reply(ctx context.Context, seq uint64, text string, utterance time.Duration) error {
	log := observe.LoggerFrom(ctx, r.log)

	reply, err := r.complete(ctx, text)
	if err != nil {
		return err
	}
	if reply == "" {
		log.Info("dialogue: empty reply", "seq", seq)
		return nil
	}

	if r.journal != nil {
		err := r.journal.Record(ctx, journal.Entry{
			DeviceID:  r.deviceID,
			SessionID: r.sessionID,
			Seq:       seq,
			UserText:  text,
			ReplyText: reply,
			Audio:     utterance,
		})
		if err != nil {
			log.Warn("dialogue: journal write failed", "err", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.out.SendJSON(ctx, TextMessage{Type: "text", Data: reply}); err != nil {
		return fmt.Errorf("dialogue: send text: %w", err)
	}

	packets, err := r.synthesize(ctx, reply)
	if err != nil {
		return err
	}
	return r.play(ctx, packets)
}

func (r *Responder) complete(ctx context.Context, text string) (string, error) {
	r.history = append(r.history, llm.Message{Role: llm.RoleUser, Content: text})
	r.trim()

	start := time.Now()
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: r.cfg.SystemPrompt,
		Messages:     append([]llm.Message(nil), r.history...),
	})
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", r.llmName)))
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, r.llmName, "llm", "error")
		r.metrics.RecordProviderError(ctx, r.llmName, "llm")
		return "", fmt.Errorf("dialogue: complete: %w", err)
	}
	r.metrics.RecordProviderRequest(ctx, r.llmName, "llm", "ok")
	if resp == nil || resp.Content == "" {
		return "", nil
	}

	r.history = append(r.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	r.trim()
	return resp.Content, nil
}

// trim drops the oldest messages beyond HistorySize. Must hold r.mu.
func (r *Responder) trim() {
	if n := len(r.history) - r.cfg.HistorySize; n > 0 {
		r.history = append(r.history[:0], r.history[n:]...)
	}
}

func (r *Responder) synthesize(ctx context.Context, text string) ([][]byte, error) {
	start := time.Now()
	speech, err := r.tts.Synthesize(ctx, tts.Request{Text: text, Voice: r.cfg.Voice})
	r.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", r.ttsName)))
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, r.ttsName, "tts", "error")
		r.metrics.RecordProviderError(ctx, r.ttsName, "tts")
		return nil, fmt.Errorf("dialogue: synthesize: %w", err)
	}
	r.metrics.RecordProviderRequest(ctx, r.ttsName, "tts", "ok")
	if speech == nil || len(speech.PCM) == 0 {
		return nil, nil
	}

	pcm := r.conv.Convert(speech.PCM, speech.Format)
	packets, err := r.enc.EncodeAll(pcm)
	if err != nil {
		return nil, fmt.Errorf("dialogue: encode: %w", err)
	}
	return packets, nil
}

func (r *Responder) play(ctx context.Context, packets [][]byte) error {
	if len(packets) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.playback.PlaybackStarted()
	defer r.playback.PlaybackEnded()

	for i, pkt := range packets {
		if err := ctx.Err(); err != nil {
			r.log.Info("dialogue: playback aborted", "sent", i, "total", len(packets))
			return nil
		}
		if err := r.out.SendAudio(ctx, pkt); err != nil {
			return fmt.Errorf("dialogue: send audio: %w", err)
		}
	}
	return nil
}
