package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxgate/internal/dialogue"
	"github.com/MrWong99/voxgate/internal/pipeline"
)

// session is one device connection.
type session struct {
	info   connInfo
	conn   *websocket.Conn
	audio  AudioParams
	log    *slog.Logger
	pipe   *pipeline.Pipeline
	resp   *dialogue.Responder
	router *pipeline.Router
}

var (
	_ dialogue.Output  = (*session)(nil)
	_ pipeline.Handler = (*session)(nil)
)

func newSession(ctx context.Context, s *Server, cfg Config, conn *websocket.Conn, info connInfo, log *slog.Logger) *session {
	sess := &session{
		info:  info,
		conn:  conn,
		audio: cfg.audioParams(),
		log:   log,
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithMetrics(s.metrics),
		pipeline.WithTranscriberName(s.providers.STTName),
	}
	if s.providers.LLM != nil && s.providers.TTS != nil {
		opts = append(opts, pipeline.WithTranscriptHandler(sess.handleTranscript))
	}
	opts = append(opts, s.pipelineOpts...)
	sess.pipe = pipeline.New(ctx, cfg.Pipeline, s.providers.STT, opts...)

	if s.providers.LLM != nil && s.providers.TTS != nil {
		dcfg := cfg.Dialogue
		dcfg.Format = cfg.Pipeline.Format
		dcfg.FrameDuration = cfg.Pipeline.FrameDuration
		dopts := []dialogue.Option{
			dialogue.WithLogger(log),
			dialogue.WithMetrics(s.metrics),
			dialogue.WithIdentity(info.deviceID, info.sessionID),
			dialogue.WithProviderNames(s.providers.LLMName, s.providers.TTSName),
		}
		if s.journal != nil {
			dopts = append(dopts, dialogue.WithJournal(s.journal))
		}
		resp, err := dialogue.New(dcfg, s.providers.LLM, s.providers.TTS, sess, sess.pipe, dopts...)
		if err != nil {
			log.Error("gateway: replies disabled for connection", "err", err)
		} else {
			sess.resp = resp
		}
	}

	sess.router = pipeline.NewRouter(info.version, sess.pipe, sess, s.metrics, log)
	return sess
}

func (sess *session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := sess.conn.Read(ctx)
		if err != nil {
			return err
		}
		kind := pipeline.KindOther
		switch typ {
		case websocket.MessageBinary:
			kind = pipeline.KindBinary
		case websocket.MessageText:
			kind = pipeline.KindText
		}
		sess.router.Route(ctx, pipeline.Message{Kind: kind, Data: data})
	}
}

func (sess *session) close() {
	if sess.resp != nil {
		sess.resp.Abort()
	}
	sess.pipe.Close()
	_ = sess.conn.Close(websocket.StatusNormalClosure, "")
}

// handleTranscript runs on the pipeline's handoff goroutine; the responder
// is assigned before the read loop starts.
func (sess *session) handleTranscript(ctx context.Context, t pipeline.Transcript) {
	if sess.resp == nil {
		return
	}
	sess.resp.HandleTranscript(ctx, t)
}

// ── dialogue.Output ──

// SendJSON implements dialogue.Output.
func (sess *session) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gateway: marshal: %w", err)
	}
	return sess.conn.Write(ctx, websocket.MessageText, data)
}

// SendAudio implements dialogue.Output.
func (sess *session) SendAudio(ctx context.Context, packet []byte) error {
	msg, err := sess.info.version.Wrap(packet)
	if err != nil {
		return err
	}
	return sess.conn.Write(ctx, websocket.MessageBinary, msg)
}

// ── Control messages ──

// HandleMessage implements pipeline.Handler.
func (sess *session) HandleMessage(ctx context.Context, msg pipeline.Message) error {
	if msg.Kind != pipeline.KindText {
		return fmt.Errorf("gateway: unsupported message kind %s", msg.Kind)
	}
	var c control
	if err := json.Unmarshal(msg.Data, &c); err != nil {
		return fmt.Errorf("gateway: decode control message: %w", err)
	}

	switch c.Type {
	case TypeHello:
		return sess.hello(ctx, c)
	case TypeListen:
		sess.listen(c)
		return nil
	case TypeAbort:
		sess.log.Info("gateway: abort requested", "reason", c.Reason)
		if sess.resp != nil {
			sess.resp.Abort()
		}
		return nil
	case TypeText:
		if c.Data == "" || sess.resp == nil {
			return nil
		}
		go func() {
			if err := sess.resp.Respond(ctx, c.Data); err != nil && ctx.Err() == nil {
				sess.log.Warn("gateway: text reply failed", "err", err)
			}
		}()
		return nil
	default:
		return fmt.Errorf("gateway: unknown message type %q", c.Type)
	}
}

func (sess *session) hello(ctx context.Context, c control) error {
	if p := c.AudioParams; p != nil {
		sess.log.Info("gateway: device hello",
			"format", p.Format,
			"sample_rate", p.SampleRate,
			"channels", p.Channels,
			"frame_duration", p.FrameDuration,
			"features", c.Features)
		if p.audioFormat() != sess.audio.audioFormat() || (p.FrameDuration != 0 && p.FrameDuration != sess.audio.FrameDuration) {
			sess.log.Warn("gateway: device audio params differ from server, using server params",
				"server_sample_rate", sess.audio.SampleRate,
				"server_frame_duration", sess.audio.FrameDuration)
		}
	}
	return sess.SendJSON(ctx, Welcome{
		Type:        TypeHello,
		Transport:   "websocket",
		SessionID:   sess.info.sessionID,
		AudioParams: sess.audio,
	})
}

func (sess *session) listen(c control) {
	switch c.State {
	case ListenStart:
		sess.pipe.ListenStarted()
		sess.log.Info("gateway: device started listening", "mode", c.Mode)
	case ListenStop:
		sess.log.Info("gateway: device stopped listening")
	case ListenDetect:
		sess.log.Info("gateway: wake word detected", "text", c.Text)
	default:
		sess.log.Debug("gateway: listen message", "state", c.State, "mode", c.Mode)
	}
}
