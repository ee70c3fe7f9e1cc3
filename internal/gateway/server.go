// Package gateway serves the device WebSocket endpoint. Each connection gets
// its own audio pipeline and responder; binary messages are audio frames and
// text messages are JSON control messages.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/voxgate/internal/dialogue"
	"github.com/MrWong99/voxgate/internal/journal"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/pipeline"
	"github.com/MrWong99/voxgate/internal/protocol"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// DefaultReadLimit bounds a single inbound message.
const DefaultReadLimit = 64 << 10

// Config is the per-connection configuration. Connections take a snapshot
// when they open; [Server.SetConfig] affects only later connections.
type Config struct {
	Pipeline pipeline.Config
	Dialogue dialogue.Config

	// ReadLimit bounds a single inbound message. Default 64 KiB.
	ReadLimit int64
}

// audioParams is what the welcome message advertises.
func (c Config) audioParams() AudioParams {
	return AudioParams{
		Format:        "opus",
		SampleRate:    c.Pipeline.Format.SampleRate,
		Channels:      c.Pipeline.Format.Channels,
		FrameDuration: int(c.Pipeline.FrameDuration / time.Millisecond),
	}
}

// Providers are the shared backends used by every connection. They must be
// safe for concurrent use. LLM and TTS may be nil, in which case transcripts
// are logged but not answered.
type Providers struct {
	STT     stt.Provider
	STTName string
	LLM     llm.Provider
	LLMName string
	TTS     tts.Provider
	TTSName string
}

// Option is a functional option for [NewServer].
type Option func(*Server)

// WithJournal records dialogue turns.
func WithJournal(j journal.Recorder) Option {
	return func(s *Server) { s.journal = j }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithPipelineOptions appends options applied to every connection pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Server) { s.pipelineOpts = append(s.pipelineOpts, opts...) }
}

// WithAcceptOptions sets the WebSocket accept options.
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(s *Server) { s.acceptOpts = o }
}

// Server is an http.Handler for device connections.
type Server struct {
	cfg          atomic.Pointer[Config]
	providers    Providers
	journal      journal.Recorder
	metrics      *observe.Metrics
	log          *slog.Logger
	pipelineOpts []pipeline.Option
	acceptOpts   *websocket.AcceptOptions

	base   context.Context
	cancel context.CancelFunc
	active atomic.Int64

	// mu orders wg.Add against Shutdown so no connection is added once
	// Wait may have started.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a Server. p.STT must not be nil.
func NewServer(cfg Config, p Providers, opts ...Option) (*Server, error) {
	if p.STT == nil {
		return nil, errors.New("gateway: transcription provider is required")
	}
	s := &Server{
		providers: p,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.SetConfig(cfg)
	s.base, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// SetConfig replaces the configuration used for new connections.
func (s *Server) SetConfig(cfg Config) {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	s.cfg.Store(&cfg)
}

// Config returns the configuration used for new connections.
func (s *Server) Config() Config { return *s.cfg.Load() }

// Active returns the number of open device connections.
func (s *Server) Active() int64 { return s.active.Load() }

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	version, err := protocol.ParseVersion(r.Header.Get(HeaderProtocolVersion))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, s.acceptOpts)
	if err != nil {
		s.log.Warn("gateway: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	deviceID := r.Header.Get(HeaderDeviceID)
	if deviceID == "" {
		deviceID = "unknown"
	}
	clientID := r.Header.Get(HeaderClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	s.serve(conn, connInfo{
		deviceID:  deviceID,
		clientID:  clientID,
		sessionID: uuid.NewString(),
		remote:    r.RemoteAddr,
		version:   version,
	})
}

// Shutdown stops accepting connections, closes the open ones and waits for
// them to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway: shutdown: %w", ctx.Err())
	}
}

// track registers a connection with the shutdown wait group. It returns
// false once Shutdown has been called.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

type connInfo struct {
	deviceID  string
	clientID  string
	sessionID string
	remote    string
	version   protocol.Version
}

func (s *Server) serve(conn *websocket.Conn, info connInfo) {
	cfg := s.Config()
	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	log := s.log.With(
		"device_id", info.deviceID,
		"session_id", info.sessionID,
		"remote", info.remote,
	)
	conn.SetReadLimit(cfg.ReadLimit)

	s.active.Add(1)
	s.metrics.ActiveConnections.Add(ctx, 1)
	defer func() {
		s.active.Add(-1)
		s.metrics.ActiveConnections.Add(context.Background(), -1)
	}()

	sess := newSession(ctx, s, cfg, conn, info, log)
	defer sess.close()

	log.Info("gateway: device connected", "protocol", int(info.version), "client_id", info.clientID)
	err := sess.readLoop(ctx)
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("gateway: device disconnected")
	case ctx.Err() != nil:
		log.Info("gateway: connection closed by server")
	default:
		log.Warn("gateway: connection lost", "err", err)
	}
}
