package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/protocol"
)

// Kind is the transport-level type of an inbound message.
type Kind int

const (
	// KindBinary carries one framed audio packet.
	KindBinary Kind = iota
	// KindText carries a JSON control message.
	KindText
	// KindOther is anything else the transport delivers.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one inbound transport message.
type Message struct {
	Kind Kind
	Data []byte
}

// FrameSink accepts unframed audio payloads. [*Pipeline] implements it.
type FrameSink interface {
	HandleFrame(payload []byte)
}

// Handler is the generic entry point for every message that is not audio.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, msg Message) error

// HandleMessage implements [Handler].
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error { return f(ctx, msg) }

var _ FrameSink = (*Pipeline)(nil)

// Router dispatches inbound messages of one connection. Binary messages are
// unframed according to the negotiated protocol version and forwarded to the
// sink; everything else goes to the generic handler. Route never fails: bad
// frames are dropped and handler errors or panics are logged.
type Router struct {
	version protocol.Version
	sink    FrameSink
	generic Handler
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewRouter creates a Router. A nil metrics uses observe.DefaultMetrics and a
// nil logger uses slog.Default.
func NewRouter(v protocol.Version, sink FrameSink, generic Handler, m *observe.Metrics, log *slog.Logger) *Router {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{version: v, sink: sink, generic: generic, metrics: m, log: log}
}

// Version returns the framing version used for binary messages.
func (r *Router) Version() protocol.Version { return r.version }

// Route dispatches msg.
func (r *Router) Route(ctx context.Context, msg Message) {
	if msg.Kind == KindBinary {
		_, payload, err := r.version.Unwrap(msg.Data)
		if err != nil {
			r.metrics.RecordDrop(ctx, "header")
			r.log.Debug("router: dropping frame", "bytes", len(msg.Data), "err", err)
			return
		}
		r.sink.HandleFrame(payload)
		return
	}
	r.dispatch(ctx, msg)
}

func (r *Router) dispatch(ctx context.Context, msg Message) {
	if r.generic == nil {
		r.log.Debug("router: no handler for message", "kind", msg.Kind)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("router: handler panicked", "kind", msg.Kind, "panic", rec)
		}
	}()
	if err := r.generic.HandleMessage(ctx, msg); err != nil {
		r.log.Warn("router: handler failed", "kind", msg.Kind, "err", err)
	}
}
