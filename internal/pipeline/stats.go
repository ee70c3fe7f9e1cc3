package pipeline

import "log/slog"

// Stats are the per-connection diagnostic counters. They are reported in logs
// and snapshots and never influence routing decisions.
type Stats struct {
	// Received counts every binary frame handed to the pipeline.
	Received      uint64
	ReceivedBytes uint64

	// Suppressed counts frames dropped by the echo guard.
	Suppressed uint64

	// Frames and Bytes count audio frames that passed the gate.
	Frames uint64
	Bytes  uint64

	// ListenFrames and ListenBytes restart at every listen cycle.
	ListenFrames uint64
	ListenBytes  uint64

	// Classified counts frames that reached voice detection; Voiced those
	// classified as speech.
	Classified uint64
	Voiced     uint64

	DecodeErrors uint64

	// Handoff outcomes.
	Transcribed uint64
	Empty       uint64
	Failed      uint64
	Undecodable uint64
}

// counters wraps Stats with the periodic log cadence.
type counters struct {
	Stats
	logEvery       uint64
	listenLogEvery uint64
}

// admit records one gated frame and emits the periodic diagnostics.
func (c *counters) admit(size int, log *slog.Logger) {
	c.Frames++
	c.Bytes += uint64(size)
	c.ListenFrames++
	c.ListenBytes += uint64(size)

	if c.listenLogEvery > 0 && c.ListenFrames%c.listenLogEvery == 0 {
		log.Info("pipeline: frames since listen",
			"frames", c.ListenFrames,
			"bytes", c.ListenBytes)
	}
	if c.logEvery > 0 && c.Frames%c.logEvery == 0 {
		log.Info("pipeline: frames received",
			"frames", c.Frames,
			"bytes", c.Bytes,
			"suppressed", c.Suppressed,
			"voiced", c.Voiced)
	}
}

func (c *counters) listenStarted() {
	c.ListenFrames = 0
	c.ListenBytes = 0
}
