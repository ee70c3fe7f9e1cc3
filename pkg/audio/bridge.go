package audio

import (
	"fmt"
	"log/slog"
	"time"
)

// Container is a packaged utterance ready for transcription.
type Container struct {
	// WAV is the complete RIFF/WAV file.
	WAV []byte

	// Format is the container format (always mono 16-bit).
	Format Format

	// Frames is the number of frames whose PCM made it into the container.
	Frames int

	// Skipped counts frames dropped because they carried no PCM.
	Skipped int

	// Duration is the audio length of the container.
	Duration time.Duration
}

// Bridge assembles decoded frame blocks into a WAV container. Device audio in
// any rate or channel layout is converted to mono at the container rate.
// A Bridge belongs to one session.
type Bridge struct {
	source Format
	conv   FormatConverter
	log    *slog.Logger
}

// NewBridge returns a Bridge converting from the device format source into a
// mono container at containerRate. A non-positive containerRate keeps the
// source rate.
func NewBridge(source Format, containerRate int, log *slog.Logger) *Bridge {
	if containerRate <= 0 {
		containerRate = source.SampleRate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		source: source,
		conv:   FormatConverter{Target: Format{SampleRate: containerRate, Channels: 1}},
		log:    log,
	}
}

// Assemble concatenates the PCM of frames in order and wraps it in a WAV
// container. Frames without PCM are skipped and logged; the batch is never
// aborted because of one bad frame. If no frame carries PCM,
// [ErrNoDecodableFrames] is returned.
func (b *Bridge) Assemble(frames []Frame) (*Container, error) {
	var (
		pcm     []byte
		used    int
		skipped int
	)
	for i, fr := range frames {
		if len(fr.PCM) == 0 {
			skipped++
			b.log.Debug("audio: skipping undecodable frame", "index", i, "payload_bytes", len(fr.Payload))
			continue
		}
		pcm = append(pcm, fr.PCM...)
		used++
	}
	if used == 0 {
		return nil, fmt.Errorf("audio: assemble %d frames: %w", len(frames), ErrNoDecodableFrames)
	}
	if skipped > 0 {
		b.log.Warn("audio: utterance contained undecodable frames", "skipped", skipped, "used", used)
	}

	pcm = b.conv.Convert(pcm, b.source)
	target := b.conv.Target
	var dur time.Duration
	if bps := target.BytesPerSecond(); bps > 0 {
		dur = time.Duration(len(pcm)) * time.Second / time.Duration(bps)
	}
	return &Container{
		WAV:      EncodeWAV(pcm, target),
		Format:   target,
		Frames:   used,
		Skipped:  skipped,
		Duration: dur,
	}, nil
}
