package capture

import "example.com/voice_capture/pkg/silence"

// Default microphone stream parameters: 16kHz mono, 20ms frames.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFrameSize  = 320
)

// SourceConfig configures a microphone stream.
//
// The cleanup knobs mirror the usual platform capture options. They default
// to off: noise suppression and gain normalization flatten the quiet/loud
// contrast the RMS silence detector depends on, so raw signal fidelity wins
// over encoder-side cleanup. Sources that cannot apply them deliver the raw
// device signal either way.
type SourceConfig struct {
	SampleRate int // samples per second, default 16000
	Channels   int // default 1 (mono)
	FrameSize  int // samples per channel per frame, default 320 (20ms)

	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

func (c *SourceConfig) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.FrameSize == 0 {
		c.FrameSize = DefaultFrameSize
	}
}

// Source delivers live PCM frames from a microphone. It is exclusively owned
// by one CaptureSession per Open/Close cycle. The embedded silence.Tap is a
// read-only view of the most recent frame, borrowed by the silence monitor,
// which must never close the source itself.
type Source interface {
	// Open acquires the device. Denied or unavailable microphones surface
	// here as a recoverable error.
	Open() error

	// Frames returns the channel of captured PCM frames. Valid after Open.
	Frames() <-chan []int16

	// Close stops capture and releases the device. Idempotent.
	Close() error

	silence.Tap
}
