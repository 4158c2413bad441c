package silence

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultThreshold separates quiet from loud samples on the normalized
	// [0,1] RMS scale. Matches a raw microphone signal with encoder-side
	// cleanup (noise suppression, auto gain) disabled.
	DefaultThreshold = 0.01

	// DefaultQuietDuration is how long the signal must stay quiet before the
	// monitor decides the utterance has ended.
	DefaultQuietDuration = 2 * time.Second

	// DefaultSampleInterval approximates a display-refresh sampling rate.
	DefaultSampleInterval = 16 * time.Millisecond
)

// Tap exposes the most recent block of PCM samples from an audio stream.
// The monitor only reads from it and never releases the underlying stream.
type Tap interface {
	Samples() []int16
}

// Config holds silence detection settings. Zero values fall back to defaults.
type Config struct {
	Threshold      float64
	QuietDuration  time.Duration
	SampleInterval time.Duration
}

// Monitor samples a live audio stream and raises a single sustained-silence
// event once the signal has stayed below the loudness threshold for the
// configured quiet duration. One event per Start/Stop cycle; a loud sample
// cancels any pending window and the next quiet sample re-arms it.
type Monitor struct {
	cfg       Config
	onSilence func()

	mu     sync.Mutex
	active bool
	done   chan struct{}
}

// NewMonitor creates a monitor that invokes onSilence when sustained silence
// is detected.
func NewMonitor(cfg Config, onSilence func()) *Monitor {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.QuietDuration == 0 {
		cfg.QuietDuration = DefaultQuietDuration
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	return &Monitor{cfg: cfg, onSilence: onSilence}
}

// Start attaches the monitor to the given tap and begins the sampling loop.
// Calling Start while already running is a no-op.
func (m *Monitor) Start(tap Tap) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return
	}
	m.active = true
	m.done = make(chan struct{})
	go m.loop(tap, m.done)
}

// Stop halts the sampling loop and cancels any pending silence window.
// Idempotent and safe to call concurrently with an in-flight sample.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.active = false
	close(m.done)
}

// Active reports whether the sampling loop is running.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Monitor) loop(tap Tap, done chan struct{}) {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	// Zero quietSince means no pending window: the last sample was loud
	// (or the loop just started and nothing quiet has been seen yet).
	var quietSince time.Time

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if RMS(tap.Samples()) >= m.cfg.Threshold {
				quietSince = time.Time{}
				continue
			}
			if quietSince.IsZero() {
				quietSince = now
				continue
			}
			if now.Sub(quietSince) < m.cfg.QuietDuration {
				continue
			}

			// The quiet window held. Claim the event under the lock so a
			// concurrent Stop either wins (no event) or observes the
			// monitor already stopped.
			m.mu.Lock()
			fire := m.active
			m.active = false
			m.mu.Unlock()
			if fire && m.onSilence != nil {
				m.onSilence()
			}
			return
		}
	}
}

// RMS computes the root-mean-square loudness of a block of signed 16-bit
// samples, normalized to [0,1]. An empty block is silent.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}
