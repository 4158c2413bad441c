package silence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTap serves a settable PCM block to the monitor.
type fakeTap struct {
	mu      sync.Mutex
	samples []int16
}

func (t *fakeTap) Samples() []int16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

func (t *fakeTap) setLoud() {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := make([]int16, 320)
	for i := range s {
		s[i] = 8000
	}
	t.samples = s
}

func (t *fakeTap) setQuiet() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = make([]int16, 320)
}

func testConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		QuietDuration:  80 * time.Millisecond,
		SampleInterval: 5 * time.Millisecond,
	}
}

func waitForEvent(t *testing.T, events <-chan struct{}, within time.Duration) bool {
	t.Helper()
	select {
	case <-events:
		return true
	case <-time.After(within):
		return false
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		quiet   bool
	}{
		{"empty", nil, true},
		{"zeros", make([]int16, 320), true},
		{"low noise", []int16{100, -100, 100, -100}, true},
		{"speech", []int16{8000, -8000, 8000, -8000}, false},
		{"full scale", []int16{32767, -32767}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := RMS(tt.samples)
			assert.GreaterOrEqual(t, level, 0.0)
			assert.LessOrEqual(t, level, 1.0)
			if tt.quiet {
				assert.Less(t, level, DefaultThreshold)
			} else {
				assert.GreaterOrEqual(t, level, DefaultThreshold)
			}
		})
	}
}

func TestSustainedSilenceFiresOnce(t *testing.T) {
	tap := &fakeTap{}
	tap.setQuiet()

	events := make(chan struct{}, 4)
	m := NewMonitor(testConfig(), func() { events <- struct{}{} })
	m.Start(tap)
	defer m.Stop()

	require.True(t, waitForEvent(t, events, time.Second), "expected a sustained-silence event")

	// The monitor stops sampling after the event; continued quiet must not
	// produce a second one.
	assert.False(t, waitForEvent(t, events, 200*time.Millisecond), "monitor fired twice")
	assert.False(t, m.Active())
}

func TestLoudSampleCancelsWindow(t *testing.T) {
	tap := &fakeTap{}
	tap.setLoud()

	events := make(chan struct{}, 1)
	cfg := testConfig()
	cfg.QuietDuration = 150 * time.Millisecond
	m := NewMonitor(cfg, func() { events <- struct{}{} })
	m.Start(tap)
	defer m.Stop()

	// Alternate quiet and loud faster than the quiet duration: the window
	// keeps getting cancelled and no event may fire.
	for i := 0; i < 4; i++ {
		tap.setQuiet()
		time.Sleep(60 * time.Millisecond)
		tap.setLoud()
		time.Sleep(20 * time.Millisecond)
	}
	assert.False(t, waitForEvent(t, events, 50*time.Millisecond), "event fired despite loud interruptions")

	// Once the signal goes quiet for good the event arrives.
	tap.setQuiet()
	assert.True(t, waitForEvent(t, events, time.Second))
}

func TestStopCancelsPendingWindow(t *testing.T) {
	tap := &fakeTap{}
	tap.setQuiet()

	events := make(chan struct{}, 1)
	cfg := testConfig()
	cfg.QuietDuration = 200 * time.Millisecond
	m := NewMonitor(cfg, func() { events <- struct{}{} })
	m.Start(tap)

	// Stop mid-window, before the quiet duration elapses.
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	assert.False(t, waitForEvent(t, events, 400*time.Millisecond), "event observed after Stop")
}

func TestStopIsIdempotent(t *testing.T) {
	tap := &fakeTap{}
	tap.setQuiet()

	m := NewMonitor(testConfig(), nil)
	m.Start(tap)
	m.Stop()
	m.Stop()
	m.Stop()
	assert.False(t, m.Active())
}

func TestRestartAfterStopArmsAgain(t *testing.T) {
	tap := &fakeTap{}
	tap.setQuiet()

	events := make(chan struct{}, 2)
	m := NewMonitor(testConfig(), func() { events <- struct{}{} })

	m.Start(tap)
	require.True(t, waitForEvent(t, events, time.Second))
	m.Stop()

	// A fresh cycle gets a fresh event.
	m.Start(tap)
	require.True(t, waitForEvent(t, events, time.Second))
	m.Stop()
}

func TestDoubleStartIsNoOp(t *testing.T) {
	tap := &fakeTap{}
	tap.setQuiet()

	events := make(chan struct{}, 4)
	m := NewMonitor(testConfig(), func() { events <- struct{}{} })
	m.Start(tap)
	m.Start(tap)
	defer m.Stop()

	require.True(t, waitForEvent(t, events, time.Second))
	assert.False(t, waitForEvent(t, events, 200*time.Millisecond), "second loop produced a duplicate event")
}
