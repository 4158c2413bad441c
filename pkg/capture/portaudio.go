package capture

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// MicSource captures PCM frames from the default system input device via
// PortAudio. It delivers the raw device signal; the SourceConfig cleanup
// knobs are accepted for API parity but PortAudio applies no DSP.
type MicSource struct {
	cfg SourceConfig

	mu     sync.Mutex
	stream *portaudio.Stream
	open   bool
	done   chan struct{}
	frames chan []int16
	buf    []int16

	tapMu  sync.RWMutex
	latest []int16
}

// NewMicSource creates a microphone source. The device is not touched until
// Open is called.
func NewMicSource(cfg SourceConfig) *MicSource {
	cfg.applyDefaults()
	return &MicSource{cfg: cfg}
}

// Open initializes PortAudio and starts reading from the default input
// device. A missing or busy device is a recoverable error for the caller.
func (s *MicSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	s.buf = make([]int16, s.cfg.FrameSize*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(s.cfg.Channels, 0, float64(s.cfg.SampleRate), s.cfg.FrameSize, s.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}

	s.stream = stream
	s.open = true
	s.done = make(chan struct{})
	s.frames = make(chan []int16, 64)
	go s.readLoop(stream, s.done)

	return nil
}

// readLoop owns its stream reference for its whole lifetime, like done: Close
// may null the field while a read is still in flight.
func (s *MicSource) readLoop(stream *portaudio.Stream, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-done:
				// Expected: Close stopped the stream under us.
			default:
				log.Printf("[Mic] read error: %v", err)
			}
			return
		}

		frame := make([]int16, len(s.buf))
		copy(frame, s.buf)

		s.tapMu.Lock()
		s.latest = frame
		s.tapMu.Unlock()

		select {
		case s.frames <- frame:
		case <-done:
			return
		}
	}
}

// Frames returns the captured frame channel. Valid after Open.
func (s *MicSource) Frames() <-chan []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Samples returns the most recent captured frame. Read-only tap for the
// silence monitor.
func (s *MicSource) Samples() []int16 {
	s.tapMu.RLock()
	defer s.tapMu.RUnlock()
	return s.latest
}

// Close stops capture and releases the device. Idempotent.
func (s *MicSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false
	close(s.done)

	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	s.stream = nil
	return err
}
