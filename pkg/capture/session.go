package capture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/voice_capture/pkg/silence"
)

// AudioChunk is one opaque encoded fragment produced at a fixed interval
// while recording. Chunks are concatenated in arrival order to form the
// utterance payload.
type AudioChunk []byte

// UtterancePayload is the finalized binary blob for one utterance. Immutable
// once created; ownership transfers to whoever transmits it.
type UtterancePayload struct {
	ID         uuid.UUID
	Data       []byte
	CapturedAt time.Time
}

// Config holds capture session timing. Zero values fall back to defaults.
type Config struct {
	// ChunkInterval is how often accumulated PCM is encoded into a chunk.
	ChunkInterval time.Duration // default 100ms

	// MonitorDelay postpones the silence monitor after Start so the encoder
	// pipeline stabilizes before loudness is judged.
	MonitorDelay time.Duration // default 100ms

	Silence silence.Config
}

func (c *Config) applyDefaults() {
	if c.ChunkInterval == 0 {
		c.ChunkInterval = 100 * time.Millisecond
	}
	if c.MonitorDelay == 0 {
		c.MonitorDelay = 100 * time.Millisecond
	}
}

// Session owns the microphone source and the chunk encoder for one utterance
// at a time. Start acquires the device and begins chunking; Stop flushes the
// encoder, releases everything, and delivers exactly one UtterancePayload per
// Start/Stop cycle. Both are idempotent.
type Session struct {
	cfg     Config
	source  Source
	enc     ChunkEncoder
	monitor *silence.Monitor

	mu        sync.Mutex
	active    bool
	done      chan struct{}
	flushed   chan struct{}
	armTimer  *time.Timer
	chunks    []AudioChunk
	startedAt time.Time

	onPayload func(UtterancePayload)
	onSilence func()
}

// NewSession creates a capture session around the given source and encoder.
func NewSession(source Source, enc ChunkEncoder, cfg Config) *Session {
	cfg.applyDefaults()
	s := &Session{cfg: cfg, source: source, enc: enc}
	s.monitor = silence.NewMonitor(cfg.Silence, s.silenceDetected)
	return s
}

// OnPayload registers the consumer of finalized utterance payloads.
func (s *Session) OnPayload(fn func(UtterancePayload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPayload = fn
}

// OnSilence registers the consumer of the sustained-silence event.
func (s *Session) OnSilence(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSilence = fn
}

func (s *Session) silenceDetected() {
	s.mu.Lock()
	fn := s.onSilence
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Active reports whether a capture is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start acquires the microphone and begins encoding. A denied or unavailable
// device is returned as a recoverable error and nothing is started. Calling
// Start while already recording is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	if err := s.source.Open(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("open microphone: %w", err)
	}

	s.active = true
	s.chunks = nil
	s.startedAt = time.Now()
	s.done = make(chan struct{})
	s.flushed = make(chan struct{})
	done, flushed := s.done, s.flushed

	s.armTimer = time.AfterFunc(s.cfg.MonitorDelay, func() {
		// Check and start under one critical section: a Stop that raced the
		// timer has either already flipped active (we no-op) or is about to
		// and will then stop the monitor we just started.
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active {
			s.monitor.Start(s.source)
		}
	})
	s.mu.Unlock()

	go s.encodeLoop(done, flushed)
	return nil
}

// Stop halts the encoder, stops the silence monitor, releases the device, and
// delivers the finalized payload. Idempotent; the payload is delivered once
// per Start/Stop cycle, after the encoder confirms its final flush.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	if s.armTimer != nil {
		s.armTimer.Stop()
	}
	close(s.done)
	flushed := s.flushed
	s.mu.Unlock()

	s.monitor.Stop()
	<-flushed
	if err := s.source.Close(); err != nil {
		log.Printf("[Capture] closing microphone: %v", err)
	}

	s.mu.Lock()
	chunks := s.chunks
	s.chunks = nil
	startedAt := s.startedAt
	onPayload := s.onPayload
	s.mu.Unlock()

	var data []byte
	for _, c := range chunks {
		data = append(data, c...)
	}
	if onPayload != nil {
		onPayload(UtterancePayload{ID: uuid.New(), Data: data, CapturedAt: startedAt})
	}
}

func (s *Session) encodeLoop(done, flushed chan struct{}) {
	defer close(flushed)

	ticker := time.NewTicker(s.cfg.ChunkInterval)
	defer ticker.Stop()

	frames := s.source.Frames()
	var pcm []int16

	for {
		select {
		case <-done:
			s.encodeChunk(pcm)
			final, err := s.enc.Flush()
			if err != nil {
				log.Printf("[Capture] final flush failed: %v", err)
				return
			}
			if len(final) > 0 {
				s.appendChunk(final)
			}
			return

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			pcm = append(pcm, frame...)

		case <-ticker.C:
			s.encodeChunk(pcm)
			pcm = pcm[:0]
		}
	}
}

func (s *Session) encodeChunk(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	chunk, err := s.enc.EncodeChunk(pcm)
	if err != nil {
		log.Printf("[Capture] chunk encode failed: %v", err)
		return
	}
	if len(chunk) > 0 {
		s.appendChunk(chunk)
	}
}

func (s *Session) appendChunk(chunk []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, AudioChunk(chunk))
	s.mu.Unlock()
}
