package speech

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	playbackRate      = 22050 // matches the synthesizer's pcm_22050 output
	playbackFrameSize = 1024
)

// Player renders PCM chunks (signed 16-bit LE mono) through the default
// output device via PortAudio.
type Player struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	open    bool
	buf     []int16
	pending []int16
}

// NewPlayer creates a player. The device is not touched until Open.
func NewPlayer() *Player {
	return &Player{}
}

// Open initializes PortAudio and starts the output stream.
func (p *Player) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	p.buf = make([]int16, playbackFrameSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(playbackRate), playbackFrameSize, p.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start output stream: %w", err)
	}

	p.stream = stream
	p.open = true
	return nil
}

// Play queues one PCM chunk for output. Complete device frames are written
// immediately; the remainder waits for the next chunk.
func (p *Player) Play(pcm []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		p.pending = append(p.pending, int16(uint16(pcm[i])|uint16(pcm[i+1])<<8))
	}
	for len(p.pending) >= playbackFrameSize {
		copy(p.buf, p.pending[:playbackFrameSize])
		p.pending = p.pending[playbackFrameSize:]
		if err := p.stream.Write(); err != nil {
			// Underflow is routine when chunks arrive in bursts.
			continue
		}
	}
}

// Close stops playback and releases the device. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil
	}
	p.open = false
	p.pending = nil

	err := p.stream.Stop()
	if cerr := p.stream.Close(); err == nil {
		err = cerr
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	p.stream = nil
	return err
}
