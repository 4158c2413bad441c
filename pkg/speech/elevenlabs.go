package speech

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
)

const elevenLabsURL = "https://api.elevenlabs.io/v1"

// PlaybackFunc receives synthesized PCM chunks (signed 16-bit LE, 22050Hz mono).
type PlaybackFunc func(pcm []byte)

// ElevenLabsConfig holds TTS client configuration.
type ElevenLabsConfig struct {
	APIKey   string
	VoiceID  string // e.g., "21m00Tcm4TlvDq8ikWAM" (Rachel)
	Model    string // e.g., "eleven_turbo_v2_5"
	Playback PlaybackFunc
}

// ElevenLabs synthesizes queued responses with the ElevenLabs streaming API
// and hands PCM chunks to the playback callback. One response at a time, in
// enqueue order.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client

	mu      sync.Mutex
	started bool
	queue   chan string
	done    chan struct{}
}

// NewElevenLabs creates an ElevenLabs-backed synthesizer.
func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.VoiceID == "" {
		cfg.VoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel - default voice
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_turbo_v2_5" // Fast model
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Start launches the synthesis loop.
func (e *ElevenLabs) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	if e.cfg.APIKey == "" {
		return fmt.Errorf("elevenlabs: missing API key")
	}
	e.started = true
	e.queue = make(chan string, 16)
	e.done = make(chan struct{})
	go e.loop(e.queue, e.done)
	return nil
}

// Enqueue schedules text for synthesis. Dropped with a diagnostic when the
// queue is full or the synthesizer is not running.
func (e *ElevenLabs) Enqueue(text string) {
	e.mu.Lock()
	started, queue := e.started, e.queue
	e.mu.Unlock()

	if !started {
		log.Printf("[Speech] dropping response: synthesizer not running")
		return
	}
	select {
	case queue <- text:
	default:
		log.Printf("[Speech] dropping response: queue full")
	}
}

// Stop halts the synthesis loop. Idempotent.
func (e *ElevenLabs) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	e.started = false
	close(e.done)
}

func (e *ElevenLabs) loop(queue chan string, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case text := <-queue:
			if err := e.synthesize(text, done); err != nil {
				log.Printf("[Speech] synthesis failed: %v", err)
			}
		}
	}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

// synthesize streams one response as PCM chunks to the playback callback.
func (e *ElevenLabs) synthesize(text string, done chan struct{}) error {
	// output_format must be a query parameter, not in the body
	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=pcm_22050", elevenLabsURL, e.cfg.VoiceID)

	reqBody := ttsRequest{
		Text:    text,
		ModelID: e.cfg.Model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           1.0,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return nil
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 && e.cfg.Playback != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			e.cfg.Playback(chunk)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}
