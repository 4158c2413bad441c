// Package recorder coordinates the capture pipeline with the duplex channel:
// a small state machine driven by the user toggle, the sustained-silence
// event, and inbound server frames.
package recorder

import (
	"encoding/base64"
	"log"
	"sync"
	"time"

	"example.com/voice_capture/pkg/capture"
	"example.com/voice_capture/pkg/protocol"
	"example.com/voice_capture/pkg/session"
	"example.com/voice_capture/pkg/speech"
)

// State is the recording lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingPermission
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPermission:
		return "awaiting permission"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Connection is the outbound half of the duplex channel the controller needs.
type Connection interface {
	Send(protocol.Frame)
	State() session.State
}

// Capture is the microphone pipeline the controller drives.
type Capture interface {
	Start() error
	Stop()
}

// ConversationSink receives each completed transcription exchange.
type ConversationSink func(userText, assistantText string)

// StatusSink receives human-readable status updates for display.
type StatusSink func(status string)

// Controller owns the recording state machine. All transitions happen under
// one mutex; callbacks are invoked outside it.
type Controller struct {
	conn     Connection
	pipeline Capture

	mu    sync.Mutex
	state State

	onConversation ConversationSink
	onStatus       StatusSink
	synth          speech.Synthesizer
}

// New creates a controller around the connection and capture pipeline.
func New(conn Connection, pipeline Capture) *Controller {
	return &Controller{conn: conn, pipeline: pipeline, state: StateIdle}
}

// OnConversation registers the consumer of completed exchanges.
func (c *Controller) OnConversation(fn ConversationSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConversation = fn
}

// OnStatus registers the consumer of status updates.
func (c *Controller) OnStatus(fn StatusSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// WithSynthesizer enables spoken playback of assistant responses.
func (c *Controller) WithSynthesizer(s speech.Synthesizer) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synth = s
	return c
}

// State returns the current recording state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle starts recording when idle and stops it when recording. Calls made
// mid-transition are ignored.
func (c *Controller) Toggle() {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateIdle:
		c.startRecording()
	case StateRecording:
		c.stopRecording()
	default:
		log.Printf("[Recorder] toggle ignored while %s", state)
	}
}

// startRecording acquires the microphone and announces the utterance. Refused
// when the connection is not open; a denied microphone returns the controller
// to idle without touching the connection.
func (c *Controller) startRecording() {
	if c.conn.State() != session.StateOpen {
		c.status("Not connected - cannot start recording")
		return
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateAwaitingPermission
	c.mu.Unlock()

	if err := c.pipeline.Start(); err != nil {
		log.Printf("[Recorder] microphone unavailable: %v", err)
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.status("Microphone unavailable - check permissions")
		return
	}

	c.mu.Lock()
	c.state = StateRecording
	c.mu.Unlock()
	c.conn.Send(protocol.StartRecording(time.Now()))
	c.status("Recording...")
}

// stopRecording ends the utterance. The stop control frame goes out before the
// capture pipeline finalizes, so the payload frame always follows it on the
// wire.
func (c *Controller) stopRecording() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	c.conn.Send(protocol.StopRecording(time.Now()))
	c.pipeline.Stop()

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.status("Processing...")
}

// HandleSilence reacts to the sustained-silence event by ending the utterance,
// exactly as if the user had toggled.
func (c *Controller) HandleSilence() {
	log.Printf("[Recorder] sustained silence, stopping")
	c.stopRecording()
}

// HandlePayload transmits one finalized utterance payload.
func (c *Controller) HandlePayload(p capture.UtterancePayload) {
	if len(p.Data) == 0 {
		log.Printf("[Recorder] discarding empty payload %s", p.ID)
		return
	}
	encoded := base64.StdEncoding.EncodeToString(p.Data)
	c.conn.Send(protocol.AudioData(encoded, p.CapturedAt))
	log.Printf("[Recorder] sent payload %s (%d bytes)", p.ID, len(p.Data))
}

// HandleFrame dispatches one inbound server frame.
func (c *Controller) HandleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindConnectionEstablished:
		log.Printf("[Recorder] server ready: %s", f.Message)

	case protocol.KindTranscription:
		// Both halves must be present; partial results are not surfaced.
		if f.Text == "" || f.LLMResponse == "" {
			log.Printf("[Recorder] dropping incomplete transcription frame")
			return
		}
		c.mu.Lock()
		sink, synth := c.onConversation, c.synth
		c.mu.Unlock()
		if sink != nil {
			sink(f.Text, f.LLMResponse)
		}
		if synth != nil {
			synth.Enqueue(f.LLMResponse)
		}

	case protocol.KindRecordingStarted:
		log.Printf("[Recorder] server acknowledged recording start")

	case protocol.KindRecordingStopped:
		log.Printf("[Recorder] server acknowledged recording stop")

	case protocol.KindError:
		log.Printf("[Recorder] server error: %s", f.Message)
		c.status("Server error: " + f.Message)

	default:
		log.Printf("[Recorder] ignoring unknown frame type %q", f.Kind)
	}
}

func (c *Controller) status(msg string) {
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}
