// Package client assembles the capture pipeline, the duplex channel, and the
// recording controller into one voice client.
package client

import (
	"log"

	"example.com/voice_capture/pkg/auth"
	"example.com/voice_capture/pkg/capture"
	"example.com/voice_capture/pkg/recorder"
	"example.com/voice_capture/pkg/session"
	"example.com/voice_capture/pkg/speech"
)

// Config wires the client's collaborators together. ServerURL and Tokens are
// required; Source and Encoder default to the portaudio microphone and the
// Opus chunk encoder; Synthesizer is optional.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "ws://localhost:8000/ws/audio/".
	ServerURL string

	// Tokens supplies the bearer credential presented on every connection.
	Tokens auth.TokenProvider

	Source      capture.Source
	Encoder     capture.ChunkEncoder
	Synthesizer speech.Synthesizer

	Session session.Config
	Capture capture.Config
}

// VoiceClient is the top-level voice capture client: one connection, one
// microphone pipeline, one recording state machine.
type VoiceClient struct {
	sess     *session.Session
	pipeline *capture.Session
	ctrl     *recorder.Controller
	synth    speech.Synthesizer
}

// New assembles a client from the config. No I/O happens until Connect.
func New(cfg Config) (*VoiceClient, error) {
	if cfg.Source == nil {
		cfg.Source = capture.NewMicSource(capture.SourceConfig{})
	}
	if cfg.Encoder == nil {
		enc, err := capture.NewOpusChunkEncoder(capture.DefaultSampleRate, capture.DefaultChannels)
		if err != nil {
			return nil, err
		}
		cfg.Encoder = enc
	}

	sessCfg := cfg.Session
	sessCfg.URL = cfg.ServerURL
	sessCfg.Tokens = cfg.Tokens

	sess := session.NewSession(sessCfg)
	pipeline := capture.NewSession(cfg.Source, cfg.Encoder, cfg.Capture)
	ctrl := recorder.New(sess, pipeline)
	if cfg.Synthesizer != nil {
		ctrl.WithSynthesizer(cfg.Synthesizer)
	}

	pipeline.OnPayload(ctrl.HandlePayload)
	pipeline.OnSilence(ctrl.HandleSilence)
	sess.OnFrame(ctrl.HandleFrame)

	return &VoiceClient{sess: sess, pipeline: pipeline, ctrl: ctrl, synth: cfg.Synthesizer}, nil
}

// OnConversation registers the consumer of completed exchanges.
func (c *VoiceClient) OnConversation(fn recorder.ConversationSink) {
	c.ctrl.OnConversation(fn)
}

// OnStatus registers the consumer of status updates. Both connectivity and
// recording status arrive through the same sink.
func (c *VoiceClient) OnStatus(fn recorder.StatusSink) {
	c.ctrl.OnStatus(fn)
	c.sess.OnStatus(session.StatusHandler(fn))
}

// Connect opens the duplex channel and starts the synthesizer if configured.
// Connection drops after this point are retried automatically.
func (c *VoiceClient) Connect() error {
	if c.synth != nil {
		if err := c.synth.Start(); err != nil {
			log.Printf("[Client] playback disabled: %v", err)
		}
	}
	return c.sess.Open()
}

// Toggle starts or stops recording.
func (c *VoiceClient) Toggle() {
	c.ctrl.Toggle()
}

// RecordingState returns the recording state machine's current state.
func (c *VoiceClient) RecordingState() recorder.State {
	return c.ctrl.State()
}

// ConnectionState returns the duplex channel's current state.
func (c *VoiceClient) ConnectionState() session.State {
	return c.sess.State()
}

// Close releases everything: an in-flight recording is finalized first so its
// payload still goes out, then the channel is torn down without reconnecting.
func (c *VoiceClient) Close() {
	if c.ctrl.State() == recorder.StateRecording {
		c.ctrl.Toggle()
	}
	c.pipeline.Stop()
	c.sess.Close()
	if c.synth != nil {
		c.synth.Stop()
	}
}
