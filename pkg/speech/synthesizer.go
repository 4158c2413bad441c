// Package speech models response playback as an injected collaborator so the
// capture core stays testable without audio hardware.
package speech

// Synthesizer speaks assistant responses aloud. Implementations own their
// playback pipeline; the core only enqueues text.
type Synthesizer interface {
	// Start spins up the playback pipeline.
	Start() error

	// Enqueue schedules one response for synthesis. Never blocks.
	Enqueue(text string)

	// Stop halts playback and releases resources. Idempotent.
	Stop()
}

// Null discards everything. Used when playback is disabled.
type Null struct{}

func (Null) Start() error { return nil }

func (Null) Enqueue(string) {}

func (Null) Stop() {}
