package protocol

import "time"

// Frame kinds sent by the client.
const (
	KindStartRecording = "start_recording"
	KindStopRecording  = "stop_recording"
	KindAudioData      = "audio_data"
)

// Frame kinds sent by the server.
const (
	KindConnectionEstablished = "connection_established"
	KindTranscription         = "transcription"
	KindRecordingStarted      = "recording_started"
	KindRecordingStopped      = "recording_stopped"
	KindError                 = "error"
)

// Frame represents one structured message exchanged over the duplex channel.
// The same struct covers both directions; unused fields are omitted on the wire.
type Frame struct {
	Kind        string `json:"type"`
	Timestamp   int64  `json:"timestamp,omitempty"`  // Unix milliseconds
	AudioData   string `json:"audio_data,omitempty"` // base64 utterance payload
	Message     string `json:"message,omitempty"`
	Text        string `json:"text,omitempty"`
	LLMResponse string `json:"llm_response,omitempty"`
}

// StartRecording builds the control frame that marks the start of an utterance.
func StartRecording(at time.Time) Frame {
	return Frame{Kind: KindStartRecording, Timestamp: at.UnixMilli()}
}

// StopRecording builds the control frame that marks the end of an utterance.
func StopRecording(at time.Time) Frame {
	return Frame{Kind: KindStopRecording, Timestamp: at.UnixMilli()}
}

// AudioData builds the data frame carrying one base64-encoded utterance payload.
func AudioData(data string, capturedAt time.Time) Frame {
	return Frame{Kind: KindAudioData, AudioData: data, Timestamp: capturedAt.UnixMilli()}
}
