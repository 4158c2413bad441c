package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFrameWireShape(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	data, err := json.Marshal(AudioData("QUJD", at))
	require.NoError(t, err)

	// The server keys on "type" and reads milliseconds; field names are part
	// of the contract.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "audio_data", raw["type"])
	assert.Equal(t, float64(1700000000123), raw["timestamp"])
	assert.Equal(t, "QUJD", raw["audio_data"])
	assert.NotContains(t, raw, "message", "unused fields must stay off the wire")
	assert.NotContains(t, raw, "text")
}

func TestControlFramesCarryNoPayload(t *testing.T) {
	at := time.Now()
	for _, frame := range []Frame{StartRecording(at), StopRecording(at)} {
		data, err := json.Marshal(frame)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Len(t, raw, 2, "control frames carry only type and timestamp")
		assert.Equal(t, float64(at.UnixMilli()), raw["timestamp"])
	}
}

func TestServerFrameParses(t *testing.T) {
	var frame Frame
	err := json.Unmarshal([]byte(`{
		"type": "transcription",
		"text": "hello",
		"llm_response": "hi there"
	}`), &frame)
	require.NoError(t, err)
	assert.Equal(t, KindTranscription, frame.Kind)
	assert.Equal(t, "hello", frame.Text)
	assert.Equal(t, "hi there", frame.LLMResponse)
}
