package capture

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// ChunkEncoder turns accumulated PCM into the opaque encoded chunks that make
// up an utterance payload.
type ChunkEncoder interface {
	// EncodeChunk consumes a block of PCM samples and returns the encoded
	// bytes for every complete frame it contains. Leftover samples are
	// carried into the next call. The returned bytes may be empty.
	EncodeChunk(pcm []int16) ([]byte, error)

	// Flush pads and encodes any carried samples as the final fragment once
	// capture has stopped.
	Flush() ([]byte, error)
}

// OpusChunkEncoder encodes PCM into fixed 20ms Opus packets, each prefixed
// with a big-endian uint16 length. Concatenating chunks in arrival order
// therefore yields a self-delimiting utterance payload.
type OpusChunkEncoder struct {
	enc       *opus.Encoder
	frameSize int // samples per channel per packet
	channels  int
	carry     []int16
	packet    []byte
}

// NewOpusChunkEncoder creates an encoder for the given stream parameters.
func NewOpusChunkEncoder(sampleRate, channels int) (*OpusChunkEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	// Set bitrate for voice
	enc.SetBitrate(64000)

	return &OpusChunkEncoder{
		enc:       enc,
		frameSize: sampleRate / 50, // 20ms
		channels:  channels,
		packet:    make([]byte, 1024),
	}, nil
}

// EncodeChunk appends pcm to the carry buffer and encodes every complete
// frame in it.
func (e *OpusChunkEncoder) EncodeChunk(pcm []int16) ([]byte, error) {
	e.carry = append(e.carry, pcm...)
	frameLen := e.frameSize * e.channels

	var out []byte
	for len(e.carry) >= frameLen {
		frame := e.carry[:frameLen]
		e.carry = e.carry[frameLen:]

		n, err := e.enc.Encode(frame, e.packet)
		if err != nil {
			return nil, fmt.Errorf("encode frame: %w", err)
		}
		out = binary.BigEndian.AppendUint16(out, uint16(n))
		out = append(out, e.packet[:n]...)
	}
	return out, nil
}

// Flush zero-pads the carried samples to a frame boundary and encodes them.
func (e *OpusChunkEncoder) Flush() ([]byte, error) {
	if len(e.carry) == 0 {
		return nil, nil
	}
	frameLen := e.frameSize * e.channels
	if rem := len(e.carry) % frameLen; rem != 0 {
		e.carry = append(e.carry, make([]int16, frameLen-rem)...)
	}
	return e.EncodeChunk(nil)
}
